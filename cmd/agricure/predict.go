package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agricure/oofstack/dataset"
)

type predictOptions struct {
	modelPath    string
	registryPath string
	rowPath      string
	detailed     bool
}

func newPredictCmd() *cobra.Command {
	opts := &predictOptions{}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict all targets for one JSON feature row",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.modelPath, "model", "", "Ensemble file")
	cmd.Flags().StringVar(&opts.registryPath, "registry", "", "Use the active ensemble of this registry")
	cmd.Flags().StringVar(&opts.rowPath, "row", "-", "JSON feature row file, - for stdin")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "Include probabilities and substitutions")
	return cmd
}

func runPredict(cmd *cobra.Command, opts *predictOptions) error {
	ens, err := loadEnsemble(cmd.Context(), opts.modelPath, opts.registryPath)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if opts.rowPath != "-" {
		f, err := os.Open(opts.rowPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	row, err := dataset.ReadRowJSON(in, ens.Schema)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if opts.detailed {
		p, err := ens.PredictDetailed(row)
		if err != nil {
			return err
		}
		return enc.Encode(p)
	}
	labels, err := ens.Predict(row)
	if err != nil {
		return err
	}
	return enc.Encode(labels)
}
