package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agricure/oofstack/config"
	"github.com/agricure/oofstack/dataset"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
	"github.com/agricure/oofstack/registry"
	"github.com/agricure/oofstack/stacking"
)

type trainOptions struct {
	configPath   string
	dataPath     string
	outPath      string
	registryPath string
	activate     bool
}

func newTrainCmd() *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the stacking ensemble on a feature table",
		Long: `Splits the table 80/20 stratified on the reference target, trains on the
training part and reports per-target accuracy on the held-out part.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "YAML training configuration (defaults when empty)")
	cmd.Flags().StringVar(&opts.dataPath, "data", "", "Feature table CSV (required)")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "Write the trained ensemble to this file")
	cmd.Flags().StringVar(&opts.registryPath, "registry", "", "Store the trained ensemble in this SQLite registry")
	cmd.Flags().BoolVar(&opts.activate, "activate", false, "Activate the stored ensemble (requires --registry)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func runTrain(cmd *cobra.Command, opts *trainOptions) error {
	ctx := cmd.Context()
	logger := log.GetLoggerWithName("agricure.train")

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		log.SetProvider(log.NewConsoleProvider(cmd.ErrOrStderr(), level))
		logger = log.GetLoggerWithName("agricure.train")
	}
	if opts.activate && opts.registryPath == "" {
		return errors.New("--activate requires --registry")
	}
	ds, err := dataset.LoadCSV(opts.dataPath)
	if err != nil {
		return err
	}
	train, test, err := dataset.TrainTestSplit(ds, cfg.ReferenceTarget, cfg.TestSize, cfg.Seed)
	if err != nil {
		return err
	}
	logger.Info("Dataset split", log.SamplesKey, ds.Len(), "train", train.Len(), "test", test.Len())

	sc, err := cfg.StackingConfig(logger)
	if err != nil {
		return err
	}
	ens, report, err := stacking.Train(ctx, train, sc)
	if err != nil {
		return err
	}
	for _, w := range report.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}

	eval, err := stacking.Evaluate(ens, test)
	if err != nil {
		return err
	}
	printEval(cmd.OutOrStdout(), eval)

	if opts.outPath != "" {
		if err := writeEnsemble(opts.outPath, ens); err != nil {
			return err
		}
	}
	if opts.registryPath != "" {
		reg, err := registry.Open(opts.registryPath)
		if err != nil {
			return err
		}
		defer reg.Close()
		entry, err := reg.Put(ctx, ens, eval.OverallAccuracy)
		if err != nil {
			return err
		}
		if opts.activate {
			if err := reg.Activate(ctx, entry.ID); err != nil {
				return err
			}
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ensemble:", ens.ID)
	return nil
}

func writeEnsemble(path string, ens *stacking.Ensemble) error {
	return writeFileAtomic(path, ens.Save)
}

func printEval(w io.Writer, rep *stacking.EvalReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tACCURACY\tWEIGHTED F1\tCATEGORY")
	for _, te := range rep.Targets {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%s\n", te.Target, te.Accuracy, te.WeightedF1, te.Category())
	}
	fmt.Fprintf(tw, "overall\t%.4f\t\t\n", rep.OverallAccuracy)
	tw.Flush()
	if rep.SkippedRows > 0 {
		fmt.Fprintf(w, "%d rows skipped (unknown categories)\n", rep.SkippedRows)
	}
}
