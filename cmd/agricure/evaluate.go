package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agricure/oofstack/dataset"
	"github.com/agricure/oofstack/report"
	"github.com/agricure/oofstack/stacking"
)

type evaluateOptions struct {
	modelPath    string
	registryPath string
	dataPath     string
	reportDir    string
}

func newEvaluateCmd() *cobra.Command {
	opts := &evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score an ensemble on a labeled feature table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.modelPath, "model", "", "Ensemble file")
	cmd.Flags().StringVar(&opts.registryPath, "registry", "", "Use the active ensemble of this registry")
	cmd.Flags().StringVar(&opts.dataPath, "data", "", "Labeled feature table CSV (required)")
	cmd.Flags().StringVar(&opts.reportDir, "report-dir", "", "Write report.csv and accuracy.png here")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func runEvaluate(cmd *cobra.Command, opts *evaluateOptions) error {
	ens, err := loadEnsemble(cmd.Context(), opts.modelPath, opts.registryPath)
	if err != nil {
		return err
	}
	ds, err := dataset.LoadCSV(opts.dataPath)
	if err != nil {
		return err
	}
	rep, err := stacking.Evaluate(ens, ds)
	if err != nil {
		return err
	}
	printEval(cmd.OutOrStdout(), rep)

	if opts.reportDir == "" {
		return nil
	}
	if err := os.MkdirAll(opts.reportDir, 0o755); err != nil {
		return err
	}
	err = writeFileAtomic(filepath.Join(opts.reportDir, "report.csv"), func(w io.Writer) error {
		return report.WriteCSV(w, rep)
	})
	if err != nil {
		return err
	}
	return report.SaveAccuracyChart(filepath.Join(opts.reportDir, "accuracy.png"), rep)
}
