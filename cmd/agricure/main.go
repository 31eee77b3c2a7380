// Command agricure trains, evaluates and serves the fertilizer
// recommendation stacking ensemble.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
	"github.com/agricure/oofstack/registry"
	"github.com/agricure/oofstack/stacking"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "agricure",
		Short: "Multi-output OOF stacking ensemble for fertilizer recommendation",
		Long: `agricure predicts N/P/K status, primary and secondary fertilizer and
pH amendment from soil and crop features.

  agricure train --config train.yaml --data data.csv --out model.oofs
  agricure predict --model model.oofs --row row.json
  agricure evaluate --model model.oofs --data test.csv --report-dir out/`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := log.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			log.SetProvider(log.NewConsoleProvider(cmd.ErrOrStderr(), level))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(newTrainCmd())
	root.AddCommand(newPredictCmd())
	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newRegistryCmd())
	return root
}

// loadEnsemble reads --model, or the active ensemble of --registry.
func loadEnsemble(ctx context.Context, modelPath, registryPath string) (*stacking.Ensemble, error) {
	switch {
	case modelPath != "":
		f, err := os.Open(modelPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return stacking.Load(f)
	case registryPath != "":
		reg, err := registry.Open(registryPath)
		if err != nil {
			return nil, err
		}
		defer reg.Close()
		return reg.Active(ctx)
	}
	return nil, errors.New("one of --model or --registry is required")
}
