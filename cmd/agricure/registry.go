package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/registry"
)

func newRegistryCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and activate stored ensembles",
	}
	cmd.PersistentFlags().StringVar(&path, "db", "agricure.db", "SQLite registry path")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored ensembles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.Open(path)
			if err != nil {
				return err
			}
			defer reg.Close()
			entries, err := reg.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tFAMILIES\tACCURACY\tACTIVE")
			for _, e := range entries {
				active := ""
				if e.Active {
					active = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%s\n",
					e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), strings.Join(e.Families, ","), e.OverallAccuracy, active)
			}
			return tw.Flush()
		},
	}

	activate := &cobra.Command{
		Use:   "activate [id]",
		Short: "Make an ensemble the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return errors.Wrapf(err, "invalid ensemble id %q", args[0])
			}
			reg, err := registry.Open(path)
			if err != nil {
				return err
			}
			defer reg.Close()
			if err := reg.Activate(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "active:", id)
			return nil
		},
	}

	cmd.AddCommand(list, activate)
	return cmd
}
