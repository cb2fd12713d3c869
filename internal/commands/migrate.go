package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			applied, err := a.Migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrating: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Schema is up to date")
				return nil
			}
			for _, version := range applied {
				fmt.Fprintf(out, "Applied %s\n", version)
			}
			return nil
		},
	}
}
