package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTotalCommand(opts *rootOptions) *cobra.Command {
	var byAccount bool

	cmd := &cobra.Command{
		Use:   "total",
		Short: "Print the total amount over all accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			accounts := a.Services.Accounts
			out := cmd.OutOrStdout()

			if byAccount {
				amounts, err := accounts.GetAmountsGroupedByAccounts(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tTYPE\tAMOUNT\tCURRENCY")
				for _, aa := range amounts {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
						aa.Account.ID, aa.Account.Name, aa.Account.Type, aa.Amount, aa.Account.CurrencyCode)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			total, err := accounts.GetTotalAmount(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Total: %s\n", total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&byAccount, "accounts", false, "list the balance of every account first")
	return cmd
}
