package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/xpense/backend/internal/models"
)

func newSyncRatesCommand(opts *rootOptions) *cobra.Command {
	var (
		force    bool
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "sync-rates",
		Short: "Refresh cached exchange rates from the quote API",
		Long: "Without --from/--to every cached pair of the base currency is refreshed.\n" +
			"Nothing is fetched while the last sync is newer than the sync interval, unless --force is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (from == "") != (to == "") {
				return fmt.Errorf("--from and --to must be given together")
			}

			a, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			exchange := a.Services.Exchange
			if from != "" {
				err = exchange.SyncExchangeRate(ctx, from, to, force)
			} else {
				err = exchange.SyncAllExchangeRates(ctx, force)
			}
			if err != nil {
				return err
			}

			last, err := exchange.LastSyncTime(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if last.IsZero() {
				fmt.Fprintln(out, "Rates were never synced")
			} else {
				fmt.Fprintf(out, "Last sync: %s\n", last.UTC().Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "ignore the sync interval")
	cmd.Flags().StringVar(&from, "from", "", "source currency of a single pair")
	cmd.Flags().StringVar(&to, "to", "", "target currency of a single pair")

	return cmd
}

func newConvertCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "convert FROM TO AMOUNT",
		Short: "Convert an amount with the cached rate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("parsing amount %q: %w", args[2], err)
			}

			a, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			pair := models.NewPair(args[0], args[1])
			result, err := a.Services.Exchange.Convert(cmd.Context(), pair.From, pair.To, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s %s\n", amount, pair.From, result, pair.To)
			return nil
		},
	}
}
