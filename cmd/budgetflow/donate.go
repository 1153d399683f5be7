package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bbirdsall/budgetflow/internal/cli"
	"github.com/bbirdsall/budgetflow/internal/config"
	"github.com/bbirdsall/budgetflow/internal/donation"
)

func donateCmd() *cobra.Command {
	var amount float64

	cmd := &cobra.Command{
		Use:   "donate",
		Short: "Submit a donation now",
		Long:  `Runs the donation site flow once for the given amount.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			submitter, err := donation.NewSubmitter(config.LoadDonation(), slog.Default())
			if err != nil {
				return err
			}

			receipt, err := submitter.SubmitDonation(ctx, amount)
			if err != nil {
				return fmt.Errorf("donation failed: %w", err)
			}

			if receipt.Confirmed {
				fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("Donation of $%.2f confirmed", receipt.Amount)))
			} else {
				fmt.Println(cli.WarningStyle.Render(fmt.Sprintf("Donation of $%.2f submitted, confirmation not detected", receipt.Amount)))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&amount, "amount", 0, "donation amount in dollars")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}
