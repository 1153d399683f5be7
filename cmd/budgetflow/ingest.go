package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bbirdsall/budgetflow/internal/cli"
)

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion cycle and print the results",
		Long:  `Polls the mailbox once, classifies whatever it finds, and exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := initStores(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			pipeline, err := initPipeline(s, initNotifier(ctx, s.journal))
			if err != nil {
				return err
			}

			result, err := pipeline.Tick(ctx)
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}

			if len(result.Transactions) == 0 {
				fmt.Println(cli.InfoStyle.Render("No new transactions."))
				return nil
			}

			fmt.Println(cli.TitleStyle.Render("New transactions"))
			for _, txn := range result.Transactions {
				fmt.Printf("  %s  %-40s  $%.2f\n", txn.Date, txn.Details, txn.Amount)
			}
			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("%d categorized", result.Categorized)))
			if result.Uncategorized > 0 {
				fmt.Println(cli.WarningStyle.Render(fmt.Sprintf("%d uncategorized", result.Uncategorized)))
			}
			if result.Duplicates > 0 {
				fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("%d duplicates skipped", result.Duplicates)))
			}

			return nil
		},
	}
}
