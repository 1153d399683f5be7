package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/bbirdsall/budgetflow/internal/api"
	"github.com/bbirdsall/budgetflow/internal/config"
	"github.com/bbirdsall/budgetflow/internal/donation"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion loop and REST API",
		Long: `Starts the full service: the mailbox polling loop, the REST API for the
mobile client, and the monthly donation schedule when one is configured.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (overrides api.addr)")
	_ = viper.BindPFlag("api.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := initStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	notifier := initNotifier(ctx, s.journal)

	pipeline, err := initPipeline(s, notifier)
	if err != nil {
		return err
	}

	server := api.NewServer(s.budget, s.rules, s.ledger, s.journal, pipeline, slog.Default(), config.LoadAPI())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pipeline.Run(gctx)
	})

	g.Go(func() error {
		return server.Run(gctx)
	})

	schedule, err := config.LoadDonationSchedule()
	if err != nil {
		return err
	}
	if schedule != nil {
		submitter, err := donation.NewSubmitter(config.LoadDonation(), slog.Default())
		if err != nil {
			return err
		}
		runner := donation.NewRunner(*schedule, submitter, notifier, slog.Default())
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
