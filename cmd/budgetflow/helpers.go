package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bbirdsall/budgetflow/internal/budget"
	"github.com/bbirdsall/budgetflow/internal/common"
	"github.com/bbirdsall/budgetflow/internal/config"
	"github.com/bbirdsall/budgetflow/internal/ingest"
	"github.com/bbirdsall/budgetflow/internal/journal"
	"github.com/bbirdsall/budgetflow/internal/ledger"
	"github.com/bbirdsall/budgetflow/internal/mail"
	"github.com/bbirdsall/budgetflow/internal/notify"
	"github.com/bbirdsall/budgetflow/internal/rules"
	"github.com/bbirdsall/budgetflow/internal/service"
	"github.com/bbirdsall/budgetflow/internal/sheets"
)

// stores bundles everything backed by the spreadsheet plus the local
// journal.
type stores struct {
	journal *journal.Journal
	ledger  *ledger.Ledger
	rules   *rules.Store
	budget  *budget.Reader
}

func (s *stores) Close() {
	if s.journal != nil {
		_ = s.journal.Close()
	}
}

// initStores connects to the spreadsheet and opens the local journal.
func initStores(ctx context.Context) (*stores, error) {
	sheetsCfg, err := config.LoadSheets()
	if err != nil {
		return nil, common.NewUserError("Google Sheets is not configured (see sheets.* settings)", err)
	}

	client, err := sheets.NewClient(ctx, sheetsCfg, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to spreadsheet: %w", err)
	}

	j, err := journal.Open(config.JournalPath())
	if err != nil {
		return nil, err
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  sheetsCfg.RetryAttempts,
		InitialDelay: sheetsCfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}

	return &stores{
		journal: j,
		ledger:  ledger.New(client, retryOpts, slog.Default()),
		rules:   rules.NewStore(client, slog.Default()),
		budget:  budget.NewReader(client, config.LoadBudget(), slog.Default()),
	}, nil
}

// initNotifier builds the FCM sink, or a log-only sink when no credentials
// are configured so the pipeline still runs in development.
func initNotifier(ctx context.Context, tokens service.TokenStore) service.NotificationSink {
	credentials := config.NotifyCredentials()
	if credentials == "" {
		slog.Warn("notify.credentials_path not set, notifications will only be logged")
		return logSink{}
	}

	sink, err := notify.NewSink(ctx, credentials, tokens, slog.Default())
	if err != nil {
		slog.Error("failed to initialize push notifications, falling back to log-only", "error", err)
		return logSink{}
	}
	return sink
}

// logSink drops notifications into the log.
type logSink struct{}

func (logSink) Notify(_ context.Context, title, body string) error {
	slog.Info("notification", "title", title, "body", body)
	return nil
}

// initPipeline wires the full ingestion pipeline.
func initPipeline(s *stores, notifier service.NotificationSink) (*ingest.Pipeline, error) {
	fetcher, err := mail.NewFetcher(config.LoadMail(), slog.Default())
	if err != nil {
		return nil, common.NewUserError("mailbox is not configured (see imap.* settings)", err)
	}

	return ingest.NewPipeline(
		fetcher,
		s.rules,
		s.ledger,
		s.journal,
		s.budget,
		notifier,
		slog.Default(),
		config.LoadIngest(),
	), nil
}
