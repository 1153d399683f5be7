// Package ingest orchestrates the alert-email ingestion cycle: poll the
// mailbox, extract transactions, classify them against the current rule set,
// persist to the ledger, and notify. Progress tracking is ack-after-persist:
// a source email is only acknowledged once every transaction extracted from
// it has been durably written, so a crash mid-tick re-delivers instead of
// losing data. The journal makes that re-delivery idempotent.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bbirdsall/budgetflow/internal/extract"
	"github.com/bbirdsall/budgetflow/internal/model"
	"github.com/bbirdsall/budgetflow/internal/rules"
	"github.com/bbirdsall/budgetflow/internal/service"
)

// ErrTickInProgress is returned when a tick is requested while the previous
// one is still running.
var ErrTickInProgress = errors.New("ingestion tick already in progress")

// Config controls pipeline scheduling.
type Config struct {
	Enabled      bool          // run the automatic polling loop
	PollInterval time.Duration // time between ticks
	TickTimeout  time.Duration // upper bound for one full tick
}

// DefaultConfig returns the standard scheduling configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		PollInterval: 5 * time.Minute,
		TickTimeout:  2 * time.Minute,
	}
}

// TickResult summarizes one ingestion tick.
type TickResult struct {
	Transactions  []model.Transaction `json:"transactions"`
	Categorized   int                 `json:"categorized"`
	Uncategorized int                 `json:"uncategorized"`
	Duplicates    int                 `json:"duplicates"`
}

// Pipeline wires the mail source, extractor, classifier, ledger, journal and
// notifier into one ingestion cycle.
type Pipeline struct {
	mail      service.MailSource
	ruleStore service.RuleStore
	ledger    service.Ledger
	journal   service.Journal
	budget    service.BudgetReader
	notifier  service.NotificationSink
	extractor *extract.Extractor
	logger    *slog.Logger
	config    Config

	mu sync.Mutex // held for the duration of a tick
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	mail service.MailSource,
	ruleStore service.RuleStore,
	ledger service.Ledger,
	journal service.Journal,
	budget service.BudgetReader,
	notifier service.NotificationSink,
	logger *slog.Logger,
	config Config,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		mail:      mail,
		ruleStore: ruleStore,
		ledger:    ledger,
		journal:   journal,
		budget:    budget,
		notifier:  notifier,
		extractor: extract.New(logger),
		logger:    logger,
		config:    config,
	}
}

// Run executes one immediate tick, then ticks on the configured interval
// until ctx is canceled. Tick failures are logged; the next tick retries
// independently.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.config.Enabled {
		p.logger.Info("automatic polling disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	p.logger.Info("starting ingestion loop", "interval", p.config.PollInterval)

	p.runTick(ctx)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.runTick(ctx)
		}
	}
}

func (p *Pipeline) runTick(ctx context.Context) {
	if _, err := p.Tick(ctx); err != nil {
		if errors.Is(err, ErrTickInProgress) {
			p.logger.Warn("previous tick still running, skipping")
			return
		}
		p.logger.Error("ingestion tick failed", "error", err)
	}
}

// Tick runs one full ingestion cycle. Concurrent calls do not overlap: if a
// tick is already running the call returns ErrTickInProgress immediately.
func (p *Pipeline) Tick(ctx context.Context) (*TickResult, error) {
	if !p.mu.TryLock() {
		return nil, ErrTickInProgress
	}
	defer p.mu.Unlock()

	if p.config.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TickTimeout)
		defer cancel()
	}

	messages, err := p.mail.Poll(ctx)
	if err != nil {
		return nil, fmt.Errorf("poll failed: %w", err)
	}
	if len(messages) == 0 {
		return &TickResult{}, nil
	}

	parsed := p.parseAll(ctx, messages)

	ruleSet, err := p.ruleStore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	result := &TickResult{}
	var ackUIDs []uint32
	var categorized []model.LedgerEntry

	for i, msg := range messages {
		persisted := true
		for _, txn := range parsed[i] {
			outcome, err := p.processTransaction(ctx, txn, ruleSet, result)
			if err != nil {
				p.logger.Error("failed to persist transaction",
					"details", txn.Details, "amount", txn.Amount, "error", err)
				persisted = false
				continue
			}
			if outcome != nil {
				categorized = append(categorized, *outcome)
			}
		}
		if persisted {
			ackUIDs = append(ackUIDs, msg.UID)
		}
	}

	if len(ackUIDs) > 0 {
		if err := p.mail.Ack(ctx, ackUIDs); err != nil {
			// Persisted but unacknowledged: the journal absorbs the
			// re-delivery on the next tick.
			p.logger.Error("failed to acknowledge messages", "error", err)
		}
	}

	p.notifyResults(ctx, categorized, result.Uncategorized)

	p.logger.Info("ingestion tick complete",
		"messages", len(messages),
		"categorized", result.Categorized,
		"uncategorized", result.Uncategorized,
		"duplicates", result.Duplicates,
	)
	return result, nil
}

// parseConcurrency caps how many alert emails are parsed at once.
const parseConcurrency = 4

// parseAll extracts transactions from every message concurrently, waiting
// for all parses before returning. A message that fails to parse yields zero
// transactions rather than failing the tick.
func (p *Pipeline) parseAll(ctx context.Context, messages []service.RawMessage) [][]model.Transaction {
	parsed := make([][]model.Transaction, len(messages))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(parseConcurrency)
	for i, msg := range messages {
		g.Go(func() error {
			txns, err := p.extractor.Parse(msg.HTML)
			if err != nil {
				p.logger.Warn("failed to parse alert email", "uid", msg.UID, "error", err)
				return nil
			}
			parsed[i] = txns
			return nil
		})
	}
	_ = g.Wait()

	return parsed
}

// processTransaction classifies and persists one transaction. Returns the
// ledger entry when the transaction was categorized, nil when it went to the
// pending table or was a duplicate.
func (p *Pipeline) processTransaction(ctx context.Context, txn model.Transaction, ruleSet []model.Rule, result *TickResult) (*model.LedgerEntry, error) {
	hash := txn.Hash()
	seen, err := p.journal.Seen(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("journal lookup failed: %w", err)
	}
	if seen {
		p.logger.Debug("skipping already-ingested transaction",
			"details", txn.Details, "amount", txn.Amount)
		result.Duplicates++
		return nil, nil
	}

	result.Transactions = append(result.Transactions, txn)

	category, ok := rules.Classify(txn, ruleSet)
	if ok {
		entry := model.LedgerEntry{
			Date:     txn.Date,
			Category: category,
			Amount:   txn.Amount,
			Details:  txn.Details,
		}
		if err := p.ledger.AppendCategorized(ctx, entry); err != nil {
			return nil, err
		}
		if err := p.journal.MarkSeen(ctx, hash); err != nil {
			p.logger.Error("failed to journal transaction", "error", err)
		}
		result.Categorized++
		return &entry, nil
	}

	if _, err := p.ledger.AppendUncategorized(ctx, txn); err != nil {
		return nil, err
	}
	if err := p.journal.MarkSeen(ctx, hash); err != nil {
		p.logger.Error("failed to journal transaction", "error", err)
	}
	result.Uncategorized++
	return nil, nil
}

// notifyResults sends one budget-status notification per categorized
// transaction and, when any transactions went unclassified, a single
// coalesced summary. Notification failures never fail a tick.
func (p *Pipeline) notifyResults(ctx context.Context, categorized []model.LedgerEntry, uncategorized int) {
	var snapshot *model.BudgetSnapshot
	if len(categorized) > 0 && p.budget != nil {
		var err error
		snapshot, err = p.budget.Snapshot(ctx)
		if err != nil {
			p.logger.Warn("failed to read budget for notification", "error", err)
		}
	}

	for _, entry := range categorized {
		body := fmt.Sprintf("%s $%.2f filed under %s", entry.Details, entry.Amount, entry.Category)
		if snapshot != nil {
			if cb, ok := snapshot.Categories[entry.Category]; ok {
				body = fmt.Sprintf("%s ($%.2f left in %s)", body, cb.Remaining, entry.Category)
			}
		}
		if err := p.notifier.Notify(ctx, "Transaction categorized", body); err != nil {
			p.logger.Error("failed to send notification", "error", err)
		}
	}

	if uncategorized > 0 {
		body := fmt.Sprintf("%d new uncategorized transaction", uncategorized)
		if uncategorized != 1 {
			body += "s"
		}
		if err := p.notifier.Notify(ctx, "Uncategorized transactions", body); err != nil {
			p.logger.Error("failed to send notification", "error", err)
		}
	}
}
