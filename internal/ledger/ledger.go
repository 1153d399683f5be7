// Package ledger persists classified transactions: an append-only
// categorized log and a mutable pending table for everything the classifier
// could not place.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bbirdsall/budgetflow/internal/common"
	"github.com/bbirdsall/budgetflow/internal/model"
	"github.com/bbirdsall/budgetflow/internal/service"
	"github.com/bbirdsall/budgetflow/internal/sheets"
)

// Sheet layout. The pending table carries a generated UUID in column A;
// positional row indexes are resolved only at read/delete time.
const (
	categorizedRange = "Transactions!A2:D"
	pendingSheet     = "Uncategorized"
	pendingRange     = "Uncategorized!A2:D"
	pendingHeaderOff = 1
)

// Table is the tabular-store surface the ledger needs.
type Table interface {
	Get(ctx context.Context, readRange string) ([][]any, error)
	Append(ctx context.Context, writeRange string, rows [][]any) error
	DeleteRows(ctx context.Context, sheetName string, rowIndexes []int) error
}

// Ledger implements service.Ledger over a spreadsheet.
type Ledger struct {
	table     Table
	logger    *slog.Logger
	retryOpts service.RetryOptions
}

// New creates a Ledger. Writes are retried with the given options before
// surfacing a persistence error.
func New(table Table, retryOpts service.RetryOptions, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{table: table, retryOpts: retryOpts, logger: logger}
}

// AppendCategorized appends one row to the categorized log. Rows are never
// mutated or deleted afterwards.
func (l *Ledger) AppendCategorized(ctx context.Context, entry model.LedgerEntry) error {
	row := []any{entry.Date, entry.Category, entry.Amount, entry.Details}

	err := common.WithRetry(ctx, func() error {
		return l.table.Append(ctx, categorizedRange, [][]any{row})
	}, l.retryOpts)
	if err != nil {
		return fmt.Errorf("%w: appending categorized entry: %v", common.ErrPersistence, err)
	}

	l.logger.Info("appended categorized transaction",
		"category", entry.Category,
		"amount", entry.Amount)
	return nil
}

// AppendUncategorized adds a transaction to the pending table under a fresh
// stable ID.
func (l *Ledger) AppendUncategorized(ctx context.Context, txn model.Transaction) (model.UncategorizedEntry, error) {
	entry := model.UncategorizedEntry{
		ID:      uuid.NewString(),
		Date:    txn.Date,
		Details: txn.Details,
		Amount:  txn.Amount,
	}
	row := []any{entry.ID, entry.Date, entry.Details, entry.Amount}

	err := common.WithRetry(ctx, func() error {
		return l.table.Append(ctx, pendingRange, [][]any{row})
	}, l.retryOpts)
	if err != nil {
		return model.UncategorizedEntry{}, fmt.Errorf("%w: appending uncategorized entry: %v", common.ErrPersistence, err)
	}

	l.logger.Info("appended uncategorized transaction", "id", entry.ID, "details", entry.Details)
	return entry, nil
}

// ListUncategorized returns the pending table with row indexes resolved at
// read time. Rows written before the ID column existed get a positional
// fallback ID so the legacy data stays addressable.
func (l *Ledger) ListUncategorized(ctx context.Context) ([]model.UncategorizedEntry, error) {
	rows, err := l.table.Get(ctx, pendingRange)
	if err != nil {
		return nil, fmt.Errorf("listing uncategorized entries: %w", err)
	}

	entries := make([]model.UncategorizedEntry, 0, len(rows))
	for i, row := range rows {
		rowIndex := i + pendingHeaderOff + 1

		amount, ok := sheets.CellFloat(row, 3)
		if !ok {
			l.logger.Warn("skipping unreadable pending row", "row", rowIndex)
			continue
		}

		id := sheets.CellString(row, 0)
		if id == "" {
			id = fmt.Sprintf("row-%d", rowIndex)
		}

		entries = append(entries, model.UncategorizedEntry{
			ID:       id,
			Date:     sheets.CellString(row, 1),
			Details:  sheets.CellString(row, 2),
			Amount:   amount,
			RowIndex: rowIndex,
		})
	}

	return entries, nil
}

// Migrate moves pending entries into the categorized log and removes them
// from the pending table. Pending rows are deleted highest row index first
// so removals within one batch cannot shift each other's positions.
func (l *Ledger) Migrate(ctx context.Context, entries []model.UncategorizedEntry, category string) error {
	if len(entries) == 0 {
		return nil
	}
	if category == "" {
		return fmt.Errorf("%w: category is required", common.ErrValidation)
	}

	for _, entry := range entries {
		ledgerEntry := model.LedgerEntry{
			Date:     entry.Date,
			Category: category,
			Amount:   entry.Amount,
			Details:  entry.Details,
		}
		if err := l.AppendCategorized(ctx, ledgerEntry); err != nil {
			return err
		}
	}

	indexes := make([]int, 0, len(entries))
	for _, entry := range entries {
		if entry.RowIndex > 0 {
			indexes = append(indexes, entry.RowIndex)
		}
	}

	err := common.WithRetry(ctx, func() error {
		return l.table.DeleteRows(ctx, pendingSheet, indexes)
	}, l.retryOpts)
	if err != nil {
		return fmt.Errorf("%w: removing migrated pending rows: %v", common.ErrPersistence, err)
	}

	l.logger.Info("migrated pending transactions", "count", len(entries), "category", category)
	return nil
}
