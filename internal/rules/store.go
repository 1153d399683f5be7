package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bbirdsall/budgetflow/internal/common"
	"github.com/bbirdsall/budgetflow/internal/model"
	"github.com/bbirdsall/budgetflow/internal/sheets"
)

// Keywords sheet layout: one rule per row, keyword / category / optional
// exact amount. Data starts below the header row.
const (
	keywordSheet     = "Keywords"
	keywordDataRange = "Keywords!A2:C"
	keywordHeaderOff = 1
)

// Table is the tabular-store surface the rule store needs.
type Table interface {
	Get(ctx context.Context, readRange string) ([][]any, error)
	Append(ctx context.Context, writeRange string, rows [][]any) error
	DeleteRows(ctx context.Context, sheetName string, rowIndexes []int) error
}

// Store is a thin typed view over the Keywords sheet. It holds no cache:
// rules change between ingestion cycles, and the classifier must see fresh
// state every run.
type Store struct {
	table  Table
	logger *slog.Logger
}

// NewStore creates a rule store over the given tabular client.
func NewStore(table Table, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{table: table, logger: logger}
}

// List returns the current rule snapshot.
func (s *Store) List(ctx context.Context) ([]model.Rule, error) {
	rows, err := s.table.Get(ctx, keywordDataRange)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}

	ruleSet := make([]model.Rule, 0, len(rows))
	for _, row := range rows {
		rule, ok := ruleFromRow(row)
		if !ok {
			continue
		}
		ruleSet = append(ruleSet, rule)
	}

	s.logger.Debug("loaded rule snapshot", "count", len(ruleSet))
	return ruleSet, nil
}

// Add appends a rule. There is no update-in-place; callers delete and
// re-add.
func (s *Store) Add(ctx context.Context, rule model.Rule) error {
	if rule.Keyword == "" {
		return fmt.Errorf("%w: keyword is required", common.ErrValidation)
	}
	if rule.Category == "" {
		return fmt.Errorf("%w: category is required", common.ErrValidation)
	}

	amountCell := ""
	if rule.HasAmount() {
		amountCell = strconv.FormatFloat(*rule.Amount, 'f', 2, 64)
	}

	if err := s.table.Append(ctx, keywordDataRange, [][]any{{rule.Keyword, rule.Category, amountCell}}); err != nil {
		return fmt.Errorf("saving rule %q: %w", rule.Keyword, err)
	}

	s.logger.Info("saved rule", "keyword", rule.Keyword, "category", rule.Category)
	return nil
}

// Remove deletes every rule with the given keyword.
func (s *Store) Remove(ctx context.Context, keyword string) error {
	rows, err := s.table.Get(ctx, keywordDataRange)
	if err != nil {
		return fmt.Errorf("listing rules for removal: %w", err)
	}

	var indexes []int
	for i, row := range rows {
		rule, ok := ruleFromRow(row)
		if ok && strings.EqualFold(rule.Keyword, keyword) {
			indexes = append(indexes, i+keywordHeaderOff+1)
		}
	}

	if len(indexes) == 0 {
		return fmt.Errorf("rule %q: %w", keyword, common.ErrNotFound)
	}

	if err := s.table.DeleteRows(ctx, keywordSheet, indexes); err != nil {
		return fmt.Errorf("removing rule %q: %w", keyword, err)
	}

	s.logger.Info("removed rule", "keyword", keyword, "rows", len(indexes))
	return nil
}

func ruleFromRow(row []any) (model.Rule, bool) {
	keyword := sheets.CellString(row, 0)
	category := sheets.CellString(row, 1)
	if keyword == "" || category == "" {
		return model.Rule{}, false
	}

	rule := model.Rule{Keyword: keyword, Category: category}
	if amount, ok := sheets.CellFloat(row, 2); ok {
		rule.Amount = &amount
	}
	return rule, true
}
