// Package budget computes the derived budget and savings views from the
// spreadsheet's goal and usage cells. Nothing here is persisted; every
// request recomputes from the store.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/bbirdsall/budgetflow/internal/model"
	"github.com/bbirdsall/budgetflow/internal/sheets"
)

const gasCategory = "gas"

// BatchTable is the tabular-store surface the budget reader needs.
type BatchTable interface {
	Get(ctx context.Context, readRange string) ([][]any, error)
	BatchGet(ctx context.Context, ranges []string) ([][][]any, error)
}

// Config locates the goal/usage cells and carries the fill-up unit price.
type Config struct {
	// GoalsRange rows are (category, monthly total).
	GoalsRange string
	// UsageRange rows are (category, amount used this month).
	UsageRange string
	// SavingsRange rows are (bucket name, formatted amount).
	SavingsRange string
	// Categories is the ordered list of valid category names.
	Categories []string
	// FillupPrice converts the gas remainder into refuels left.
	FillupPrice float64
}

// Reader implements service.BudgetReader.
type Reader struct {
	table  BatchTable
	logger *slog.Logger
	now    func() time.Time
	config Config
}

// NewReader creates a budget reader.
func NewReader(table BatchTable, config Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{table: table, config: config, logger: logger, now: time.Now}
}

// Snapshot reads the goal and usage cells in one batch and derives the
// per-category view plus how far into the month we are.
func (r *Reader) Snapshot(ctx context.Context) (*model.BudgetSnapshot, error) {
	values, err := r.table.BatchGet(ctx, []string{r.config.GoalsRange, r.config.UsageRange})
	if err != nil {
		return nil, fmt.Errorf("reading budget cells: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("expected 2 value ranges, got %d", len(values))
	}

	totals := amountsByCategory(values[0])
	used := amountsByCategory(values[1])

	categories := make(map[string]model.CategoryBudget, len(r.config.Categories))
	for _, name := range r.config.Categories {
		cb := model.CategoryBudget{
			Total: totals[name],
			Used:  used[name],
		}
		cb.Remaining = round2(cb.Total - cb.Used)
		categories[name] = cb
	}

	snapshot := &model.BudgetSnapshot{
		Categories:         categories,
		PercentMonthPassed: r.percentMonthPassed(),
		FillupPrice:        r.config.FillupPrice,
	}

	if gas, ok := categories[gasCategory]; ok && r.config.FillupPrice > 0 {
		snapshot.FillupsLeft = math.Round(gas.Remaining/r.config.FillupPrice*10) / 10
	}

	return snapshot, nil
}

// Savings returns the savings buckets exactly as formatted in the sheet.
func (r *Reader) Savings(ctx context.Context) (model.Savings, error) {
	rows, err := r.table.Get(ctx, r.config.SavingsRange)
	if err != nil {
		return nil, fmt.Errorf("reading savings cells: %w", err)
	}

	savings := make(model.Savings, len(rows))
	for _, row := range rows {
		name := sheets.CellString(row, 0)
		if name == "" {
			continue
		}
		savings[name] = sheets.CellString(row, 1)
	}

	return savings, nil
}

func (r *Reader) percentMonthPassed() float64 {
	now := r.now()
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	return math.Round(float64(now.Day())/float64(daysInMonth)*1000) / 10
}

func amountsByCategory(rows [][]any) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		name := sheets.CellString(row, 0)
		if name == "" {
			continue
		}
		if amount, ok := sheets.CellFloat(row, 1); ok {
			out[name] = amount
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
