package model

// CategoryBudget is the spend-vs-goal view for a single category.
type CategoryBudget struct {
	Total     float64 `json:"total"`
	Used      float64 `json:"used"`
	Remaining float64 `json:"remaining"`
}

// BudgetSnapshot is a derived, read-only view computed on demand from the
// goal/usage cells of the budget sheet. It is never persisted.
type BudgetSnapshot struct {
	Categories         map[string]CategoryBudget `json:"categories"`
	PercentMonthPassed float64                   `json:"percentMonthPassed"`
	// FillupPrice converts a dollar remainder into refuels left for the
	// gas category.
	FillupPrice float64 `json:"fillupPrice"`
	FillupsLeft float64 `json:"fillupsLeft"`
}

// Savings maps a savings bucket name to its formatted amount string.
type Savings map[string]string
