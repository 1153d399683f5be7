package model

// Rule maps a case-insensitive keyword to a budget category, optionally
// narrowed to an exact transaction amount.
type Rule struct {
	Keyword  string   `json:"keyword"`
	Category string   `json:"category"`
	Amount   *float64 `json:"amount,omitempty"`
}

// HasAmount reports whether the rule carries an exact-amount constraint.
func (r Rule) HasAmount() bool {
	return r.Amount != nil
}
