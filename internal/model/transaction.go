// Package model defines the core data structures for the budgetflow application.
package model

import (
	"crypto/sha256"
	"fmt"
)

// Transaction is a single transaction extracted from a bank alert email.
// It is ephemeral: once classified it becomes either a LedgerEntry or an
// UncategorizedEntry and is not retained.
type Transaction struct {
	// Date is the transaction date formatted MM/DD/YY.
	Date string `json:"date"`
	// Details is the merchant/description string exactly as scraped, trimmed.
	Details string `json:"details"`
	// Amount is a positive magnitude rounded to two decimal places. The
	// source strips parentheses without inferring debit/credit sign.
	Amount float64 `json:"amount"`
}

// Hash returns a stable digest used for duplicate detection when the same
// alert email is delivered more than once.
func (t Transaction) Hash() string {
	data := fmt.Sprintf("%s:%.2f:%s", t.Date, t.Amount, t.Details)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}
