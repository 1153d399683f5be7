package model

// LedgerEntry is an append-only row in the categorized transaction log.
type LedgerEntry struct {
	Date     string  `json:"date"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Details  string  `json:"details"`
}

// UncategorizedEntry is a row in the pending table awaiting categorization.
// ID is a generated UUID assigned at insertion time; the positional row
// index of the backing sheet is resolved only at read/delete time.
type UncategorizedEntry struct {
	ID      string  `json:"id"`
	Date    string  `json:"date"`
	Details string  `json:"details"`
	Amount  float64 `json:"amount"`
	// RowIndex is the 1-based position in the backing table at read time.
	// It is a boundary concern, not a stable identity.
	RowIndex int `json:"-"`
}
