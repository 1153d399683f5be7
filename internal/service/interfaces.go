// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/bbirdsall/budgetflow/internal/model"
)

// RawMessage is one alert email retrieved from the mailbox: the decoded
// HTML body plus the mailbox UID used to acknowledge it later.
type RawMessage struct {
	UID  uint32
	HTML string
}

// MailSource provides the raw alert message stream. Poll returns every
// unprocessed matching message; Ack marks messages as processed in the mail
// store so they are not re-delivered. Acknowledgment happens only after the
// extracted transactions have been persisted.
type MailSource interface {
	Poll(ctx context.Context) ([]RawMessage, error)
	Ack(ctx context.Context, uids []uint32) error
}

// RuleStore holds the user-authored keyword rules. Implementations must not
// cache across calls; the classifier reads a fresh snapshot every cycle.
type RuleStore interface {
	List(ctx context.Context) ([]model.Rule, error)
	Add(ctx context.Context, rule model.Rule) error
	Remove(ctx context.Context, keyword string) error
}

// Ledger is the categorized transaction log plus the mutable pending table.
type Ledger interface {
	AppendCategorized(ctx context.Context, entry model.LedgerEntry) error
	AppendUncategorized(ctx context.Context, txn model.Transaction) (model.UncategorizedEntry, error)
	ListUncategorized(ctx context.Context) ([]model.UncategorizedEntry, error)
	// Migrate moves pending entries into the categorized log under the
	// given category and removes them from the pending table.
	Migrate(ctx context.Context, entries []model.UncategorizedEntry, category string) error
}

// NotificationSink delivers a fire-and-forget message to every registered
// device.
type NotificationSink interface {
	Notify(ctx context.Context, title, body string) error
}

// TokenStore keeps registered push-notification destinations.
type TokenStore interface {
	RegisterToken(ctx context.Context, token string) error
	ActiveTokens(ctx context.Context) ([]string, error)
	DeactivateToken(ctx context.Context, token string) error
}

// Journal records which transactions have already been ingested, making
// re-delivered alert emails idempotent.
type Journal interface {
	Seen(ctx context.Context, hash string) (bool, error)
	MarkSeen(ctx context.Context, hash string) error
}

// BudgetReader computes the derived budget and savings views.
type BudgetReader interface {
	Snapshot(ctx context.Context) (*model.BudgetSnapshot, error)
	Savings(ctx context.Context) (model.Savings, error)
}

// DonationReceipt is the confirmation of a submitted donation.
type DonationReceipt struct {
	Amount      float64
	SubmittedAt time.Time
	Confirmed   bool
}

// Donator submits a donation for the given amount through the external
// donation site.
type Donator interface {
	SubmitDonation(ctx context.Context, amount float64) (*DonationReceipt, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
