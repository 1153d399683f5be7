package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbirdsall/budgetflow/internal/model"
	"github.com/bbirdsall/budgetflow/internal/service"
)

const twoRowAlert = `
<html><body>
<table class="transaction">
  <tr>
    <td class="date">September 3, 2024</td>
    <td class="details">COSTCO WHOLESALE #482</td>
    <td class="amount">$145.20</td>
  </tr>
</table>
<table class="transaction">
  <tr>
    <td class="date">September 3, 2024</td>
    <td class="details">MYSTERY VENDOR LLC</td>
    <td class="amount">$12.00</td>
  </tr>
</table>
</body></html>`

type fakeMail struct {
	mu       sync.Mutex
	messages []service.RawMessage
	acked    [][]uint32
	pollErr  error
	ackErr   error
	polls    int
	block    chan struct{} // when set, Poll blocks until closed
}

func (f *fakeMail) Poll(ctx context.Context) ([]service.RawMessage, error) {
	f.mu.Lock()
	f.polls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.messages, nil
}

func (f *fakeMail) Ack(ctx context.Context, uids []uint32) error {
	if f.ackErr != nil {
		return f.ackErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, uids)
	return nil
}

type fakeRuleStore struct {
	ruleSet []model.Rule
}

func (f *fakeRuleStore) List(ctx context.Context) ([]model.Rule, error) { return f.ruleSet, nil }
func (f *fakeRuleStore) Add(ctx context.Context, rule model.Rule) error { return nil }
func (f *fakeRuleStore) Remove(ctx context.Context, keyword string) error {
	return nil
}

type fakeLedger struct {
	categorized []model.LedgerEntry
	pending     []model.Transaction
	appendErr   error
}

func (f *fakeLedger) AppendCategorized(ctx context.Context, entry model.LedgerEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.categorized = append(f.categorized, entry)
	return nil
}

func (f *fakeLedger) AppendUncategorized(ctx context.Context, txn model.Transaction) (model.UncategorizedEntry, error) {
	if f.appendErr != nil {
		return model.UncategorizedEntry{}, f.appendErr
	}
	f.pending = append(f.pending, txn)
	return model.UncategorizedEntry{ID: "fake-id", Date: txn.Date, Details: txn.Details, Amount: txn.Amount}, nil
}

func (f *fakeLedger) ListUncategorized(ctx context.Context) ([]model.UncategorizedEntry, error) {
	return nil, nil
}

func (f *fakeLedger) Migrate(ctx context.Context, entries []model.UncategorizedEntry, category string) error {
	return nil
}

type memJournal struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemJournal() *memJournal { return &memJournal{seen: make(map[string]bool)} }

func (m *memJournal) Seen(ctx context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[hash], nil
}

func (m *memJournal) MarkSeen(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[hash] = true
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (f *fakeNotifier) Notify(ctx context.Context, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, body)
	return nil
}

type fakeBudget struct {
	snapshot *model.BudgetSnapshot
}

func (f *fakeBudget) Snapshot(ctx context.Context) (*model.BudgetSnapshot, error) {
	if f.snapshot == nil {
		return nil, errors.New("no snapshot")
	}
	return f.snapshot, nil
}

func (f *fakeBudget) Savings(ctx context.Context) (model.Savings, error) { return nil, nil }

func testPipeline(mail *fakeMail, store *fakeRuleStore, ledger *fakeLedger, journal *memJournal, notifier *fakeNotifier) *Pipeline {
	return NewPipeline(mail, store, ledger, journal, &fakeBudget{}, notifier, nil, Config{
		Enabled:      true,
		PollInterval: time.Minute,
		TickTimeout:  10 * time.Second,
	})
}

func TestPipeline_EndToEnd(t *testing.T) {
	mail := &fakeMail{messages: []service.RawMessage{{UID: 7, HTML: twoRowAlert}}}
	store := &fakeRuleStore{ruleSet: []model.Rule{{Keyword: "Costco", Category: "food"}}}
	ledger := &fakeLedger{}
	journal := newMemJournal()
	notifier := &fakeNotifier{}

	p := testPipeline(mail, store, ledger, journal, notifier)

	result, err := p.Tick(context.Background())
	require.NoError(t, err)

	require.Len(t, ledger.categorized, 1)
	assert.Equal(t, "food", ledger.categorized[0].Category)
	assert.Equal(t, "COSTCO WHOLESALE #482", ledger.categorized[0].Details)

	require.Len(t, ledger.pending, 1)
	assert.Equal(t, "MYSTERY VENDOR LLC", ledger.pending[0].Details)

	assert.Equal(t, 1, result.Categorized)
	assert.Equal(t, 1, result.Uncategorized)
	assert.Len(t, result.Transactions, 2)

	// One budget-status notification plus exactly one coalesced summary.
	require.Len(t, notifier.titles, 2)
	assert.Equal(t, "Uncategorized transactions", notifier.titles[1])
	assert.Contains(t, notifier.bodies[1], "1 new uncategorized transaction")

	require.Len(t, mail.acked, 1)
	assert.Equal(t, []uint32{7}, mail.acked[0])
}

func TestPipeline_NoAckOnPersistFailure(t *testing.T) {
	mail := &fakeMail{messages: []service.RawMessage{{UID: 3, HTML: twoRowAlert}}}
	ledger := &fakeLedger{appendErr: errors.New("sheet unavailable")}
	journal := newMemJournal()

	p := testPipeline(mail, &fakeRuleStore{}, ledger, journal, &fakeNotifier{})

	result, err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mail.acked)
	assert.Equal(t, 0, result.Categorized+result.Uncategorized)

	// Nothing journaled means the next delivery retries cleanly.
	seen, err := journal.Seen(context.Background(), model.Transaction{
		Date: "09/03/24", Details: "COSTCO WHOLESALE #482", Amount: 145.20,
	}.Hash())
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestPipeline_RedeliveryIsIdempotent(t *testing.T) {
	mail := &fakeMail{messages: []service.RawMessage{{UID: 9, HTML: twoRowAlert}}}
	store := &fakeRuleStore{ruleSet: []model.Rule{{Keyword: "Costco", Category: "food"}}}
	ledger := &fakeLedger{}
	journal := newMemJournal()

	p := testPipeline(mail, store, ledger, journal, &fakeNotifier{})

	_, err := p.Tick(context.Background())
	require.NoError(t, err)

	// Same message shows up again, e.g. ack failed last time.
	result, err := p.Tick(context.Background())
	require.NoError(t, err)

	assert.Len(t, ledger.categorized, 1)
	assert.Len(t, ledger.pending, 1)
	assert.Equal(t, 2, result.Duplicates)
	// Duplicate-only messages are still acknowledged.
	assert.Len(t, mail.acked, 2)
}

func TestPipeline_PollFailureSurfaces(t *testing.T) {
	mail := &fakeMail{pollErr: errors.New("connection refused")}
	p := testPipeline(mail, &fakeRuleStore{}, &fakeLedger{}, newMemJournal(), &fakeNotifier{})

	_, err := p.Tick(context.Background())
	assert.Error(t, err)
}

func TestPipeline_OverlappingTicksSkipped(t *testing.T) {
	block := make(chan struct{})
	mail := &fakeMail{block: block}
	p := testPipeline(mail, &fakeRuleStore{}, &fakeLedger{}, newMemJournal(), &fakeNotifier{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Tick(context.Background())
	}()

	// Wait for the first tick to be inside Poll.
	require.Eventually(t, func() bool {
		mail.mu.Lock()
		defer mail.mu.Unlock()
		return mail.polls == 1
	}, time.Second, 5*time.Millisecond)

	_, err := p.Tick(context.Background())
	assert.ErrorIs(t, err, ErrTickInProgress)

	close(block)
	<-done
}

func TestPipeline_MalformedEmailDegradesToZero(t *testing.T) {
	mail := &fakeMail{messages: []service.RawMessage{{UID: 5, HTML: "<html><body>no tables here</body></html>"}}}
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}

	p := testPipeline(mail, &fakeRuleStore{}, ledger, newMemJournal(), notifier)

	result, err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Transactions)
	assert.Empty(t, ledger.categorized)
	assert.Empty(t, ledger.pending)
	assert.Empty(t, notifier.titles)
	// An alert with nothing extractable is still consumed.
	assert.Len(t, mail.acked, 1)
}

// More messages than the parse fan-out allows in flight at once; every one
// must still be extracted and persisted.
func TestPipeline_ParsesBacklogLargerThanFanOut(t *testing.T) {
	const backlog = 3 * parseConcurrency

	var messages []service.RawMessage
	for i := 0; i < backlog; i++ {
		html := fmt.Sprintf(`
<html><body>
<table class="transaction">
  <tr>
    <td class="date">September 3, 2024</td>
    <td class="details">VENDOR %d</td>
    <td class="amount">$%d.00</td>
  </tr>
</table>
</body></html>`, i, 10+i)
		messages = append(messages, service.RawMessage{UID: uint32(100 + i), HTML: html})
	}

	mail := &fakeMail{messages: messages}
	ledger := &fakeLedger{}

	p := testPipeline(mail, &fakeRuleStore{}, ledger, newMemJournal(), &fakeNotifier{})

	result, err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, backlog, result.Uncategorized)
	assert.Len(t, ledger.pending, backlog)
	require.Len(t, mail.acked, 1)
	assert.Len(t, mail.acked[0], backlog)
}
