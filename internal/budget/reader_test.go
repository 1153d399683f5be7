package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBatchTable struct {
	ranges map[string][][]any
}

func (f *fakeBatchTable) Get(_ context.Context, readRange string) ([][]any, error) {
	return f.ranges[readRange], nil
}

func (f *fakeBatchTable) BatchGet(_ context.Context, ranges []string) ([][][]any, error) {
	out := make([][][]any, len(ranges))
	for i, r := range ranges {
		out[i] = f.ranges[r]
	}
	return out, nil
}

func testConfig() Config {
	return Config{
		GoalsRange:   "Budget!A2:B5",
		UsageRange:   "Budget!D2:E5",
		SavingsRange: "Savings!A2:B8",
		Categories:   []string{"food", "shopping", "gas", "other"},
		FillupPrice:  40.00,
	}
}

func TestReader_Snapshot(t *testing.T) {
	table := &fakeBatchTable{ranges: map[string][][]any{
		"Budget!A2:B5": {
			{"food", 600.0},
			{"shopping", 200.0},
			{"gas", "220"},
			{"other", 150.0},
		},
		"Budget!D2:E5": {
			{"food", 321.55},
			{"shopping", 0.0},
			{"gas", "$120.00"},
		},
	}}

	r := NewReader(table, testConfig(), nil)
	r.now = func() time.Time { return time.Date(2024, time.September, 15, 12, 0, 0, 0, time.UTC) }

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)

	food := snap.Categories["food"]
	assert.InDelta(t, 600.00, food.Total, 0.001)
	assert.InDelta(t, 321.55, food.Used, 0.001)
	assert.InDelta(t, 278.45, food.Remaining, 0.001)

	// Category with no usage row reads as fully unspent.
	other := snap.Categories["other"]
	assert.InDelta(t, 150.00, other.Remaining, 0.001)

	// September 15th of a 30-day month.
	assert.InDelta(t, 50.0, snap.PercentMonthPassed, 0.001)

	// (220 - 120) / 40 refuels left.
	assert.InDelta(t, 40.00, snap.FillupPrice, 0.001)
	assert.InDelta(t, 2.5, snap.FillupsLeft, 0.001)
}

func TestReader_Savings(t *testing.T) {
	table := &fakeBatchTable{ranges: map[string][][]any{
		"Savings!A2:B8": {
			{"emergency", "$1,000.00"},
			{"treatYoSelf", "$52.10"},
			{"", "$ignored"},
		},
	}}

	r := NewReader(table, testConfig(), nil)

	savings, err := r.Savings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "$1,000.00", savings["emergency"])
	assert.Equal(t, "$52.10", savings["treatYoSelf"])
	assert.Len(t, savings, 2)
}
