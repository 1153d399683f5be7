package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bbirdsall/budgetflow/internal/model"
)

func floatPtr(f float64) *float64 { return &f }

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		rules   []model.Rule
		txn     model.Transaction
		want    string
		wantHit bool
	}{
		{
			name: "basic keyword match",
			rules: []model.Rule{
				{Keyword: "Netflix", Category: "other"},
			},
			txn:     model.Transaction{Details: "NETFLIX.COM 866-579-7172", Amount: 15.49},
			want:    "other",
			wantHit: true,
		},
		{
			name: "longer keyword wins over shorter",
			rules: []model.Rule{
				{Keyword: "Wal", Category: "General"},
				{Keyword: "Walmart Supercenter", Category: "Shopping"},
			},
			txn:     model.Transaction{Details: "WALMART SUPERCENTER #1234", Amount: 52.10},
			want:    "Shopping",
			wantHit: true,
		},
		{
			name: "amount-qualified rule evaluated before amount-less rule",
			rules: []model.Rule{
				{Keyword: "Chevron", Category: "Gas"},
				{Keyword: "Chevron", Category: "Food", Amount: floatPtr(8.50)},
			},
			txn:     model.Transaction{Details: "CHEVRON #55", Amount: 8.50},
			want:    "Food",
			wantHit: true,
		},
		{
			name: "amount-qualified rule skipped when amount differs",
			rules: []model.Rule{
				{Keyword: "Chevron", Category: "Gas"},
				{Keyword: "Chevron", Category: "Food", Amount: floatPtr(8.50)},
			},
			txn:     model.Transaction{Details: "CHEVRON #55", Amount: 40.00},
			want:    "Gas",
			wantHit: true,
		},
		{
			name: "fuel stop override beats user rules",
			rules: []model.Rule{
				{Keyword: "Maverik", Category: "Shopping"},
			},
			txn:     model.Transaction{Details: "MAVERIK #12", Amount: 9.99},
			want:    "food",
			wantHit: true,
		},
		{
			name:    "fuel stop at threshold is gas",
			txn:     model.Transaction{Details: "MAVERIK #12", Amount: 15.00},
			want:    "gas",
			wantHit: true,
		},
		{
			name:    "fuel stop above threshold is gas",
			txn:     model.Transaction{Details: "MAVERICK COUNTRY STORE", Amount: 48.22},
			want:    "gas",
			wantHit: true,
		},
		{
			name: "no match falls through",
			rules: []model.Rule{
				{Keyword: "Netflix", Category: "other"},
			},
			txn:     model.Transaction{Details: "SOME NEW MERCHANT", Amount: 12.00},
			wantHit: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hit := Classify(tt.txn, tt.rules)
			assert.Equal(t, tt.wantHit, hit)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	ruleSet := []model.Rule{
		{Keyword: "Wal", Category: "General"},
		{Keyword: "Chevron", Category: "Gas"},
		{Keyword: "Walmart Supercenter", Category: "Shopping"},
		{Keyword: "Chevron", Category: "Food", Amount: floatPtr(8.50)},
	}
	reversed := []model.Rule{ruleSet[3], ruleSet[2], ruleSet[1], ruleSet[0]}

	txns := []model.Transaction{
		{Details: "WALMART SUPERCENTER #1234", Amount: 52.10},
		{Details: "CHEVRON #55", Amount: 8.50},
		{Details: "CHEVRON #55", Amount: 30.00},
	}

	for _, txn := range txns {
		a, aHit := Classify(txn, ruleSet)
		b, bHit := Classify(txn, reversed)
		assert.Equal(t, a, b, "rule list order must not change the outcome for %q", txn.Details)
		assert.Equal(t, aHit, bHit)

		// Repeated calls return the same result.
		c, _ := Classify(txn, ruleSet)
		assert.Equal(t, a, c)
	}
}

func TestSortBySpecificity(t *testing.T) {
	ruleSet := []model.Rule{
		{Keyword: "Wal", Category: "General"},
		{Keyword: "Walmart Supercenter", Category: "Shopping"},
		{Keyword: "Chevron", Category: "Food", Amount: floatPtr(8.50)},
		{Keyword: "A", Category: "Other", Amount: floatPtr(1.00)},
	}

	sorted := SortBySpecificity(ruleSet)

	// Amount-qualified rules come first regardless of keyword length.
	assert.True(t, sorted[0].HasAmount())
	assert.True(t, sorted[1].HasAmount())
	assert.Equal(t, "Walmart Supercenter", sorted[2].Keyword)
	assert.Equal(t, "Wal", sorted[3].Keyword)

	// Input slice is untouched.
	assert.Equal(t, "Wal", ruleSet[0].Keyword)
}

func TestMatches(t *testing.T) {
	txn := model.Transaction{Details: "NETFLIX.COM", Amount: 15.49}

	assert.True(t, Matches(model.Rule{Keyword: "netflix", Category: "other"}, txn))
	assert.True(t, Matches(model.Rule{Keyword: "Netflix", Category: "other", Amount: floatPtr(15.49)}, txn))
	assert.False(t, Matches(model.Rule{Keyword: "Netflix", Category: "other", Amount: floatPtr(15.50)}, txn))
	assert.False(t, Matches(model.Rule{Keyword: "Hulu", Category: "other"}, txn))
	assert.False(t, Matches(model.Rule{Keyword: "", Category: "other"}, txn))
}
