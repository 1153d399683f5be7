// Package rules holds the user keyword rules and the classifier that maps
// transactions onto budget categories.
package rules

import (
	"math"
	"sort"
	"strings"

	"github.com/bbirdsall/budgetflow/internal/model"
)

// fuelStopMerchants are combined food/fuel vendors whose category depends on
// the amount rather than on any user rule: small purchases are food, the
// rest are gas.
var fuelStopMerchants = []string{"maverik", "maverick"}

const (
	fuelStopFoodThreshold = 15.00
	fuelStopFoodCategory  = "food"
	fuelStopGasCategory   = "gas"
)

// Classify decides a category for a transaction using the given rule
// snapshot. It returns the category and true, or "" and false when no rule
// matches. Precedence, in order:
//
//  1. the fuel-stop merchant override, independent of user rules
//  2. user rules sorted by specificity, first match wins
//
// Classify is a pure function of its inputs; all I/O lives in the caller.
func Classify(txn model.Transaction, ruleSet []model.Rule) (string, bool) {
	if cat, ok := fuelStopOverride(txn); ok {
		return cat, true
	}

	for _, rule := range SortBySpecificity(ruleSet) {
		if Matches(rule, txn) {
			return rule.Category, true
		}
	}

	return "", false
}

// Matches reports whether a single rule matches a transaction: the details
// contain the keyword case-insensitively, and any exact-amount constraint
// holds.
func Matches(rule model.Rule, txn model.Transaction) bool {
	if rule.Keyword == "" {
		return false
	}
	if !strings.Contains(strings.ToLower(txn.Details), strings.ToLower(rule.Keyword)) {
		return false
	}
	if rule.HasAmount() && !amountsEqual(*rule.Amount, txn.Amount) {
		return false
	}
	return true
}

// SortBySpecificity returns a copy of the rules ordered most-specific
// first: rules with an exact-amount constraint before rules without one,
// and longer keywords before shorter ones. More specific substrings must
// win over generic ones regardless of their position in the stored list.
func SortBySpecificity(ruleSet []model.Rule) []model.Rule {
	sorted := make([]model.Rule, len(ruleSet))
	copy(sorted, ruleSet)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].HasAmount() != sorted[j].HasAmount() {
			return sorted[i].HasAmount()
		}
		return len(sorted[i].Keyword) > len(sorted[j].Keyword)
	})

	return sorted
}

func fuelStopOverride(txn model.Transaction) (string, bool) {
	details := strings.ToLower(txn.Details)
	for _, merchant := range fuelStopMerchants {
		if strings.Contains(details, merchant) {
			if txn.Amount < fuelStopFoodThreshold {
				return fuelStopFoodCategory, true
			}
			return fuelStopGasCategory, true
		}
	}
	return "", false
}

// amountsEqual compares amounts at cent precision. Both sides are already
// normalized to two decimal places; comparing cents avoids float drift.
func amountsEqual(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}
