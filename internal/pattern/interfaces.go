// Package pattern ranks categorization rules against transactions and checks
// proposed categories against basic accounting consistency.
package pattern

import (
	"github.com/Veraticus/dre-classifier/internal/model"
)

// RuleMatcher evaluates transactions against rules.
type RuleMatcher interface {
	// RankMatches returns every matchable rule that fits the transaction, best first.
	RankMatches(rules []model.Rule, txn model.TransactionContext) []Match
}

// CategoryValidator checks that a proposed category is consistent with the transaction.
type CategoryValidator interface {
	// Validate returns the first failed check, or a valid result.
	Validate(txn model.TransactionContext, movement model.MovementType, category model.Category) ValidationResult
}

// Match is a rule that fits a transaction, with its score on the 0-1 scale.
type Match struct {
	Field model.RuleField
	Rule  model.Rule
	Score float64
}

// Score100 returns the match score on the 0-100 scale.
func (m Match) Score100() int {
	return toPercent(m.Score)
}
