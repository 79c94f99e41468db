package engine

import (
	"context"
	"time"

	"github.com/Veraticus/dre-classifier/internal/history"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/shopspring/decimal"
)

// AIClassifier asks a generative model for a category. It must not depend on
// any particular provider; failures are treated as "no candidate".
type AIClassifier interface {
	Classify(ctx context.Context, txn model.TransactionContext, tenantID string) (*model.AIClassification, error)
}

// ResultCache is the write-through cache consulted first.
type ResultCache interface {
	Lookup(tenantID, description string, threshold float64) (model.CacheEntry, bool)
	Store(tenantID, description, categoryID, categoryName string, confidence float64) bool
}

// RuleSource provides matchable rules and records rule hits.
type RuleSource interface {
	ListMatchableRules(ctx context.Context, tenantID string) ([]model.Rule, error)
	IncrementRuleUsage(ctx context.Context, tenantID, id string, usedAt time.Time) error
}

// HistoryFinder finds the closest recently categorized transaction.
type HistoryFinder interface {
	Find(ctx context.Context, tenantID, description string, daysLimit int) (*history.Match, error)
}

// AutoRuleGenerator receives confident AI classifications for clustering.
type AutoRuleGenerator interface {
	AddToCluster(ctx context.Context, tenantID, transactionID, description string, category model.Category, confidence float64) (*model.TransactionCluster, error)
}

// MovementClassifier tags the economic nature of a transaction.
type MovementClassifier interface {
	Classify(description, memo string, amount decimal.Decimal) model.MovementType
}

// AmbiguityPolicy names the predicate that flags text as too generic, if any.
type AmbiguityPolicy interface {
	Check(text string) (string, bool)
}
