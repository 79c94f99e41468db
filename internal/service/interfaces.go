// Package service defines the store contracts consumed by the categorization engine.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/dre-classifier/internal/model"
)

// CategoryDirectory is the read-only chart of accounts.
type CategoryDirectory interface {
	ListActiveCategories(ctx context.Context, tenantID string) ([]model.Category, error)
}

// CategoryStore manages the chart of accounts.
type CategoryStore interface {
	CategoryDirectory
	UpsertCategory(ctx context.Context, category *model.Category) error
	GetCategory(ctx context.Context, tenantID, id string) (*model.Category, error)
	DeactivateCategory(ctx context.Context, tenantID, id string) error
}

// RuleFilter narrows rule listings. Zero values match everything.
type RuleFilter struct {
	CategoryID string
	Statuses   []model.RuleStatus
}

// RuleStore persists categorization rules. Counter updates are atomic.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, tenantID, id string) (*model.Rule, error)
	ListRules(ctx context.Context, tenantID string, filter RuleFilter) ([]model.Rule, error)
	ListMatchableRules(ctx context.Context, tenantID string) ([]model.Rule, error)
	UpdateRule(ctx context.Context, rule *model.Rule) error
	UpdateRuleStatus(ctx context.Context, tenantID, id string, status model.RuleStatus) error
	// IncrementRuleUsage bumps usage_count and last_used_at.
	IncrementRuleUsage(ctx context.Context, tenantID, id string, usedAt time.Time) error
	// IncrementRuleValidation bumps usage_count, validation_count and last_used_at
	// and returns the updated rule.
	IncrementRuleValidation(ctx context.Context, tenantID, id string, usedAt time.Time) (*model.Rule, error)
	// IncrementRuleNegative bumps negative_count and returns the updated rule.
	IncrementRuleNegative(ctx context.Context, tenantID, id string) (*model.Rule, error)
	// ReplaceRule creates child and retires the rule named by child.ParentRuleID
	// atomically.
	ReplaceRule(ctx context.Context, child *model.Rule) error
	// MergeRules adds the absorbed rules' counters to the survivor, marks it
	// consolidated and retires the absorbed rules, atomically.
	MergeRules(ctx context.Context, tenantID, survivorID string, absorbedIDs []string) (*model.Rule, error)
}

// ClusterKey identifies the pending cluster a classification belongs to.
type ClusterKey struct {
	TenantID     string
	CategoryID   string
	CategoryName string
	Pattern      string
}

// ClusterStore persists transaction clusters.
type ClusterStore interface {
	// AddClusterMember finds or creates the pending cluster for key and appends
	// the member in a single transaction. Re-adding a member is a no-op.
	AddClusterMember(ctx context.Context, key ClusterKey, member model.ClusterMember) (*model.TransactionCluster, error)
	GetCluster(ctx context.Context, tenantID, id string) (*model.TransactionCluster, error)
	ListPendingClusters(ctx context.Context, tenantID string, minSize int) ([]model.TransactionCluster, error)
	ListClusterMembers(ctx context.Context, tenantID, clusterID string) ([]model.ClusterMember, error)
	MarkClusterProcessed(ctx context.Context, tenantID, clusterID, ruleID string) error
	ArchiveCluster(ctx context.Context, tenantID, clusterID string) error
}

// FeedbackStore persists the rule feedback audit trail.
type FeedbackStore interface {
	SaveRuleFeedback(ctx context.Context, feedback *model.RuleFeedback) error
	ListRuleFeedback(ctx context.Context, tenantID, ruleID string) ([]model.RuleFeedback, error)
}

// HistoryStore is the read and write path over categorized transactions.
type HistoryStore interface {
	SaveCategorizedTransaction(ctx context.Context, txn *model.CategorizedTransaction) error
	// ListRecentCategorized returns rows categorized at or after since, newest first.
	ListRecentCategorized(ctx context.Context, tenantID string, since time.Time, limit int) ([]model.CategorizedTransaction, error)
}

// Storage is the full persistence contract.
type Storage interface {
	CategoryStore
	RuleStore
	ClusterStore
	FeedbackStore
	HistoryStore

	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
