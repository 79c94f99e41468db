// Package clustering groups confident AI classifications by lexical pattern
// and mints candidate rules from clusters that grow large enough.
package clustering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/service"
	"github.com/Veraticus/dre-classifier/internal/textsim"
	"github.com/google/uuid"
)

// Defaults.
const (
	DefaultMinClusterSize      = 5
	DefaultMinConfidence       = 0.90
	DefaultDuplicateSimilarity = 0.90
	RuleConfidenceFloor        = 0.75
	RuleConfidenceCeiling      = 0.85
)

// Errors returned when a classification cannot join a cluster.
var (
	ErrNoPattern     = errors.New("no usable pattern")
	ErrLowConfidence = errors.New("confidence below clustering minimum")
)

// Store is the persistence the generator needs.
type Store interface {
	service.ClusterStore
	service.RuleStore
}

// DenyList flags text too generic to become a rule.
type DenyList interface {
	IsAmbiguous(text string) bool
}

// Config tunes the generator. Zero values take the defaults.
type Config struct {
	MinClusterSize      int
	MinConfidence       float64
	DuplicateSimilarity float64
}

func (c *Config) applyDefaults() {
	if c.MinClusterSize <= 0 {
		c.MinClusterSize = DefaultMinClusterSize
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	if c.DuplicateSimilarity <= 0 {
		c.DuplicateSimilarity = DefaultDuplicateSimilarity
	}
}

// Generator accumulates clusters and turns them into candidate rules.
type Generator struct {
	store    Store
	denyList DenyList
	logger   *slog.Logger
	cfg      Config
}

// NewGenerator creates a generator. denyList may be nil.
func NewGenerator(store Store, denyList DenyList, logger *slog.Logger, cfg Config) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Generator{store: store, denyList: denyList, logger: logger, cfg: cfg}
}

// Pattern extracts the cluster pattern for a description, rejecting
// generic text.
func (g *Generator) Pattern(description string) (string, bool) {
	pattern, ok := ExtractPattern(description)
	if !ok {
		return "", false
	}
	if g.denyList != nil && g.denyList.IsAmbiguous(pattern) {
		return "", false
	}
	return pattern, true
}

// AddToCluster appends a classification to the pending cluster for its
// (tenant, category, pattern). A missing transaction ID gets a generated one.
func (g *Generator) AddToCluster(ctx context.Context, tenantID, transactionID, description string, category model.Category, confidence float64) (*model.TransactionCluster, error) {
	if confidence < g.cfg.MinConfidence {
		return nil, fmt.Errorf("%w: %.2f", ErrLowConfidence, confidence)
	}
	pattern, ok := g.Pattern(description)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoPattern, description)
	}
	if transactionID == "" {
		transactionID = uuid.NewString()
	}

	cluster, err := g.store.AddClusterMember(ctx, service.ClusterKey{
		TenantID:     tenantID,
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Pattern:      pattern,
	}, model.ClusterMember{
		TransactionID: transactionID,
		Description:   description,
		Confidence:    confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add to cluster: %w", err)
	}

	g.logger.Debug("Added transaction to cluster",
		"tenant_id", tenantID,
		"cluster_id", cluster.ID,
		"pattern", pattern,
		"members", cluster.MemberCount)
	return cluster, nil
}

// Report summarizes a processing pass.
type Report struct {
	MintedRules      []string
	ArchivedClusters []string
	Examined         int
	Failed           int
}

// ProcessPendingClusters mints a candidate rule for every pending cluster that
// reached MinClusterSize, unless the category already has a rule with the same
// or a near-identical pattern, in which case the cluster is archived. Failures
// on one cluster are logged and do not stop the pass.
func (g *Generator) ProcessPendingClusters(ctx context.Context, tenantID string) (Report, error) {
	var report Report

	clusters, err := g.store.ListPendingClusters(ctx, tenantID, g.cfg.MinClusterSize)
	if err != nil {
		return report, fmt.Errorf("failed to list pending clusters: %w", err)
	}

	for _, cluster := range clusters {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++

		ruleID, err := g.processCluster(ctx, cluster)
		switch {
		case err != nil:
			report.Failed++
			g.logger.Warn("Failed to process cluster",
				"tenant_id", tenantID,
				"cluster_id", cluster.ID,
				"error", err)
		case ruleID == "":
			report.ArchivedClusters = append(report.ArchivedClusters, cluster.ID)
		default:
			report.MintedRules = append(report.MintedRules, ruleID)
		}
	}

	if report.Examined > 0 {
		g.logger.Info("Processed pending clusters",
			"tenant_id", tenantID,
			"examined", report.Examined,
			"minted", len(report.MintedRules),
			"archived", len(report.ArchivedClusters),
			"failed", report.Failed)
	}
	return report, nil
}

// processCluster returns the minted rule ID, or "" when the cluster was archived.
func (g *Generator) processCluster(ctx context.Context, cluster model.TransactionCluster) (string, error) {
	duplicate, err := g.findDuplicate(ctx, cluster)
	if err != nil {
		return "", err
	}
	if duplicate != nil {
		g.logger.Debug("Archiving cluster covered by existing rule",
			"cluster_id", cluster.ID,
			"rule_id", duplicate.ID,
			"pattern", cluster.Pattern)
		return "", g.store.ArchiveCluster(ctx, cluster.TenantID, cluster.ID)
	}

	rule := &model.Rule{
		TenantID:     cluster.TenantID,
		Pattern:      cluster.Pattern,
		MatchType:    model.MatchContains,
		CategoryID:   cluster.CategoryID,
		CategoryName: cluster.CategoryName,
		Confidence:   RuleConfidence(cluster.MeanConfidence),
		Status:       model.RuleCandidate,
		Source:       model.RuleSourceAI,
		Fields:       []model.RuleField{model.FieldDescription},
	}
	if err := g.store.CreateRule(ctx, rule); err != nil {
		return "", fmt.Errorf("failed to create rule: %w", err)
	}
	if err := g.store.MarkClusterProcessed(ctx, cluster.TenantID, cluster.ID, rule.ID); err != nil {
		return "", fmt.Errorf("failed to mark cluster processed: %w", err)
	}

	g.logger.Info("Minted candidate rule from cluster",
		"tenant_id", cluster.TenantID,
		"cluster_id", cluster.ID,
		"rule_id", rule.ID,
		"pattern", rule.Pattern,
		"members", cluster.MemberCount,
		"confidence", rule.Confidence)
	return rule.ID, nil
}

func (g *Generator) findDuplicate(ctx context.Context, cluster model.TransactionCluster) (*model.Rule, error) {
	rules, err := g.store.ListRules(ctx, cluster.TenantID, service.RuleFilter{
		CategoryID: cluster.CategoryID,
		Statuses:   []model.RuleStatus{model.RuleCandidate, model.RuleActive, model.RuleRefined, model.RuleConsolidated},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	pattern := textsim.Fold(cluster.Pattern)
	for i := range rules {
		existing := textsim.Fold(rules[i].Pattern)
		if existing == pattern || textsim.Similarity(existing, pattern) > g.cfg.DuplicateSimilarity {
			return &rules[i], nil
		}
	}
	return nil, nil
}

// RuleConfidence maps a cluster's mean AI confidence from [0.90, 1.00] onto
// the [0.75, 0.85] band used for minted rules.
func RuleConfidence(mean float64) float64 {
	conf := RuleConfidenceFloor + (mean-DefaultMinConfidence)/(1-DefaultMinConfidence)*(RuleConfidenceCeiling-RuleConfidenceFloor)
	return min(RuleConfidenceCeiling, max(RuleConfidenceFloor, conf))
}

// String is used in log output.
func (r Report) String() string {
	return fmt.Sprintf("examined=%d minted=%d archived=%d failed=%d",
		r.Examined, len(r.MintedRules), len(r.ArchivedClusters), r.Failed)
}
