// Package lifecycle moves rules through candidate, active, refined,
// consolidated and inactive based on usage and reviewer feedback.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/service"
)

// Defaults.
const (
	DefaultValidationThreshold     = 3
	DefaultPrecisionFloor          = 0.6
	DefaultMinSamples              = 5
	DefaultStaleAfter              = 90 * 24 * time.Hour
	DefaultConsolidationSimilarity = 0.90
)

// Errors returned by the manager.
var (
	ErrRuleInactive   = errors.New("rule is inactive")
	ErrInvalidPattern = errors.New("invalid rule pattern")
)

// Store is the persistence the manager needs.
type Store interface {
	service.RuleStore
	service.FeedbackStore
}

// Config tunes the manager. Zero values take the defaults.
type Config struct {
	Now                     func() time.Time
	ValidationThreshold     int
	PrecisionFloor          float64
	MinSamples              int
	StaleAfter              time.Duration
	ConsolidationSimilarity float64
}

func (c *Config) applyDefaults() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.ValidationThreshold <= 0 {
		c.ValidationThreshold = DefaultValidationThreshold
	}
	if c.PrecisionFloor <= 0 {
		c.PrecisionFloor = DefaultPrecisionFloor
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.ConsolidationSimilarity <= 0 {
		c.ConsolidationSimilarity = DefaultConsolidationSimilarity
	}
}

// Manager applies lifecycle transitions. Counter updates are atomic in the
// store; status changes read then write and tolerate last-writer-wins.
type Manager struct {
	store  Store
	logger *slog.Logger
	cfg    Config
}

// NewManager creates a lifecycle manager.
func NewManager(store Store, logger *slog.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Manager{store: store, logger: logger, cfg: cfg}
}

// RecordPositiveUse counts a confirmed hit and promotes a candidate rule to
// active once its validation count reaches the threshold.
func (m *Manager) RecordPositiveUse(ctx context.Context, tenantID, ruleID, transactionID string) (*model.Rule, error) {
	rule, err := m.store.IncrementRuleValidation(ctx, tenantID, ruleID, m.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to record positive use: %w", err)
	}

	if err := m.store.SaveRuleFeedback(ctx, &model.RuleFeedback{
		TenantID:      tenantID,
		RuleID:        ruleID,
		TransactionID: transactionID,
		Outcome:       model.FeedbackConfirmed,
	}); err != nil {
		return nil, fmt.Errorf("failed to save confirmation: %w", err)
	}

	if rule.Status == model.RuleCandidate && rule.ValidationCount >= m.cfg.ValidationThreshold {
		if err := m.store.UpdateRuleStatus(ctx, tenantID, ruleID, model.RuleActive); err != nil {
			return nil, fmt.Errorf("failed to promote rule: %w", err)
		}
		rule.Status = model.RuleActive
		m.logger.Info("Promoted rule",
			"tenant_id", tenantID,
			"rule_id", ruleID,
			"validation_count", rule.ValidationCount)
	}

	return rule, nil
}

// RecordNegativeUse counts a correction and deactivates the rule once
// negatives reach twice the validations.
func (m *Manager) RecordNegativeUse(ctx context.Context, tenantID, ruleID, transactionID, correctedCategoryID, note string) (*model.Rule, error) {
	rule, err := m.store.IncrementRuleNegative(ctx, tenantID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to record negative use: %w", err)
	}

	if err := m.store.SaveRuleFeedback(ctx, &model.RuleFeedback{
		TenantID:            tenantID,
		RuleID:              ruleID,
		TransactionID:       transactionID,
		Outcome:             model.FeedbackCorrected,
		CorrectedCategoryID: correctedCategoryID,
		Note:                note,
	}); err != nil {
		return nil, fmt.Errorf("failed to save correction: %w", err)
	}

	if rule.Status != model.RuleInactive && rule.NegativeCount >= 2*rule.ValidationCount {
		if err := m.store.UpdateRuleStatus(ctx, tenantID, ruleID, model.RuleInactive); err != nil {
			return nil, fmt.Errorf("failed to deactivate rule: %w", err)
		}
		rule.Status = model.RuleInactive
		m.logger.Info("Deactivated rule after corrections",
			"tenant_id", tenantID,
			"rule_id", ruleID,
			"negative_count", rule.NegativeCount,
			"validation_count", rule.ValidationCount)
	}

	return rule, nil
}

// SweepReport lists the rules a sweep deactivated.
type SweepReport struct {
	LowPrecision []string
	Stale        []string
	Examined     int
}

// DeactivateLowPerformingRules deactivates rules whose precision fell below
// the floor after the minimum sample, and rules unused for longer than StaleAfter.
func (m *Manager) DeactivateLowPerformingRules(ctx context.Context, tenantID string) (SweepReport, error) {
	var report SweepReport

	rules, err := m.store.ListRules(ctx, tenantID, service.RuleFilter{
		Statuses: []model.RuleStatus{model.RuleCandidate, model.RuleActive, model.RuleRefined, model.RuleConsolidated},
	})
	if err != nil {
		return report, fmt.Errorf("failed to list rules: %w", err)
	}

	cutoff := m.cfg.Now().Add(-m.cfg.StaleAfter)
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++

		var bucket *[]string
		switch {
		case m.lowPrecision(rule):
			bucket = &report.LowPrecision
		case lastActivity(rule).Before(cutoff):
			bucket = &report.Stale
		default:
			continue
		}

		if err := m.store.UpdateRuleStatus(ctx, tenantID, rule.ID, model.RuleInactive); err != nil {
			return report, fmt.Errorf("failed to deactivate rule %s: %w", rule.ID, err)
		}
		*bucket = append(*bucket, rule.ID)
	}

	if len(report.LowPrecision)+len(report.Stale) > 0 {
		m.logger.Info("Deactivated low-performing rules",
			"tenant_id", tenantID,
			"low_precision", len(report.LowPrecision),
			"stale", len(report.Stale))
	}
	return report, nil
}

// Precision is validations over all reviewed uses. Unreviewed rules score 1.
func Precision(rule model.Rule) float64 {
	samples := rule.ValidationCount + rule.NegativeCount
	if samples == 0 {
		return 1
	}
	return float64(rule.ValidationCount) / float64(samples)
}

func (m *Manager) lowPrecision(rule model.Rule) bool {
	samples := rule.ValidationCount + rule.NegativeCount
	return samples >= m.cfg.MinSamples && Precision(rule) < m.cfg.PrecisionFloor
}

func lastActivity(rule model.Rule) time.Time {
	if rule.LastUsedAt != nil {
		return *rule.LastUsedAt
	}
	return rule.CreatedAt
}

// RefineRule replaces a rule with a narrower child. The child starts with
// fresh counters in status refined; the parent becomes inactive. An empty
// matchType keeps the parent's.
func (m *Manager) RefineRule(ctx context.Context, tenantID, ruleID, pattern string, matchType model.MatchType) (*model.Rule, error) {
	parent, err := m.store.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	if parent.Status == model.RuleInactive {
		return nil, fmt.Errorf("%w: %s", ErrRuleInactive, ruleID)
	}
	if matchType == "" {
		matchType = parent.MatchType
	}
	if err := checkPattern(pattern, matchType); err != nil {
		return nil, err
	}

	child := &model.Rule{
		TenantID:     tenantID,
		Pattern:      pattern,
		MatchType:    matchType,
		CategoryID:   parent.CategoryID,
		CategoryName: parent.CategoryName,
		Confidence:   parent.Confidence,
		Status:       model.RuleRefined,
		Source:       parent.Source,
		ParentRuleID: parent.ID,
		Fields:       parent.Fields,
	}
	if err := m.store.ReplaceRule(ctx, child); err != nil {
		return nil, fmt.Errorf("failed to refine rule: %w", err)
	}

	m.logger.Info("Refined rule",
		"tenant_id", tenantID,
		"parent_rule_id", parent.ID,
		"rule_id", child.ID,
		"pattern", pattern)
	return child, nil
}

func checkPattern(pattern string, matchType model.MatchType) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	switch matchType {
	case model.MatchExact, model.MatchContains:
		return nil
	case model.MatchRegex:
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown match type %q", ErrInvalidPattern, matchType)
}
