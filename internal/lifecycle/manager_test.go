package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/service"
	"github.com/Veraticus/dre-classifier/internal/storage"
	"github.com/Veraticus/dre-classifier/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	return testutil.SetupTestDB(t)
}

func createRule(t *testing.T, store *storage.SQLiteStorage, rule model.Rule) model.Rule {
	t.Helper()
	if rule.TenantID == "" {
		rule.TenantID = "t1"
	}
	if rule.MatchType == "" {
		rule.MatchType = model.MatchContains
	}
	if rule.CategoryID == "" {
		rule.CategoryID = "cat-rent"
	}
	if rule.Confidence == 0 {
		rule.Confidence = 0.8
	}
	require.NoError(t, store.CreateRule(context.Background(), &rule))
	return rule
}

func TestManager_PromotionOnThirdPositiveUse(t *testing.T) {
	store := newTestStore(t)
	manager := NewManager(store, nil, Config{ValidationThreshold: 3})
	ctx := context.Background()

	rule := createRule(t, store, model.Rule{Pattern: "ALUGUEL", Status: model.RuleCandidate})

	for i := 1; i <= 2; i++ {
		updated, err := manager.RecordPositiveUse(ctx, "t1", rule.ID, "tx")
		require.NoError(t, err)
		assert.Equal(t, model.RuleCandidate, updated.Status, "use %d", i)
	}

	updated, err := manager.RecordPositiveUse(ctx, "t1", rule.ID, "tx-3")
	require.NoError(t, err)
	assert.Equal(t, model.RuleActive, updated.Status)
	assert.Equal(t, 3, updated.ValidationCount)
	assert.Equal(t, 3, updated.UsageCount)

	stored, err := store.GetRule(ctx, "t1", rule.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RuleActive, stored.Status)
	assert.NotNil(t, stored.LastUsedAt)

	feedback, err := store.ListRuleFeedback(ctx, "t1", rule.ID)
	require.NoError(t, err)
	require.Len(t, feedback, 3)
	for _, f := range feedback {
		assert.Equal(t, model.FeedbackConfirmed, f.Outcome)
	}
}

func TestManager_PositiveUseKeepsNonCandidateStatus(t *testing.T) {
	store := newTestStore(t)
	manager := NewManager(store, nil, Config{})
	ctx := context.Background()

	rule := createRule(t, store, model.Rule{Pattern: "ALUGUEL", Status: model.RuleRefined})
	for i := 0; i < 4; i++ {
		_, err := manager.RecordPositiveUse(ctx, "t1", rule.ID, "")
		require.NoError(t, err)
	}

	stored, err := store.GetRule(ctx, "t1", rule.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RuleRefined, stored.Status)
}

func TestManager_RecordNegativeUse(t *testing.T) {
	store := newTestStore(t)
	manager := NewManager(store, nil, Config{})
	ctx := context.Background()

	rule := createRule(t, store, model.Rule{Pattern: "ALUGUEL", Status: model.RuleActive, ValidationCount: 2})

	for i := 1; i <= 3; i++ {
		updated, err := manager.RecordNegativeUse(ctx, "t1", rule.ID, "tx", "cat-other", "")
		require.NoError(t, err)
		assert.Equal(t, model.RuleActive, updated.Status, "negative %d", i)
	}

	updated, err := manager.RecordNegativeUse(ctx, "t1", rule.ID, "tx-4", "cat-other", "not rent")
	require.NoError(t, err)
	assert.Equal(t, model.RuleInactive, updated.Status)
	assert.Equal(t, 4, updated.NegativeCount)

	feedback, err := store.ListRuleFeedback(ctx, "t1", rule.ID)
	require.NoError(t, err)
	require.Len(t, feedback, 4)
	var notes []string
	for _, f := range feedback {
		assert.Equal(t, model.FeedbackCorrected, f.Outcome)
		assert.Equal(t, "cat-other", f.CorrectedCategoryID)
		notes = append(notes, f.Note)
	}
	assert.Contains(t, notes, "not rent")

	_, err = manager.RecordNegativeUse(ctx, "t1", "missing", "tx", "cat", "")
	assert.Error(t, err)
}

func TestManager_DeactivateLowPerformingRules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	recent := now.Add(-24 * time.Hour)
	old := now.Add(-120 * 24 * time.Hour)

	good := createRule(t, store, model.Rule{Pattern: "GOOD", Status: model.RuleActive, ValidationCount: 8, NegativeCount: 2, LastUsedAt: &recent})
	poor := createRule(t, store, model.Rule{Pattern: "POOR", Status: model.RuleActive, ValidationCount: 2, NegativeCount: 4, LastUsedAt: &recent})
	fewSamples := createRule(t, store, model.Rule{Pattern: "FEW", Status: model.RuleActive, ValidationCount: 1, NegativeCount: 2, LastUsedAt: &recent})
	stale := createRule(t, store, model.Rule{Pattern: "STALE", Status: model.RuleActive, ValidationCount: 10, LastUsedAt: &old})
	inactive := createRule(t, store, model.Rule{Pattern: "OFF", Status: model.RuleInactive, NegativeCount: 10, LastUsedAt: &old})

	manager := NewManager(store, nil, Config{Now: func() time.Time { return now }})
	report, err := manager.DeactivateLowPerformingRules(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, 4, report.Examined)
	assert.Equal(t, []string{poor.ID}, report.LowPrecision)
	assert.Equal(t, []string{stale.ID}, report.Stale)

	for id, want := range map[string]model.RuleStatus{
		good.ID:       model.RuleActive,
		poor.ID:       model.RuleInactive,
		fewSamples.ID: model.RuleActive,
		stale.ID:      model.RuleInactive,
		inactive.ID:   model.RuleInactive,
	} {
		got, err := store.GetRule(ctx, "t1", id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, got.Pattern)
	}
}

func TestManager_StaleUsesCreationWhenNeverUsed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := createRule(t, store, model.Rule{Pattern: "NEVER USED", Status: model.RuleCandidate})

	later := time.Now().Add(91 * 24 * time.Hour)
	manager := NewManager(store, nil, Config{Now: func() time.Time { return later }})
	report, err := manager.DeactivateLowPerformingRules(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{rule.ID}, report.Stale)
}

func TestPrecision(t *testing.T) {
	assert.InDelta(t, 1.0, Precision(model.Rule{}), 1e-9)
	assert.InDelta(t, 0.75, Precision(model.Rule{ValidationCount: 3, NegativeCount: 1}), 1e-9)
}

func TestManager_RefineRule(t *testing.T) {
	store := newTestStore(t)
	manager := NewManager(store, nil, Config{})
	ctx := context.Background()

	parent := createRule(t, store, model.Rule{
		Pattern: "ALUGUEL", Status: model.RuleActive, UsageCount: 12, Confidence: 0.82,
		Fields: []model.RuleField{model.FieldDescription, model.FieldMemo},
	})

	child, err := manager.RefineRule(ctx, "t1", parent.ID, "ALUGUEL GALPAO", model.MatchContains)
	require.NoError(t, err)
	assert.Equal(t, model.RuleRefined, child.Status)
	assert.Equal(t, parent.ID, child.ParentRuleID)
	assert.Equal(t, parent.CategoryID, child.CategoryID)
	assert.Equal(t, 0, child.UsageCount)
	assert.InDelta(t, 0.82, child.Confidence, 1e-9)

	storedParent, err := store.GetRule(ctx, "t1", parent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RuleInactive, storedParent.Status)

	storedChild, err := store.GetRule(ctx, "t1", child.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.RuleField{model.FieldDescription, model.FieldMemo}, storedChild.Fields)

	_, err = manager.RefineRule(ctx, "t1", parent.ID, "X", model.MatchContains)
	assert.ErrorIs(t, err, ErrRuleInactive)

	_, err = manager.RefineRule(ctx, "t1", child.ID, "([", model.MatchRegex)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	grandchild, err := manager.RefineRule(ctx, "t1", child.ID, "ALUGUEL GALPAO NORTE", "")
	require.NoError(t, err)
	assert.Equal(t, model.MatchContains, grandchild.MatchType)
}

func TestManager_ConsolidateRules(t *testing.T) {
	store := newTestStore(t)
	manager := NewManager(store, nil, Config{})
	ctx := context.Background()

	busiest := createRule(t, store, model.Rule{Pattern: "ALUGUEL GALPAO", Status: model.RuleActive, UsageCount: 40, ValidationCount: 10, Confidence: 0.8})
	narrower := createRule(t, store, model.Rule{Pattern: "ALUGUEL GALPAO CENTRO", Status: model.RuleActive, UsageCount: 5, ValidationCount: 2, Confidence: 0.85})
	typo := createRule(t, store, model.Rule{Pattern: "ALUGEL GALPAO", Status: model.RuleRefined, UsageCount: 3, NegativeCount: 1})
	otherCategory := createRule(t, store, model.Rule{Pattern: "ALUGUEL GALPAO", Status: model.RuleActive, CategoryID: "cat-other"})
	unrelated := createRule(t, store, model.Rule{Pattern: "CONDOMINIO", Status: model.RuleActive})
	regex := createRule(t, store, model.Rule{Pattern: "ALUGUEL.*", MatchType: model.MatchRegex, Status: model.RuleActive})

	merges, err := manager.ConsolidateRules(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, merges, 1)
	assert.Equal(t, busiest.ID, merges[0].SurvivorID)
	assert.ElementsMatch(t, []string{narrower.ID, typo.ID}, merges[0].MergedIDs)

	survivor, err := store.GetRule(ctx, "t1", busiest.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RuleConsolidated, survivor.Status)
	assert.Equal(t, 48, survivor.UsageCount)
	assert.Equal(t, 12, survivor.ValidationCount)
	assert.Equal(t, 1, survivor.NegativeCount)
	assert.InDelta(t, 0.85, survivor.Confidence, 1e-9)

	for _, id := range []string{narrower.ID, typo.ID} {
		r, err := store.GetRule(ctx, "t1", id)
		require.NoError(t, err)
		assert.Equal(t, model.RuleInactive, r.Status)
		assert.Equal(t, busiest.ID, r.ParentRuleID)
	}
	for _, id := range []string{otherCategory.ID, unrelated.ID, regex.ID} {
		r, err := store.GetRule(ctx, "t1", id)
		require.NoError(t, err)
		assert.Equal(t, model.RuleActive, r.Status, r.Pattern)
	}

	// A second pass finds nothing new to merge.
	merges, err = manager.ConsolidateRules(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, merges)
}

// usageAfterList records one extra use of a rule right after the matchable
// rules are listed, as a categorization running alongside would.
type usageAfterList struct {
	*storage.SQLiteStorage
	ruleID string
}

func (s *usageAfterList) ListMatchableRules(ctx context.Context, tenantID string) ([]model.Rule, error) {
	rules, err := s.SQLiteStorage.ListMatchableRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.IncrementRuleUsage(ctx, tenantID, s.ruleID, time.Now()); err != nil {
		return nil, err
	}
	return rules, nil
}

func TestManager_ConsolidateRulesKeepsConcurrentUsage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	busiest := createRule(t, store, model.Rule{Pattern: "ALUGUEL GALPAO", Status: model.RuleActive, UsageCount: 40})
	narrower := createRule(t, store, model.Rule{Pattern: "ALUGUEL GALPAO CENTRO", Status: model.RuleActive, UsageCount: 5})

	manager := NewManager(&usageAfterList{SQLiteStorage: store, ruleID: busiest.ID}, nil, Config{})
	merges, err := manager.ConsolidateRules(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, merges, 1)
	assert.Equal(t, []string{narrower.ID}, merges[0].MergedIDs)

	survivor, err := store.GetRule(ctx, "t1", busiest.ID)
	require.NoError(t, err)
	assert.Equal(t, 46, survivor.UsageCount)
	assert.Equal(t, model.RuleConsolidated, survivor.Status)
	assert.NotNil(t, survivor.LastUsedAt)
}

// staleRuleView serves the rule as it was before another writer retired it.
type staleRuleView struct {
	*storage.SQLiteStorage
	stale model.Rule
}

func (s *staleRuleView) GetRule(_ context.Context, _, _ string) (*model.Rule, error) {
	r := s.stale
	return &r, nil
}

func TestManager_RefineRuleOfRetiredParentCreatesNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent := createRule(t, store, model.Rule{Pattern: "ALUGUEL", Status: model.RuleActive})
	require.NoError(t, store.UpdateRuleStatus(ctx, "t1", parent.ID, model.RuleInactive))

	manager := NewManager(&staleRuleView{SQLiteStorage: store, stale: parent}, nil, Config{})
	_, err := manager.RefineRule(ctx, "t1", parent.ID, "ALUGUEL GALPAO", model.MatchContains)
	require.Error(t, err)

	rules, err := store.ListRules(ctx, "t1", service.RuleFilter{})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, parent.ID, rules[0].ID)
}
