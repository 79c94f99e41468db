package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/Veraticus/dre-classifier/internal/ambiguity"
	"github.com/Veraticus/dre-classifier/internal/cache"
	"github.com/Veraticus/dre-classifier/internal/common"
	"github.com/Veraticus/dre-classifier/internal/history"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type harness struct {
	engine  *Engine
	cache   *cache.Cache
	dir     *fakeDirectory
	rules   *countingRules
	history *countingHistory
	ai      *mockAI
	gen     *fakeGenerator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cache:   cache.New(cache.Options{DenyList: ambiguity.DefaultPolicy()}),
		dir:     &fakeDirectory{categories: testCategories},
		rules:   &countingRules{},
		history: &countingHistory{},
		ai:      &mockAI{},
		gen:     &fakeGenerator{},
	}
	e, err := New(Deps{
		Categories: h.dir,
		Cache:      h.cache,
		Rules:      h.rules,
		History:    h.history,
		AI:         h.ai,
		Generator:  h.gen,
	}, Config{})
	require.NoError(t, err)
	h.engine = e
	t.Cleanup(e.Wait)
	return h
}

func (h *harness) aiReturns(name string, confidence float64) {
	h.ai.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(&model.AIClassification{
		CategoryName: name,
		Confidence:   confidence,
		Reasoning:    "model says so",
		ModelUsed:    "test-model",
	}, nil)
}

func (h *harness) aiReturnsNothing() {
	h.ai.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
}

func txn(description, amount string) model.TransactionContext {
	return model.TransactionContext{
		Description: description,
		Amount:      decimal.RequireFromString(amount),
	}
}

func opts() Options {
	return Options{TenantID: "t1"}
}

func TestNew_RequiresCategoryDirectory(t *testing.T) {
	_, err := New(Deps{}, Config{})
	assert.ErrorIs(t, err, ErrNoCategoryDirectory)
}

func TestCategorize_RequiresTenant(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Categorize(context.Background(), txn("ALUGUEL", "-10"), Options{})
	assert.ErrorIs(t, err, common.ErrMissingTenant)
	assert.Zero(t, h.dir.calls.Load())
}

func TestCategorize_CategoryDirectoryFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.dir.err = errors.New("directory offline")

	_, err := h.engine.Categorize(context.Background(), txn("ALUGUEL", "-10"), opts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory offline")
	h.ai.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
}

func TestCategorize_CacheHitShortCircuits(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.cache.Store("t1", "ALUGUEL GALPAO CENTRO", catAluguel.ID, catAluguel.Name, 0.95))

	result, err := h.engine.Categorize(context.Background(), txn("ALUGUEL GALPAO CENTRO", "-5000.00"), opts())
	require.NoError(t, err)

	assert.Equal(t, model.SourceCache, result.Source)
	assert.Equal(t, catAluguel.ID, result.CategoryID)
	assert.Equal(t, 95, result.Confidence)
	assert.False(t, result.NeedsReview)
	assert.Equal(t, model.ReasonCacheHit, result.Reason.Code)

	assert.Zero(t, h.rules.listCalls.Load())
	assert.Zero(t, h.history.calls.Load())
	h.ai.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
}

func TestCategorize_PixReceivedClassifiedByAI(t *testing.T) {
	h := newHarness(t)
	h.aiReturns("Vendas de Produtos", 0.92)

	description := "PIX RECEBIDO 500,00 CLIENTE XPTO"
	result, err := h.engine.Categorize(context.Background(), txn(description, "500.00"), opts())
	require.NoError(t, err)

	assert.Equal(t, model.SourceAI, result.Source)
	assert.Equal(t, catVendas.ID, result.CategoryID)
	assert.Equal(t, 92, result.Confidence)
	assert.False(t, result.NeedsReview)
	assert.Equal(t, model.ReasonAIClassification, result.Reason.Code)
	assert.Equal(t, model.MovementOperatingRevenue, result.MovementType)

	entries := h.cache.Snapshot("t1")
	require.Len(t, entries, 1)
	assert.Equal(t, catVendas.ID, entries[0].CategoryID)
	assert.Empty(t, h.cache.Snapshot("t2"))

	h.engine.Wait()
	calls := h.gen.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, clusterCall{TenantID: "t1", Description: description, CategoryID: catVendas.ID, Confidence: 0.92}, calls[0])
}

func TestCategorize_SalaryRuleMatch(t *testing.T) {
	h := newHarness(t)
	h.rules.rules = []model.Rule{{
		ID: "r-salarios", TenantID: "t1", Pattern: "SALARIOS", MatchType: model.MatchExact,
		CategoryID: catSalarios.ID, Confidence: 0.9, Status: model.RuleActive,
	}}

	result, err := h.engine.Categorize(context.Background(), txn("SALARIOS FUNCIONARIOS", "-8700.00"), opts())
	require.NoError(t, err)

	assert.Equal(t, model.SourceRule, result.Source)
	assert.Equal(t, catSalarios.ID, result.CategoryID)
	assert.Equal(t, "r-salarios", result.RuleID)
	assert.GreaterOrEqual(t, result.Confidence, 70)
	assert.False(t, result.NeedsReview)
	require.Equal(t, model.ReasonRuleMatch, result.Reason.Code)
	meta, ok := result.Reason.Metadata.(model.RuleMatchMetadata)
	require.True(t, ok)
	assert.Equal(t, model.FieldDescription, meta.Field)

	assert.Zero(t, h.history.calls.Load())
	h.ai.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)

	h.engine.Wait()
	assert.Equal(t, []string{"r-salarios"}, h.rules.usage())
}

func TestCategorize_GenericTextIsCapped(t *testing.T) {
	h := newHarness(t)
	h.rules.rules = []model.Rule{{
		ID: "r-sispag", TenantID: "t1", Pattern: "SISPAG", MatchType: model.MatchExact,
		CategoryID: catFornecedores.ID, Confidence: 0.95, Status: model.RuleActive, UsageCount: 100,
	}}
	h.aiReturns("Fornecedores", 0.97)

	result, err := h.engine.Categorize(context.Background(), txn("SISPAG", "-1200.00"), opts())
	require.NoError(t, err)

	assert.LessOrEqual(t, result.Confidence, 60)
	assert.True(t, result.NeedsReview)
	assert.Equal(t, model.ReasonAmbiguousPattern, result.Reason.Code)
	assert.Equal(t, catFornecedores.ID, result.CategoryID)

	assert.Empty(t, h.cache.Snapshot("t1"))
	h.engine.Wait()
	assert.Empty(t, h.rules.usage())
	assert.Empty(t, h.gen.recorded())
}

func TestCategorize_RevenueOnOutflowIsDowngraded(t *testing.T) {
	h := newHarness(t)
	h.aiReturns("Vendas de Produtos", 0.95)

	result, err := h.engine.Categorize(context.Background(), txn("VENDA BALCAO LOJA CENTRO", "-300.00"), opts())
	require.NoError(t, err)

	assert.Equal(t, 60, result.Confidence)
	assert.True(t, result.NeedsReview)
	assert.Equal(t, model.ReasonAccountingViolation, result.Reason.Code)
	assert.Equal(t, catVendas.Name, result.CategoryName)
	assert.Equal(t, model.SourceAI, result.Source)

	meta, ok := result.Reason.Metadata.(model.AccountingViolationMetadata)
	require.True(t, ok)
	assert.Equal(t, model.ReasonAIClassification, meta.Original.Code)
	assert.InDelta(t, 0.95, meta.OriginalConfidence, 1e-9)

	assert.Empty(t, h.cache.Snapshot("t1"))
	h.engine.Wait()
	assert.Empty(t, h.gen.recorded())
}

func TestCategorize_ViolationNeverAcceptedUnderLowThreshold(t *testing.T) {
	h := newHarness(t)
	h.aiReturns("Vendas de Produtos", 0.95)

	o := opts()
	o.ConfidenceThreshold = 50
	result, err := h.engine.Categorize(context.Background(), txn("VENDA BALCAO", "-300.00"), o)
	require.NoError(t, err)
	assert.True(t, result.NeedsReview)
	assert.Equal(t, model.ReasonAccountingViolation, result.Reason.Code)
}

func TestCategorize_ManualFallback(t *testing.T) {
	h := newHarness(t)
	h.aiReturnsNothing()

	result, err := h.engine.Categorize(context.Background(), txn("XPTO 123", "-10.00"), opts())
	require.NoError(t, err)

	assert.Equal(t, model.SourceManual, result.Source)
	assert.Equal(t, model.UnclassifiedName, result.CategoryName)
	assert.Empty(t, result.CategoryID)
	assert.Zero(t, result.Confidence)
	assert.True(t, result.NeedsReview)
	require.Equal(t, model.ReasonManualFallback, result.Reason.Code)

	meta, ok := result.Reason.Metadata.(model.ManualFallbackMetadata)
	require.True(t, ok)
	assert.Equal(t, []model.Source{model.SourceCache, model.SourceRule, model.SourceHistory, model.SourceAI}, meta.Attempted)
}

func TestCategorize_LowConfidenceKeepsBestCandidate(t *testing.T) {
	h := newHarness(t)
	h.history.match = &history.Match{
		Transaction: model.CategorizedTransaction{ID: "old-1", Description: "ALUGUEL GALPAO", CategoryID: catAluguel.ID},
		Similarity:  0.86,
		Confidence:  0.65,
	}
	h.aiReturns("Aluguel", 0.55)

	result, err := h.engine.Categorize(context.Background(), txn("ALUGUEL GALPAO B", "-5000.00"), opts())
	require.NoError(t, err)

	assert.Equal(t, model.SourceHistory, result.Source)
	assert.Equal(t, 65, result.Confidence)
	assert.True(t, result.NeedsReview)
	require.Equal(t, model.ReasonLowConfidence, result.Reason.Code)
	meta, ok := result.Reason.Metadata.(model.LowConfidenceMetadata)
	require.True(t, ok)
	assert.Equal(t, model.SourceHistory, meta.BestSource)
	assert.Equal(t, 70, meta.Threshold)
}

func TestCategorize_LayerFailuresDegrade(t *testing.T) {
	h := newHarness(t)
	h.rules.err = errors.New("rules table locked")
	h.history.err = errors.New("history unavailable")
	h.ai.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(nil, common.ErrProviderUnavailable)

	result, err := h.engine.Categorize(context.Background(), txn("ALUGUEL", "-10.00"), opts())
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, result.Source)
	assert.True(t, result.NeedsReview)
}

func TestCategorize_UnknownAICategoryIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.aiReturns("Marketing Digital", 0.99)

	result, err := h.engine.Categorize(context.Background(), txn("GOOGLE ADS", "-150.00"), opts())
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, result.Source)
	assert.Empty(t, h.cache.Snapshot("t1"))
}

func TestCategorize_NonFiniteAIConfidenceIsDiscarded(t *testing.T) {
	for name, conf := range map[string]float64{"NaN": math.NaN(), "+Inf": math.Inf(1), "-Inf": math.Inf(-1)} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.aiReturns("Vendas de Produtos", conf)

			result, err := h.engine.Categorize(context.Background(), txn("PIX RECEBIDO CLIENTE XPTO", "500.00"), opts())
			require.NoError(t, err)

			assert.Equal(t, model.SourceManual, result.Source)
			assert.Equal(t, model.ReasonManualFallback, result.Reason.Code)
			assert.GreaterOrEqual(t, result.Confidence, 0)
			assert.LessOrEqual(t, result.Confidence, 100)
			assert.True(t, result.NeedsReview)
			assert.Empty(t, h.cache.Snapshot("t1"))

			h.engine.Wait()
			assert.Empty(t, h.gen.recorded())
		})
	}
}

func TestCategorize_RuleCategoryMustFitMovement(t *testing.T) {
	h := newHarness(t)
	h.rules.rules = []model.Rule{
		{ID: "r-venda", TenantID: "t1", Pattern: "LOJA", MatchType: model.MatchExact,
			CategoryID: catVendas.ID, Confidence: 1, Status: model.RuleActive, UsageCount: 500},
		{ID: "r-aluguel", TenantID: "t1", Pattern: "LOJA", MatchType: model.MatchContains,
			CategoryID: catAluguel.ID, Confidence: 0.8, Status: model.RuleActive},
	}

	result, err := h.engine.Categorize(context.Background(), txn("ALUGUEL LOJA SHOPPING", "-4000.00"), opts())
	require.NoError(t, err)
	assert.Equal(t, "r-aluguel", result.RuleID)
	assert.Equal(t, catAluguel.ID, result.CategoryID)
}

func TestCategorize_TenantIsolation(t *testing.T) {
	h := newHarness(t)
	h.aiReturnsNothing()
	require.True(t, h.cache.Store("t1", "ALUGUEL GALPAO", catAluguel.ID, catAluguel.Name, 0.95))

	result, err := h.engine.Categorize(context.Background(), txn("ALUGUEL GALPAO", "-10.00"), Options{TenantID: "t2"})
	require.NoError(t, err)
	assert.NotEqual(t, model.SourceCache, result.Source)
	assert.Equal(t, model.SourceManual, result.Source)
}

func TestCategorize_SkipOptions(t *testing.T) {
	h := newHarness(t)
	h.aiReturns("Aluguel", 0.93)
	require.True(t, h.cache.Store("t1", "ALUGUEL GALPAO", catAluguel.ID, catAluguel.Name, 0.95))

	result, err := h.engine.Categorize(context.Background(), txn("ALUGUEL GALPAO", "-10.00"), Options{
		TenantID:    "t1",
		SkipCache:   true,
		SkipRules:   true,
		SkipHistory: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SourceAI, result.Source)
	assert.Zero(t, h.rules.listCalls.Load())
	assert.Zero(t, h.history.calls.Load())

	result, err = h.engine.Categorize(context.Background(), txn("CONDOMINIO", "-10.00"), Options{
		TenantID: "t1",
		SkipAI:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, result.Source)
	h.ai.AssertNumberOfCalls(t, "Classify", 1)
}

func TestCategorize_AutoLearningGates(t *testing.T) {
	t.Run("skip flag", func(t *testing.T) {
		h := newHarness(t)
		h.aiReturns("Aluguel", 0.97)

		o := opts()
		o.SkipAutoLearning = true
		_, err := h.engine.Categorize(context.Background(), txn("ALUGUEL GALPAO", "-10.00"), o)
		require.NoError(t, err)

		h.engine.Wait()
		assert.Empty(t, h.gen.recorded())
	})

	t.Run("below learning confidence", func(t *testing.T) {
		h := newHarness(t)
		h.aiReturns("Aluguel", 0.85)

		result, err := h.engine.Categorize(context.Background(), txn("ALUGUEL GALPAO", "-10.00"), opts())
		require.NoError(t, err)
		assert.False(t, result.NeedsReview)

		h.engine.Wait()
		assert.Empty(t, h.gen.recorded())
	})
}

func TestCategorize_BackgroundFailuresNeverSurface(t *testing.T) {
	h := newHarness(t)
	h.aiReturns("Aluguel", 0.97)
	h.gen.panic = true

	result, err := h.engine.Categorize(context.Background(), txn("ALUGUEL GALPAO", "-10.00"), opts())
	require.NoError(t, err)
	assert.Equal(t, model.SourceAI, result.Source)
	h.engine.Wait()

	h.gen.panic = false
	h.gen.err = errors.New("cluster store down")
	result, err = h.engine.Categorize(context.Background(), txn("ALUGUEL DEPOSITO", "-10.00"), opts())
	require.NoError(t, err)
	assert.Equal(t, model.SourceAI, result.Source)
}

func TestCategorize_BackgroundOutlivesRequestContext(t *testing.T) {
	h := newHarness(t)
	h.rules.rules = []model.Rule{{
		ID: "r-aluguel", TenantID: "t1", Pattern: "ALUGUEL", MatchType: model.MatchContains,
		CategoryID: catAluguel.ID, Confidence: 0.9, Status: model.RuleActive,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	result, err := h.engine.Categorize(ctx, txn("ALUGUEL GALPAO", "-10.00"), opts())
	cancel()
	require.NoError(t, err)
	require.Equal(t, model.SourceRule, result.Source)

	h.engine.Wait()
	assert.Equal(t, []string{"r-aluguel"}, h.rules.usage())
}

func TestCategorize_ThresholdInvariant(t *testing.T) {
	for _, threshold := range []int{0, 50, 70, 90} {
		for _, conf := range []float64{0, 0.3, 0.6, 0.69, 0.7, 0.75, 0.89, 0.9, 0.99, 1} {
			t.Run(fmt.Sprintf("threshold %d confidence %.2f", threshold, conf), func(t *testing.T) {
				h := newHarness(t)
				h.aiReturns("Aluguel", conf)

				o := opts()
				o.ConfidenceThreshold = threshold
				o.SkipAutoLearning = true
				result, err := h.engine.Categorize(context.Background(), txn("ALUGUEL GALPAO", "-10.00"), o)
				require.NoError(t, err)

				effective := threshold
				if effective <= 0 {
					effective = DefaultConfidenceThreshold
				}
				if result.Confidence < effective {
					assert.True(t, result.NeedsReview)
				} else {
					assert.False(t, result.NeedsReview)
				}
			})
		}
	}
}

func TestCategorize_NilLayersAreSkipped(t *testing.T) {
	dir := &fakeDirectory{categories: testCategories}
	e, err := New(Deps{Categories: dir}, Config{})
	require.NoError(t, err)

	result, err := e.Categorize(context.Background(), txn("ALUGUEL", "-10.00"), opts())
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, result.Source)
	meta, ok := result.Reason.Metadata.(model.ManualFallbackMetadata)
	require.True(t, ok)
	assert.Empty(t, meta.Attempted)
}
