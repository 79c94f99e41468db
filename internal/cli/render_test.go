package cli

import (
	"bytes"
	"io"
	"testing"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteResult(t *testing.T) {
	var out bytes.Buffer
	err := WriteResult(&out, model.CategorizationResult{
		CategoryName: "Salários e Encargos",
		Confidence:   85,
		Source:       model.SourceRule,
		RuleID:       "r-1",
		MovementType: model.MovementOperatingExpense,
		Reason:       model.NewReason("matched exact rule", model.RuleMatchMetadata{RuleID: "r-1"}),
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Salários e Encargos")
	assert.Contains(t, text, "85")
	assert.Contains(t, text, "accepted")
	assert.Contains(t, text, "RULE_MATCH")
	assert.Contains(t, text, "r-1")
}

func TestWriteResult_NeedsReview(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteResult(&out, model.CategorizationResult{
		CategoryName: model.UnclassifiedName,
		Source:       model.SourceManual,
		NeedsReview:  true,
		Reason:       model.NewReason("no layer produced a candidate", model.ManualFallbackMetadata{}),
	}))

	assert.Contains(t, out.String(), "needs review")
	assert.NotContains(t, out.String(), "Rule:")
}

func TestWriteTables(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteCategories(&out, []model.Category{
		{ID: "cat-rent", Name: "Aluguel", Type: model.CategoryTypeFixedCost, DREGroup: model.GroupFixedCosts, IsActive: true},
	}))
	assert.Contains(t, out.String(), "cat-rent")
	assert.Contains(t, out.String(), "fixed_costs")

	out.Reset()
	require.NoError(t, WriteRules(&out, []model.Rule{
		{ID: "r-1", Pattern: "ALUGUEL", MatchType: model.MatchContains, CategoryID: "cat-rent",
			Status: model.RuleActive, Confidence: 0.8, UsageCount: 7, ValidationCount: 5, NegativeCount: 1},
	}))
	assert.Contains(t, out.String(), "ALUGUEL")
	assert.Contains(t, out.String(), "cat-rent")
	assert.Contains(t, out.String(), "7/5/1")
}

func TestSummarize(t *testing.T) {
	s := Summarize([]model.CategorizationResult{
		{Source: model.SourceRule},
		{Source: model.SourceRule},
		{Source: model.SourceAI, NeedsReview: true},
		{Source: model.SourceManual, NeedsReview: true},
	})

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Accepted)
	assert.Equal(t, 2, s.NeedsReview)
	assert.Equal(t, 2, s.BySource[model.SourceRule])

	var out bytes.Buffer
	require.NoError(t, WriteSummary(&out, s))
	assert.Contains(t, out.String(), "Needs review")
	assert.Contains(t, out.String(), "manual")
}

func TestNewProgressBar(t *testing.T) {
	bar := NewProgressBar(io.Discard, 3, "Categorizing")
	for i := 0; i < 3; i++ {
		require.NoError(t, bar.Add(1))
	}
	assert.True(t, bar.IsFinished())
}
