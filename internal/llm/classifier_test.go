package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/dre-classifier/internal/common"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient returns queued responses and errors in order.
type mockClient struct {
	prompts   []string
	responses []ClassificationResponse
	errors    []error
	calls     int
	mu        sync.Mutex
}

func (m *mockClient) Classify(_ context.Context, prompt string) (ClassificationResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)

	if idx < len(m.errors) && m.errors[idx] != nil {
		return ClassificationResponse{}, m.errors[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return ClassificationResponse{}, errors.New("no more mock responses")
}

func (m *mockClient) Model() string { return "mock-model" }

type staticDirectory struct {
	err        error
	categories []model.Category
}

func (d staticDirectory) ListActiveCategories(context.Context, string) ([]model.Category, error) {
	return d.categories, d.err
}

var testCategories = []model.Category{
	{ID: "c1", TenantID: "t1", Name: "Receita de Vendas", Type: model.CategoryTypeRevenue, DREGroup: model.GroupGrossRevenue, IsActive: true},
	{ID: "c2", TenantID: "t1", Name: "Energia Elétrica", Type: model.CategoryTypeFixedCost, DREGroup: model.GroupFixedCosts, IsActive: true},
}

func newTestClassifier(client Client, dir staticDirectory) *Classifier {
	return NewClassifierWithClient(client, dir, nil, Config{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		RateLimit:  6000,
	})
}

func TestClassifier_Classify(t *testing.T) {
	client := &mockClient{responses: []ClassificationResponse{
		{Category: "energia eletrica", Confidence: 0.93, Reasoning: "utility bill"},
	}}
	classifier := newTestClassifier(client, staticDirectory{categories: testCategories})

	txn := model.TransactionContext{
		Description: "DEBITO CEMIG DISTRIBUICAO",
		PayeeName:   "CEMIG",
		Amount:      decimal.RequireFromString("-412.35"),
	}
	got, err := classifier.Classify(context.Background(), txn, "t1")
	require.NoError(t, err)

	assert.Equal(t, "Energia Elétrica", got.CategoryName)
	assert.InDelta(t, 0.93, got.Confidence, 1e-9)
	assert.Equal(t, "utility bill", got.Reasoning)
	assert.Equal(t, "mock-model", got.ModelUsed)

	require.Len(t, client.prompts, 1)
	prompt := client.prompts[0]
	assert.Contains(t, prompt, "DEBITO CEMIG DISTRIBUICAO")
	assert.Contains(t, prompt, "Payee: CEMIG")
	assert.Contains(t, prompt, "-412.35 (outflow)")
	assert.Contains(t, prompt, "- Receita de Vendas [revenue, gross_revenue]")
}

func TestClassifier_CachesIdenticalPrompts(t *testing.T) {
	client := &mockClient{responses: []ClassificationResponse{
		{Category: "Receita de Vendas", Confidence: 0.92},
	}}
	classifier := newTestClassifier(client, staticDirectory{categories: testCategories})
	txn := model.TransactionContext{Description: "PIX RECEBIDO CLIENTE", Amount: decimal.NewFromInt(100)}

	for i := 0; i < 3; i++ {
		got, err := classifier.Classify(context.Background(), txn, "t1")
		require.NoError(t, err)
		assert.Equal(t, "Receita de Vendas", got.CategoryName)
	}
	assert.Equal(t, 1, client.calls)
}

func TestClassifier_RetriesTransientFailures(t *testing.T) {
	transient := common.NewRetryableError(common.ErrProviderUnavailable, true)
	client := &mockClient{
		errors:    []error{transient, transient},
		responses: []ClassificationResponse{{}, {}, {Category: "Receita de Vendas", Confidence: 0.9}},
	}
	classifier := newTestClassifier(client, staticDirectory{categories: testCategories})

	got, err := classifier.Classify(context.Background(), model.TransactionContext{Description: "VENDA"}, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Receita de Vendas", got.CategoryName)
	assert.Equal(t, 3, client.calls)
}

func TestClassifier_Failures(t *testing.T) {
	t.Run("permanent provider error", func(t *testing.T) {
		client := &mockClient{errors: []error{common.NewRetryableError(errors.New("bad request"), false)}}
		classifier := newTestClassifier(client, staticDirectory{categories: testCategories})

		_, err := classifier.Classify(context.Background(), model.TransactionContext{Description: "X"}, "t1")
		require.ErrorIs(t, err, common.ErrClassificationFailed)
		assert.Equal(t, 1, client.calls)
	})

	t.Run("unknown category", func(t *testing.T) {
		client := &mockClient{responses: []ClassificationResponse{{Category: "Marketing", Confidence: 0.95}}}
		classifier := newTestClassifier(client, staticDirectory{categories: testCategories})

		_, err := classifier.Classify(context.Background(), model.TransactionContext{Description: "X"}, "t1")
		require.ErrorIs(t, err, common.ErrUnknownCategory)
	})

	t.Run("no categories", func(t *testing.T) {
		client := &mockClient{}
		classifier := newTestClassifier(client, staticDirectory{})

		_, err := classifier.Classify(context.Background(), model.TransactionContext{Description: "X"}, "t1")
		require.ErrorIs(t, err, common.ErrClassificationFailed)
		assert.Equal(t, 0, client.calls)
	})

	t.Run("directory error", func(t *testing.T) {
		classifier := newTestClassifier(&mockClient{}, staticDirectory{err: errors.New("db down")})

		_, err := classifier.Classify(context.Background(), model.TransactionContext{Description: "X"}, "t1")
		require.Error(t, err)
	})
}
