package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/dre-classifier/internal/history"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/stretchr/testify/mock"
)

var catVendas = model.Category{
	ID: "cat-vendas", TenantID: "t1", Name: "Vendas de Produtos",
	Type: model.CategoryTypeRevenue, DREGroup: model.GroupGrossRevenue, IsActive: true,
}

var catSalarios = model.Category{
	ID: "cat-salarios", TenantID: "t1", Name: "Salários e Encargos",
	Type: model.CategoryTypeFixedCost, DREGroup: model.GroupFixedCosts, IsActive: true,
}

var catFornecedores = model.Category{
	ID: "cat-fornecedores", TenantID: "t1", Name: "Fornecedores",
	Type: model.CategoryTypeVariableCost, DREGroup: model.GroupVariableCosts, IsActive: true,
}

var catAluguel = model.Category{
	ID: "cat-aluguel", TenantID: "t1", Name: "Aluguel",
	Type: model.CategoryTypeFixedCost, DREGroup: model.GroupFixedCosts, IsActive: true,
}

var testCategories = []model.Category{catVendas, catSalarios, catFornecedores, catAluguel}

type fakeDirectory struct {
	err        error
	categories []model.Category
	calls      atomic.Int32
}

func (d *fakeDirectory) ListActiveCategories(context.Context, string) ([]model.Category, error) {
	d.calls.Add(1)
	return d.categories, d.err
}

// countingRules serves a fixed rule set and records usage increments.
type countingRules struct {
	err       error
	rules     []model.Rule
	used      []string
	listCalls atomic.Int32
	mu        sync.Mutex
}

func (r *countingRules) ListMatchableRules(context.Context, string) ([]model.Rule, error) {
	r.listCalls.Add(1)
	return r.rules, r.err
}

func (r *countingRules) IncrementRuleUsage(ctx context.Context, _, id string, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used = append(r.used, id)
	return nil
}

func (r *countingRules) usage() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.used...)
}

type countingHistory struct {
	err   error
	match *history.Match
	calls atomic.Int32
}

func (h *countingHistory) Find(context.Context, string, string, int) (*history.Match, error) {
	h.calls.Add(1)
	return h.match, h.err
}

// mockAI is a testify mock of the AI capability.
type mockAI struct {
	mock.Mock
}

func (m *mockAI) Classify(ctx context.Context, txn model.TransactionContext, tenantID string) (*model.AIClassification, error) {
	args := m.Called(ctx, txn, tenantID)
	classification, _ := args.Get(0).(*model.AIClassification)
	return classification, args.Error(1)
}

type clusterCall struct {
	TenantID    string
	Description string
	CategoryID  string
	Confidence  float64
}

type fakeGenerator struct {
	err   error
	calls []clusterCall
	panic bool
	mu    sync.Mutex
}

func (g *fakeGenerator) AddToCluster(_ context.Context, tenantID, _, description string, category model.Category, confidence float64) (*model.TransactionCluster, error) {
	if g.panic {
		panic("generator exploded")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, clusterCall{
		TenantID:    tenantID,
		Description: description,
		CategoryID:  category.ID,
		Confidence:  confidence,
	})
	return &model.TransactionCluster{}, g.err
}

func (g *fakeGenerator) recorded() []clusterCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]clusterCall(nil), g.calls...)
}
