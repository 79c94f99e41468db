// Package categories provides a DRE chart of accounts for tests.
//
// Example usage:
//
//	cats := categories.NewBuilder("t1").
//		WithStandardChart().
//		WithInactive("Antiga").
//		Build()
package categories

import (
	"testing"

	"github.com/Veraticus/dre-classifier/internal/model"
)

// Name is a strongly-typed category name from the test chart.
type Name string

// Names of the test chart.
const (
	ProductSales Name = "Vendas de Produtos"
	ServiceSales Name = "Prestação de Serviços"
	SalesTaxes   Name = "Impostos sobre Vendas"
	Supplies     Name = "Insumos"
	Suppliers    Name = "Fornecedores"
	Payroll      Name = "Salários e Encargos"
	Rent         Name = "Aluguel"
	BankFees     Name = "Tarifas Bancárias"
	Interest     Name = "Juros Recebidos"
	AssetSales   Name = "Venda de Imobilizado"
	Transfers    Name = "Transferências entre Contas"
	LoanRepay    Name = "Pagamento de Empréstimos"
)

type entry struct {
	id    string
	typ   model.CategoryType
	group model.DREGroup
}

var chart = map[Name]entry{
	ProductSales: {"cat-vendas", model.CategoryTypeRevenue, model.GroupGrossRevenue},
	ServiceSales: {"cat-servicos", model.CategoryTypeRevenue, model.GroupGrossRevenue},
	SalesTaxes:   {"cat-impostos", model.CategoryTypeDeduction, model.GroupRevenueDeductions},
	Supplies:     {"cat-insumos", model.CategoryTypeVariableCost, model.GroupVariableCosts},
	Suppliers:    {"cat-fornecedores", model.CategoryTypeVariableCost, model.GroupVariableCosts},
	Payroll:      {"cat-salarios", model.CategoryTypeFixedCost, model.GroupFixedCosts},
	Rent:         {"cat-aluguel", model.CategoryTypeFixedCost, model.GroupFixedCosts},
	BankFees:     {"cat-tarifas", model.CategoryTypeFixedCost, model.GroupFixedCosts},
	Interest:     {"cat-juros", model.CategoryTypeNonOperational, model.GroupNonOperatingRevenue},
	AssetSales:   {"cat-imobilizado", model.CategoryTypeNonOperational, model.GroupNonOperatingRevenue},
	Transfers:    {"cat-transferencias", model.CategoryTypeFinancialMovement, model.GroupFinancialMovements},
	LoanRepay:    {"cat-emprestimos", model.CategoryTypeFinancialMovement, model.GroupFinancialMovements},
}

var standardChart = []Name{
	ProductSales, ServiceSales, SalesTaxes, Supplies, Suppliers, Payroll,
	Rent, BankFees, Interest, AssetSales, Transfers, LoanRepay,
}

// Category returns the named chart entry for tenantID. Names outside the
// chart become fixed costs with a derived ID.
func Category(tenantID string, name Name) model.Category {
	e, ok := chart[name]
	if !ok {
		e = entry{id: "cat-" + string(name), typ: model.CategoryTypeFixedCost, group: model.GroupFixedCosts}
	}
	return model.Category{
		ID:       e.id,
		TenantID: tenantID,
		Name:     string(name),
		Type:     e.typ,
		DREGroup: e.group,
		IsActive: true,
	}
}

// Standard returns the full test chart for tenantID.
func Standard(tenantID string) Categories {
	return NewBuilder(tenantID).WithStandardChart().Build()
}

// Categories is a built set of test categories.
type Categories []model.Category

// Find returns the category with the given name, or nil.
func (c Categories) Find(name Name) *model.Category {
	for i := range c {
		if c[i].Name == string(name) {
			return &c[i]
		}
	}
	return nil
}

// MustFind returns the category with the given name or fails the test.
func (c Categories) MustFind(t *testing.T, name Name) model.Category {
	t.Helper()
	cat := c.Find(name)
	if cat == nil {
		t.Fatalf("category %q not found in test data", name)
	}
	return *cat
}

// IDs returns the category IDs in order.
func (c Categories) IDs() []string {
	ids := make([]string, len(c))
	for i, cat := range c {
		ids[i] = cat.ID
	}
	return ids
}

// Builder accumulates test categories for one tenant. Duplicates are dropped.
type Builder struct {
	inactive map[Name]bool
	tenantID string
	names    []Name
}

// NewBuilder creates a builder for tenantID.
func NewBuilder(tenantID string) *Builder {
	return &Builder{tenantID: tenantID, inactive: make(map[Name]bool)}
}

// WithCategory adds one category.
func (b *Builder) WithCategory(name Name) *Builder {
	return b.WithCategories(name)
}

// WithCategories adds several categories.
func (b *Builder) WithCategories(names ...Name) *Builder {
	for _, n := range names {
		if !b.has(n) {
			b.names = append(b.names, n)
		}
	}
	return b
}

// WithStandardChart adds every category of the standard chart.
func (b *Builder) WithStandardChart() *Builder {
	return b.WithCategories(standardChart...)
}

// WithInactive adds a category marked inactive.
func (b *Builder) WithInactive(name Name) *Builder {
	b.inactive[name] = true
	return b.WithCategory(name)
}

// Build returns the accumulated categories.
func (b *Builder) Build() Categories {
	out := make(Categories, 0, len(b.names))
	for _, n := range b.names {
		c := Category(b.tenantID, n)
		c.IsActive = !b.inactive[n]
		out = append(out, c)
	}
	return out
}

func (b *Builder) has(name Name) bool {
	for _, n := range b.names {
		if n == name {
			return true
		}
	}
	return false
}
