package categories_test

import (
	"context"
	"testing"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/testutil"
	"github.com/Veraticus/dre-classifier/internal/testutil/categories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	cats := categories.NewBuilder("t1").
		WithCategory(categories.Rent).
		WithCategories(categories.Rent, categories.ProductSales).
		WithInactive(categories.BankFees).
		Build()

	require.Len(t, cats, 3)
	assert.Equal(t, []string{"cat-aluguel", "cat-vendas", "cat-tarifas"}, cats.IDs())
	assert.False(t, cats.MustFind(t, categories.BankFees).IsActive)

	sales := cats.MustFind(t, categories.ProductSales)
	assert.Equal(t, "t1", sales.TenantID)
	assert.Equal(t, model.CategoryTypeRevenue, sales.Type)
	assert.Equal(t, model.GroupGrossRevenue, sales.DREGroup)
	assert.Nil(t, cats.Find(categories.Payroll))
}

func TestStandardChartIsValid(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range categories.Standard("t1") {
		assert.True(t, c.Type.Valid(), c.Name)
		assert.True(t, c.DREGroup.Valid(), c.Name)
		assert.False(t, seen[c.ID], "duplicate ID %s", c.ID)
		seen[c.ID] = true
	}
}

func TestSetupTestDBWithBuilder(t *testing.T) {
	store, cats := testutil.SetupTestDBWithBuilder(t, "t1", func(b *categories.Builder) *categories.Builder {
		return b.WithStandardChart().WithInactive("Antiga")
	})

	active, err := store.ListActiveCategories(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, active, len(cats)-1)

	all, err := store.ListCategories(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, all, len(cats))
}
