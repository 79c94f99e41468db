// Package model defines the core domain models used throughout the application.
package model

// CategoryType is the coarse accounting nature of a chart-of-accounts leaf.
type CategoryType string

// Category type constants.
const (
	CategoryTypeRevenue           CategoryType = "revenue"
	CategoryTypeDeduction         CategoryType = "deduction"
	CategoryTypeVariableCost      CategoryType = "variable_cost"
	CategoryTypeFixedCost         CategoryType = "fixed_cost"
	CategoryTypeNonOperational    CategoryType = "non_operational"
	CategoryTypeFinancialMovement CategoryType = "financial_movement"
)

// DREGroup tags the position of a category in the P&L (DRE) waterfall.
type DREGroup string

// DRE group constants.
const (
	GroupGrossRevenue         DREGroup = "gross_revenue"
	GroupRevenueDeductions    DREGroup = "revenue_deductions"
	GroupVariableCosts        DREGroup = "variable_costs"
	GroupFixedCosts           DREGroup = "fixed_costs"
	GroupNonOperatingRevenue  DREGroup = "non_operating_revenue"
	GroupNonOperatingExpenses DREGroup = "non_operating_expenses"
	GroupFinancialMovements   DREGroup = "financial_movements"
)

// Category is a tenant-owned chart-of-accounts leaf. The engine never mutates it.
type Category struct {
	ID       string
	TenantID string
	Name     string
	Type     CategoryType
	DREGroup DREGroup
	IsActive bool
}

// IsExpenseLike reports whether money normally leaves the account for this type.
func (t CategoryType) IsExpenseLike() bool {
	switch t {
	case CategoryTypeDeduction, CategoryTypeVariableCost, CategoryTypeFixedCost:
		return true
	}
	return false
}

// IsRevenueLike reports whether money normally enters the account for this type.
func (t CategoryType) IsRevenueLike() bool {
	return t == CategoryTypeRevenue
}

// Valid reports whether t is a known category type.
func (t CategoryType) Valid() bool {
	switch t {
	case CategoryTypeRevenue, CategoryTypeDeduction, CategoryTypeVariableCost,
		CategoryTypeFixedCost, CategoryTypeNonOperational, CategoryTypeFinancialMovement:
		return true
	}
	return false
}

// IsExpenseLike reports whether the group sits on the outflow side of the waterfall.
func (g DREGroup) IsExpenseLike() bool {
	switch g {
	case GroupRevenueDeductions, GroupVariableCosts, GroupFixedCosts, GroupNonOperatingExpenses:
		return true
	}
	return false
}

// IsRevenueLike reports whether the group sits on the inflow side of the waterfall.
func (g DREGroup) IsRevenueLike() bool {
	return g == GroupGrossRevenue || g == GroupNonOperatingRevenue
}

// IsOperating reports whether the group contributes to the operating result.
func (g DREGroup) IsOperating() bool {
	switch g {
	case GroupGrossRevenue, GroupRevenueDeductions, GroupVariableCosts, GroupFixedCosts:
		return true
	}
	return false
}

// Valid reports whether g is a known group.
func (g DREGroup) Valid() bool {
	switch g {
	case GroupGrossRevenue, GroupRevenueDeductions, GroupVariableCosts, GroupFixedCosts,
		GroupNonOperatingRevenue, GroupNonOperatingExpenses, GroupFinancialMovements:
		return true
	}
	return false
}
