package classification

import "github.com/Veraticus/dre-classifier/internal/model"

// Compatibility lists the category types a movement may land in and the DRE
// groups it must never feed.
type Compatibility struct {
	AllowedTypes  []model.CategoryType
	BlockedGroups []model.DREGroup
}

var operatingGroups = []model.DREGroup{
	model.GroupGrossRevenue,
	model.GroupRevenueDeductions,
	model.GroupVariableCosts,
	model.GroupFixedCosts,
}

var expenseBlockedGroups = []model.DREGroup{
	model.GroupGrossRevenue,
	model.GroupNonOperatingRevenue,
}

var compatibilityTable = map[model.MovementType]Compatibility{
	model.MovementInternalTransfer: {
		AllowedTypes:  []model.CategoryType{model.CategoryTypeFinancialMovement},
		BlockedGroups: operatingGroups,
	},
	model.MovementFinancial: {
		AllowedTypes:  []model.CategoryType{model.CategoryTypeFinancialMovement, model.CategoryTypeNonOperational},
		BlockedGroups: []model.DREGroup{model.GroupGrossRevenue},
	},
	model.MovementInvestment: {
		AllowedTypes:  []model.CategoryType{model.CategoryTypeFinancialMovement, model.CategoryTypeNonOperational},
		BlockedGroups: []model.DREGroup{model.GroupGrossRevenue},
	},
	model.MovementOperatingRevenue: {
		AllowedTypes: []model.CategoryType{model.CategoryTypeRevenue, model.CategoryTypeNonOperational},
		BlockedGroups: []model.DREGroup{
			model.GroupRevenueDeductions,
			model.GroupVariableCosts,
			model.GroupFixedCosts,
			model.GroupNonOperatingExpenses,
		},
	},
	model.MovementNonOperating: {
		AllowedTypes:  []model.CategoryType{model.CategoryTypeNonOperational, model.CategoryTypeFinancialMovement},
		BlockedGroups: []model.DREGroup{model.GroupGrossRevenue},
	},
	model.MovementDeduction: {
		AllowedTypes:  []model.CategoryType{model.CategoryTypeDeduction, model.CategoryTypeVariableCost},
		BlockedGroups: expenseBlockedGroups,
	},
	model.MovementDirectCost: {
		AllowedTypes:  []model.CategoryType{model.CategoryTypeVariableCost, model.CategoryTypeFixedCost},
		BlockedGroups: expenseBlockedGroups,
	},
	model.MovementOperatingExpense: {
		AllowedTypes: []model.CategoryType{
			model.CategoryTypeFixedCost,
			model.CategoryTypeVariableCost,
			model.CategoryTypeNonOperational,
			model.CategoryTypeDeduction,
			model.CategoryTypeFinancialMovement,
		},
		BlockedGroups: expenseBlockedGroups,
	},
}

// CompatibilityFor returns the whitelist and blacklist for a movement type.
// Unknown movement types allow nothing.
func CompatibilityFor(mt model.MovementType) Compatibility {
	return compatibilityTable[mt]
}

// Allows reports whether a category may be assigned to a transaction of the given movement type.
func (c Compatibility) Allows(category model.Category) bool {
	allowed := false
	for _, t := range c.AllowedTypes {
		if t == category.Type {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if category.DREGroup == "" {
		return true
	}
	for _, g := range c.BlockedGroups {
		if g == category.DREGroup {
			return false
		}
	}
	return true
}

// Allows is shorthand for CompatibilityFor(mt).Allows(category).
func Allows(mt model.MovementType, category model.Category) bool {
	return CompatibilityFor(mt).Allows(category)
}
