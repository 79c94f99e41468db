package model

// Source identifies the layer that produced a categorization. Values are part
// of the contract with the review queue and must not change.
type Source string

// Source constants.
const (
	SourceCache   Source = "cache"
	SourceRule    Source = "rule"
	SourceHistory Source = "history"
	SourceAI      Source = "ai"
	SourceManual  Source = "manual"
)

// MovementType is the coarse economic nature of a transaction.
type MovementType string

// Movement type constants.
const (
	MovementInternalTransfer MovementType = "internal_transfer"
	MovementFinancial        MovementType = "financial"
	MovementInvestment       MovementType = "investment"
	MovementOperatingRevenue MovementType = "operating_revenue"
	MovementNonOperating     MovementType = "non_operating"
	MovementDeduction        MovementType = "deduction"
	MovementDirectCost       MovementType = "direct_cost"
	MovementOperatingExpense MovementType = "operating_expense"
)

// UnclassifiedName is the category name reported when nothing matched.
const UnclassifiedName = "unclassified"

// CategorizationResult is the engine output for one transaction.
// Confidence is on the 0-100 scale.
type CategorizationResult struct {
	Reason       Reason
	CategoryID   string
	CategoryName string
	Source       Source
	RuleID       string
	MovementType MovementType
	Confidence   int
	NeedsReview  bool
}
