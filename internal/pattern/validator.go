package pattern

import (
	"fmt"
	"math"
	"strings"

	"github.com/Veraticus/dre-classifier/internal/classification"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/textsim"
)

// DowngradedConfidence is the confidence assigned to a categorization that
// failed an accounting check. It sits below every acceptance threshold.
const DowngradedConfidence = 0.60

// Names of the accounting checks, in evaluation order.
const (
	CheckSignType          = "sign_vs_type"
	CheckSignGroup         = "sign_vs_group"
	CheckTransferOperating = "transfer_in_operating_group"
	CheckFinancialRevenue  = "financial_in_gross_revenue"
	CheckCompatibility     = "movement_compatibility"
)

// DefaultReversalKeywords mark refunds and chargebacks, which legitimately
// flow against the category's usual sign.
var DefaultReversalKeywords = []string{"ESTORNO", "DEVOLUCAO", "RESTITUICAO"}

// ValidationResult is the outcome of an accounting check.
type ValidationResult struct {
	Check   string
	Reason  string
	IsValid bool
}

// AccountingValidator implements CategoryValidator.
type AccountingValidator struct {
	reversalKeywords []string
}

// NewAccountingValidator creates a validator with the default reversal keywords.
func NewAccountingValidator() *AccountingValidator {
	return NewAccountingValidatorWithKeywords(DefaultReversalKeywords)
}

// NewAccountingValidatorWithKeywords creates a validator with custom reversal keywords.
func NewAccountingValidatorWithKeywords(keywords []string) *AccountingValidator {
	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if f := textsim.Fold(k); f != "" {
			folded = append(folded, f)
		}
	}
	return &AccountingValidator{reversalKeywords: folded}
}

// Validate runs the checks in order and reports the first failure.
func (v *AccountingValidator) Validate(txn model.TransactionContext, movement model.MovementType, category model.Category) ValidationResult {
	exempt := movement == model.MovementDeduction ||
		movement == model.MovementInternalTransfer ||
		v.IsReversal(txn)

	if !exempt {
		if txn.Amount.IsPositive() && category.Type.IsExpenseLike() {
			return invalid(CheckSignType, "expense category %q (%s) on an inflow", category.Name, category.Type)
		}
		if txn.Amount.IsNegative() && category.Type.IsRevenueLike() {
			return invalid(CheckSignType, "revenue category %q (%s) on an outflow", category.Name, category.Type)
		}
		if txn.Amount.IsPositive() && category.DREGroup.IsExpenseLike() {
			return invalid(CheckSignGroup, "category %q in expense group %s on an inflow", category.Name, category.DREGroup)
		}
		if txn.Amount.IsNegative() && category.DREGroup.IsRevenueLike() {
			return invalid(CheckSignGroup, "category %q in revenue group %s on an outflow", category.Name, category.DREGroup)
		}
	}

	if movement == model.MovementInternalTransfer && category.DREGroup.IsOperating() {
		return invalid(CheckTransferOperating, "internal transfer cannot land in operating group %s", category.DREGroup)
	}

	if (movement == model.MovementFinancial || movement == model.MovementInvestment) &&
		category.DREGroup == model.GroupGrossRevenue {
		return invalid(CheckFinancialRevenue, "%s movement cannot land in gross revenue", movement)
	}

	if !classification.Allows(movement, category) {
		return invalid(CheckCompatibility, "category %q (%s/%s) is not compatible with %s movement",
			category.Name, category.Type, category.DREGroup, movement)
	}

	return ValidationResult{IsValid: true}
}

// IsReversal reports whether the transaction text carries a reversal keyword.
func (v *AccountingValidator) IsReversal(txn model.TransactionContext) bool {
	text := textsim.Fold(strings.TrimSpace(txn.Description + " " + txn.Memo))
	_, ok := textsim.ContainsAny(text, v.reversalKeywords)
	return ok
}

// Downgrade caps confidence at DowngradedConfidence and wraps the original
// reason in an accounting violation reason. The category is kept as a suggestion.
func Downgrade(result ValidationResult, source model.Source, confidence float64, original model.Reason) (float64, model.Reason) {
	reason := model.NewReason(
		fmt.Sprintf("accounting check %s failed: %s", result.Check, result.Reason),
		model.AccountingViolationMetadata{
			Original:           original,
			Check:              result.Check,
			Detail:             result.Reason,
			OriginalSource:     source,
			OriginalConfidence: confidence,
		},
	)
	return math.Min(confidence, DowngradedConfidence), reason
}

func invalid(check, format string, args ...any) ValidationResult {
	return ValidationResult{
		Check:  check,
		Reason: fmt.Sprintf(format, args...),
	}
}
