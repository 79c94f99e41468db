// Package storage provides the SQLite persistence layer for rules, clusters,
// feedback, categories and categorization history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/dre-classifier/internal/model"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrInvalidRule       = errors.New("invalid rule")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidFeedback   = errors.New("invalid feedback")
	ErrInvalidHistoryRow = errors.New("invalid categorized transaction")
	ErrInvalidCluster    = errors.New("invalid cluster")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if strings.TrimSpace(rule.TenantID) == "" {
		return fmt.Errorf("%w: missing tenant ID", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("%w: missing pattern", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.CategoryID) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidRule)
	}
	switch rule.MatchType {
	case model.MatchExact, model.MatchContains, model.MatchRegex:
	default:
		return fmt.Errorf("%w: unknown match type %q", ErrInvalidRule, rule.MatchType)
	}
	if !rule.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRule, rule.Status)
	}
	if rule.Confidence < 0 || rule.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidRule)
	}
	for _, f := range rule.Fields {
		switch f {
		case model.FieldDescription, model.FieldMemo, model.FieldPayee:
		default:
			return fmt.Errorf("%w: unknown field %q", ErrInvalidRule, f)
		}
	}
	return nil
}

func validateCategory(category *model.Category) error {
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if strings.TrimSpace(category.TenantID) == "" {
		return fmt.Errorf("%w: missing tenant ID", ErrInvalidCategory)
	}
	if strings.TrimSpace(category.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidCategory)
	}
	if strings.TrimSpace(category.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidCategory)
	}
	if !category.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCategory, category.Type)
	}
	if category.DREGroup != "" && !category.DREGroup.Valid() {
		return fmt.Errorf("%w: unknown DRE group %q", ErrInvalidCategory, category.DREGroup)
	}
	return nil
}

func validateFeedback(feedback *model.RuleFeedback) error {
	if feedback == nil {
		return fmt.Errorf("%w: feedback", ErrNilParameter)
	}
	if strings.TrimSpace(feedback.TenantID) == "" {
		return fmt.Errorf("%w: missing tenant ID", ErrInvalidFeedback)
	}
	if strings.TrimSpace(feedback.RuleID) == "" {
		return fmt.Errorf("%w: missing rule ID", ErrInvalidFeedback)
	}
	switch feedback.Outcome {
	case model.FeedbackConfirmed:
	case model.FeedbackCorrected:
		if strings.TrimSpace(feedback.CorrectedCategoryID) == "" {
			return fmt.Errorf("%w: correction without category", ErrInvalidFeedback)
		}
	default:
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidFeedback, feedback.Outcome)
	}
	return nil
}

func validateCategorized(txn *model.CategorizedTransaction) error {
	if txn == nil {
		return fmt.Errorf("%w: categorized transaction", ErrNilParameter)
	}
	if strings.TrimSpace(txn.TenantID) == "" {
		return fmt.Errorf("%w: missing tenant ID", ErrInvalidHistoryRow)
	}
	if strings.TrimSpace(txn.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidHistoryRow)
	}
	if strings.TrimSpace(txn.CategoryID) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidHistoryRow)
	}
	if txn.Confidence < 0 || txn.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidHistoryRow)
	}
	return nil
}
