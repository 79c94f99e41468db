package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/google/uuid"
)

// SaveRuleFeedback appends an audit row. Rows are never updated.
func (s *SQLiteStorage) SaveRuleFeedback(ctx context.Context, feedback *model.RuleFeedback) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFeedback(feedback); err != nil {
		return err
	}

	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_feedback (id, tenant_id, rule_id, transaction_id, outcome, corrected_category_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		feedback.ID, feedback.TenantID, feedback.RuleID, feedback.TransactionID,
		string(feedback.Outcome), feedback.CorrectedCategoryID, feedback.Note, feedback.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule feedback: %w", err)
	}
	return nil
}

// ListRuleFeedback returns a rule's audit rows, oldest first.
func (s *SQLiteStorage) ListRuleFeedback(ctx context.Context, tenantID, ruleID string) ([]model.RuleFeedback, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, rule_id, transaction_id, outcome, corrected_category_id, note, created_at
		FROM rule_feedback
		WHERE tenant_id = ? AND rule_id = ?
		ORDER BY created_at, id`, tenantID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule feedback: %w", err)
	}
	defer rows.Close()

	var feedback []model.RuleFeedback
	for rows.Next() {
		var (
			f       model.RuleFeedback
			outcome string
		)
		if err := rows.Scan(&f.ID, &f.TenantID, &f.RuleID, &f.TransactionID, &outcome,
			&f.CorrectedCategoryID, &f.Note, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule feedback: %w", err)
		}
		f.Outcome = model.FeedbackOutcome(outcome)
		feedback = append(feedback, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule feedback: %w", err)
	}
	return feedback, nil
}
