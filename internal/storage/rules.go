package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/dre-classifier/internal/common"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/service"
	"github.com/google/uuid"
)

const ruleColumns = `id, tenant_id, pattern, match_type, category_id, category_name, confidence,
	status, usage_count, validation_count, negative_count, last_used_at, source,
	parent_rule_id, fields, created_at, updated_at`

// CreateRule inserts a rule. An empty ID is filled with a new UUID and an empty
// status defaults to candidate.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule != nil {
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		if rule.Status == "" {
			rule.Status = model.RuleCandidate
		}
		if rule.Source == "" {
			rule.Source = model.RuleSourceManual
		}
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.TenantID, rule.Pattern, string(rule.MatchType), rule.CategoryID,
		rule.CategoryName, rule.Confidence, string(rule.Status), rule.UsageCount,
		rule.ValidationCount, rule.NegativeCount, nullTime(rule.LastUsedAt), string(rule.Source),
		rule.ParentRuleID, encodeFields(rule.Fields), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: rule %s", common.ErrDuplicateEntry, rule.ID)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// GetRule retrieves a rule by ID within a tenant.
func (s *SQLiteStorage) GetRule(ctx context.Context, tenantID, id string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getRule(ctx, s.db, tenantID, id)
}

func getRule(ctx context.Context, q queryer, tenantID, id string) (*model.Rule, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE tenant_id = ? AND id = ?`, tenantID, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule %s", common.ErrNotFound, id)
	}
	return rule, err
}

// ListRules returns the tenant's rules matching the filter, most used first.
func (s *SQLiteStorage) ListRules(ctx context.Context, tenantID string, filter service.RuleFilter) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM rules WHERE tenant_id = ?`
	args := []any{tenantID}

	if filter.CategoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, filter.CategoryID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY usage_count DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// ListMatchableRules returns the tenant's active, refined and consolidated rules.
func (s *SQLiteStorage) ListMatchableRules(ctx context.Context, tenantID string) ([]model.Rule, error) {
	return s.ListRules(ctx, tenantID, service.RuleFilter{
		Statuses: []model.RuleStatus{model.RuleActive, model.RuleRefined, model.RuleConsolidated},
	})
}

// UpdateRule overwrites the mutable fields of a rule.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := validateString(rule.ID, "rule.ID"); err != nil {
		return err
	}

	now := s.now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET
			pattern = ?, match_type = ?, category_id = ?, category_name = ?, confidence = ?,
			status = ?, usage_count = ?, validation_count = ?, negative_count = ?,
			last_used_at = ?, source = ?, parent_rule_id = ?, fields = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		rule.Pattern, string(rule.MatchType), rule.CategoryID, rule.CategoryName, rule.Confidence,
		string(rule.Status), rule.UsageCount, rule.ValidationCount, rule.NegativeCount,
		nullTime(rule.LastUsedAt), string(rule.Source), rule.ParentRuleID, encodeFields(rule.Fields), now,
		rule.TenantID, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if err := expectOneRow(result, "rule", rule.ID); err != nil {
		return err
	}
	rule.UpdatedAt = now
	return nil
}

// UpdateRuleStatus changes only the status of a rule.
func (s *SQLiteStorage) UpdateRuleStatus(ctx context.Context, tenantID, id string, status model.RuleStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRule, status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE rules SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		string(status), s.now(), tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to update rule status: %w", err)
	}
	return expectOneRow(result, "rule", id)
}

// IncrementRuleUsage atomically bumps usage_count and last_used_at.
func (s *SQLiteStorage) IncrementRuleUsage(ctx context.Context, tenantID, id string, usedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET usage_count = usage_count + 1, last_used_at = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		usedAt.UTC(), s.now(), tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to increment rule usage: %w", err)
	}
	return expectOneRow(result, "rule", id)
}

// IncrementRuleValidation atomically bumps usage and validation counters and
// returns the rule as stored after the update.
func (s *SQLiteStorage) IncrementRuleValidation(ctx context.Context, tenantID, id string, usedAt time.Time) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var rule *model.Rule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE rules SET
				usage_count = usage_count + 1,
				validation_count = validation_count + 1,
				last_used_at = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ?`,
			usedAt.UTC(), s.now(), tenantID, id)
		if err != nil {
			return fmt.Errorf("failed to increment rule validation: %w", err)
		}
		if err := expectOneRow(result, "rule", id); err != nil {
			return err
		}
		rule, err = getRule(ctx, tx, tenantID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// IncrementRuleNegative atomically bumps negative_count and returns the updated rule.
func (s *SQLiteStorage) IncrementRuleNegative(ctx context.Context, tenantID, id string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var rule *model.Rule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE rules SET negative_count = negative_count + 1, updated_at = ?
			WHERE tenant_id = ? AND id = ?`,
			s.now(), tenantID, id)
		if err != nil {
			return fmt.Errorf("failed to increment rule negatives: %w", err)
		}
		if err := expectOneRow(result, "rule", id); err != nil {
			return err
		}
		rule, err = getRule(ctx, tx, tenantID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ReplaceRule inserts child and retires its parent (child.ParentRuleID) in
// one transaction. The parent must exist and not already be inactive.
func (s *SQLiteStorage) ReplaceRule(ctx context.Context, child *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if child != nil {
		if child.ID == "" {
			child.ID = uuid.NewString()
		}
		if child.Status == "" {
			child.Status = model.RuleCandidate
		}
		if child.Source == "" {
			child.Source = model.RuleSourceManual
		}
	}
	if err := validateRule(child); err != nil {
		return err
	}
	if err := validateString(child.ParentRuleID, "rule.ParentRuleID"); err != nil {
		return err
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE rules SET status = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ? AND status != ?`,
			string(model.RuleInactive), now, child.TenantID, child.ParentRuleID, string(model.RuleInactive))
		if err != nil {
			return fmt.Errorf("failed to retire parent rule: %w", err)
		}
		if err := expectOneRow(result, "active rule", child.ParentRuleID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rules (`+ruleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			child.ID, child.TenantID, child.Pattern, string(child.MatchType), child.CategoryID,
			child.CategoryName, child.Confidence, string(child.Status), child.UsageCount,
			child.ValidationCount, child.NegativeCount, nullTime(child.LastUsedAt), string(child.Source),
			child.ParentRuleID, encodeFields(child.Fields), now, now,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%w: rule %s", common.ErrDuplicateEntry, child.ID)
			}
			return fmt.Errorf("failed to create refined rule: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	child.CreatedAt = now
	child.UpdatedAt = now
	return nil
}

// MergeRules folds the absorbed rules into the survivor in one transaction.
// Counters of the absorbed rules are read inside the transaction and added to
// the survivor's stored counters, so increments landing before the merge are
// kept. The survivor takes the highest confidence and latest use and becomes
// consolidated; absorbed rules become inactive children of it.
func (s *SQLiteStorage) MergeRules(ctx context.Context, tenantID, survivorID string, absorbedIDs []string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(survivorID, "survivorID"); err != nil {
		return nil, err
	}
	if len(absorbedIDs) == 0 {
		return nil, fmt.Errorf("%w: no rules to merge into %s", ErrInvalidRule, survivorID)
	}

	var survivor *model.Rule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getRule(ctx, tx, tenantID, survivorID)
		if err != nil {
			return err
		}

		var usage, validations, negatives int
		confidence := current.Confidence
		lastUsed := current.LastUsedAt
		for _, id := range absorbedIDs {
			if id == survivorID {
				return fmt.Errorf("%w: rule %s cannot absorb itself", ErrInvalidRule, id)
			}
			r, err := getRule(ctx, tx, tenantID, id)
			if err != nil {
				return err
			}
			usage += r.UsageCount
			validations += r.ValidationCount
			negatives += r.NegativeCount
			confidence = max(confidence, r.Confidence)
			if r.LastUsedAt != nil && (lastUsed == nil || r.LastUsedAt.After(*lastUsed)) {
				lastUsed = r.LastUsedAt
			}
		}

		now := s.now()
		for _, id := range absorbedIDs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE rules SET status = ?, parent_rule_id = ?, updated_at = ?
				WHERE tenant_id = ? AND id = ?`,
				string(model.RuleInactive), survivorID, now, tenantID, id); err != nil {
				return fmt.Errorf("failed to retire rule %s: %w", id, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE rules SET
				usage_count = usage_count + ?,
				validation_count = validation_count + ?,
				negative_count = negative_count + ?,
				confidence = ?, last_used_at = ?, status = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ?`,
			usage, validations, negatives, confidence, nullTime(lastUsed),
			string(model.RuleConsolidated), now, tenantID, survivorID); err != nil {
			return fmt.Errorf("failed to update surviving rule %s: %w", survivorID, err)
		}

		survivor, err = getRule(ctx, tx, tenantID, survivorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return survivor, nil
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var (
		rule      model.Rule
		matchType string
		status    string
		source    string
		fields    string
		lastUsed  sql.NullTime
	)

	err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Pattern, &matchType, &rule.CategoryID, &rule.CategoryName,
		&rule.Confidence, &status, &rule.UsageCount, &rule.ValidationCount, &rule.NegativeCount,
		&lastUsed, &source, &rule.ParentRuleID, &fields, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.MatchType = model.MatchType(matchType)
	rule.Status = model.RuleStatus(status)
	rule.Source = model.RuleSource(source)
	rule.LastUsedAt = timePtr(lastUsed)
	rule.Fields = decodeFields(fields)
	return &rule, nil
}

func encodeFields(fields []model.RuleField) string {
	if len(fields) == 0 {
		return string(model.FieldDescription)
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

func decodeFields(s string) []model.RuleField {
	var fields []model.RuleField
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			fields = append(fields, model.RuleField(part))
		}
	}
	return fields
}
