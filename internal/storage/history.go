package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/google/uuid"
)

// SaveCategorizedTransaction records a categorization for the history layer.
// Saving an existing ID replaces the row.
func (s *SQLiteStorage) SaveCategorizedTransaction(ctx context.Context, txn *model.CategorizedTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCategorized(txn); err != nil {
		return err
	}

	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CategorizedAt.IsZero() {
		txn.CategorizedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO categorized_transactions (
			id, tenant_id, description, memo, payee_name, amount,
			category_id, category_name, confidence, source, categorized_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.TenantID, txn.Description, txn.Memo, txn.PayeeName, txn.Amount,
		txn.CategoryID, txn.CategoryName, txn.Confidence, string(txn.Source), txn.CategorizedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save categorized transaction: %w", err)
	}
	return nil
}

// ListRecentCategorized returns the tenant's rows categorized at or after since,
// newest first. A non-positive limit means no limit.
func (s *SQLiteStorage) ListRecentCategorized(ctx context.Context, tenantID string, since time.Time, limit int) ([]model.CategorizedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, description, memo, payee_name, amount,
			category_id, category_name, confidence, source, categorized_at
		FROM categorized_transactions
		WHERE tenant_id = ? AND categorized_at >= ?
		ORDER BY categorized_at DESC, id
		LIMIT ?`,
		tenantID, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query categorized transactions: %w", err)
	}
	defer rows.Close()

	var result []model.CategorizedTransaction
	for rows.Next() {
		var (
			t      model.CategorizedTransaction
			source string
		)
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Description, &t.Memo, &t.PayeeName, &t.Amount,
			&t.CategoryID, &t.CategoryName, &t.Confidence, &source, &t.CategorizedAt); err != nil {
			return nil, fmt.Errorf("failed to scan categorized transaction: %w", err)
		}
		t.Source = model.Source(source)
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categorized transactions: %w", err)
	}
	return result, nil
}
