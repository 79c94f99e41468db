package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/dre-classifier/internal/common"
	"github.com/Veraticus/dre-classifier/internal/model"
)

const categoryColumns = `tenant_id, id, name, type, dre_group, is_active`

// ListActiveCategories returns the tenant's active categories ordered by name.
func (s *SQLiteStorage) ListActiveCategories(ctx context.Context, tenantID string) ([]model.Category, error) {
	return s.listCategories(ctx, tenantID, true)
}

// ListCategories returns all of the tenant's categories, including inactive ones.
func (s *SQLiteStorage) ListCategories(ctx context.Context, tenantID string) ([]model.Category, error) {
	return s.listCategories(ctx, tenantID, false)
}

func (s *SQLiteStorage) listCategories(ctx context.Context, tenantID string, activeOnly bool) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + categoryColumns + ` FROM categories WHERE tenant_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "tenant_id", tenantID, "count", len(categories))
	return categories, nil
}

// ListTenants returns every tenant that owns an active category.
func (s *SQLiteStorage) ListTenants(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM categories WHERE is_active = 1 ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenantID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}
	return tenants, nil
}

// GetCategory returns a category by ID, active or not.
func (s *SQLiteStorage) GetCategory(ctx context.Context, tenantID, id string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE tenant_id = ? AND id = ?`,
		tenantID, id)

	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: category %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// UpsertCategory inserts the category or updates it in place.
func (s *SQLiteStorage) UpsertCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCategory(category); err != nil {
		return err
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (tenant_id, id, name, type, dre_group, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			dre_group = excluded.dre_group,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		category.TenantID, category.ID, category.Name, string(category.Type),
		string(category.DREGroup), category.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

// DeactivateCategory hides a category from the directory without deleting it.
func (s *SQLiteStorage) DeactivateCategory(ctx context.Context, tenantID, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE categories SET is_active = 0, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		s.now(), tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate category: %w", err)
	}
	return expectOneRow(result, "category", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*model.Category, error) {
	var (
		cat      model.Category
		catType  string
		dreGroup string
	)
	if err := row.Scan(&cat.TenantID, &cat.ID, &cat.Name, &catType, &dreGroup, &cat.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	cat.Type = model.CategoryType(catType)
	cat.DREGroup = model.DREGroup(dreGroup)
	return &cat, nil
}

func expectOneRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", common.ErrNotFound, kind, id)
	}
	return nil
}
