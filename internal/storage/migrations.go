package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Categories, rules and categorization history",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS categories (
					tenant_id TEXT NOT NULL,
					id TEXT NOT NULL,
					name TEXT NOT NULL,
					type TEXT NOT NULL,
					dre_group TEXT NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					PRIMARY KEY (tenant_id, id)
				)`,
				`CREATE INDEX idx_categories_active ON categories(tenant_id, is_active)`,

				`CREATE TABLE IF NOT EXISTS rules (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					pattern TEXT NOT NULL,
					match_type TEXT NOT NULL CHECK (match_type IN ('exact', 'contains', 'regex')),
					category_id TEXT NOT NULL,
					category_name TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL CHECK (status IN ('candidate', 'active', 'refined', 'consolidated', 'inactive')),
					usage_count INTEGER NOT NULL DEFAULT 0,
					validation_count INTEGER NOT NULL DEFAULT 0,
					negative_count INTEGER NOT NULL DEFAULT 0,
					last_used_at DATETIME,
					source TEXT NOT NULL DEFAULT 'manual',
					parent_rule_id TEXT NOT NULL DEFAULT '',
					fields TEXT NOT NULL DEFAULT 'description',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_rules_tenant_status ON rules(tenant_id, status)`,
				`CREATE INDEX idx_rules_tenant_category ON rules(tenant_id, category_id)`,

				`CREATE TABLE IF NOT EXISTS categorized_transactions (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					description TEXT NOT NULL,
					memo TEXT NOT NULL DEFAULT '',
					payee_name TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL DEFAULT '0',
					category_id TEXT NOT NULL,
					category_name TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					source TEXT NOT NULL,
					categorized_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_categorized_tenant_date ON categorized_transactions(tenant_id, categorized_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Transaction clusters for auto-rule generation",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transaction_clusters (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					category_id TEXT NOT NULL,
					category_name TEXT NOT NULL DEFAULT '',
					pattern TEXT NOT NULL,
					centroid_description TEXT NOT NULL DEFAULT '',
					common_tokens TEXT NOT NULL DEFAULT '',
					member_count INTEGER NOT NULL DEFAULT 0,
					confidence_sum REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL CHECK (status IN ('pending', 'processed', 'archived')),
					rule_id TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				// At most one open cluster per key; processed and archived ones accumulate.
				`CREATE UNIQUE INDEX idx_clusters_pending_key
					ON transaction_clusters(tenant_id, category_id, pattern)
					WHERE status = 'pending'`,
				`CREATE INDEX idx_clusters_tenant_status ON transaction_clusters(tenant_id, status)`,

				`CREATE TABLE IF NOT EXISTS cluster_members (
					cluster_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					description TEXT NOT NULL,
					confidence REAL NOT NULL,
					added_at DATETIME NOT NULL,
					PRIMARY KEY (cluster_id, transaction_id),
					FOREIGN KEY (cluster_id) REFERENCES transaction_clusters(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Rule feedback audit trail",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rule_feedback (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					rule_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL DEFAULT '',
					outcome TEXT NOT NULL CHECK (outcome IN ('confirmed', 'corrected')),
					corrected_category_id TEXT NOT NULL DEFAULT '',
					note TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_rule_feedback_rule ON rule_feedback(tenant_id, rule_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if version != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, version)
	}

	return nil
}

// SchemaVersion returns the current PRAGMA user_version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to verify final schema version: %w", err)
	}
	return version, nil
}
