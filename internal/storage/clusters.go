package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/dre-classifier/internal/common"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/service"
	"github.com/google/uuid"
)

const clusterColumns = `id, tenant_id, category_id, category_name, pattern, centroid_description,
	common_tokens, member_count, confidence_sum, status, rule_id, created_at, updated_at`

// AddClusterMember finds or creates the pending cluster for key and appends the
// member, all in one transaction. Adding the same transaction twice is a no-op.
func (s *SQLiteStorage) AddClusterMember(ctx context.Context, key service.ClusterKey, member model.ClusterMember) (*model.TransactionCluster, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateClusterKey(key); err != nil {
		return nil, err
	}
	if err := validateString(member.TransactionID, "member.TransactionID"); err != nil {
		return nil, err
	}

	var cluster *model.TransactionCluster
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		var clusterID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM transaction_clusters
			WHERE tenant_id = ? AND category_id = ? AND pattern = ? AND status = 'pending'`,
			key.TenantID, key.CategoryID, key.Pattern).Scan(&clusterID)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			clusterID = uuid.NewString()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transaction_clusters (`+clusterColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 'pending', '', ?, ?)`,
				clusterID, key.TenantID, key.CategoryID, key.CategoryName, key.Pattern,
				member.Description, strings.Join(strings.Fields(key.Pattern), " "), now, now,
			); err != nil {
				return fmt.Errorf("failed to create cluster: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to find pending cluster: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO cluster_members (cluster_id, transaction_id, description, confidence, added_at)
			VALUES (?, ?, ?, ?, ?)`,
			clusterID, member.TransactionID, member.Description, member.Confidence, now)
		if err != nil {
			return fmt.Errorf("failed to add cluster member: %w", err)
		}

		added, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if added > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE transaction_clusters
				SET member_count = member_count + 1, confidence_sum = confidence_sum + ?, updated_at = ?
				WHERE id = ?`,
				member.Confidence, now, clusterID); err != nil {
				return fmt.Errorf("failed to update cluster counters: %w", err)
			}
		}

		cluster, err = getCluster(ctx, tx, key.TenantID, clusterID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cluster, nil
}

// GetCluster returns a cluster with its member IDs.
func (s *SQLiteStorage) GetCluster(ctx context.Context, tenantID, id string) (*model.TransactionCluster, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getCluster(ctx, s.db, tenantID, id)
}

func getCluster(ctx context.Context, q queryer, tenantID, id string) (*model.TransactionCluster, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+clusterColumns+` FROM transaction_clusters WHERE tenant_id = ? AND id = ?`,
		tenantID, id)

	cluster, err := scanCluster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cluster %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	members, err := listClusterMembers(ctx, q, id)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		cluster.MemberIDs = append(cluster.MemberIDs, m.TransactionID)
	}
	return cluster, nil
}

// ListPendingClusters returns the tenant's pending clusters with at least
// minSize members, largest first.
func (s *SQLiteStorage) ListPendingClusters(ctx context.Context, tenantID string, minSize int) ([]model.TransactionCluster, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clusterColumns+` FROM transaction_clusters
		WHERE tenant_id = ? AND status = 'pending' AND member_count >= ?
		ORDER BY member_count DESC, created_at, id`,
		tenantID, minSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}

	var clusters []model.TransactionCluster
	for rows.Next() {
		cluster, err := scanCluster(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		clusters = append(clusters, *cluster)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating clusters: %w", err)
	}
	// The single connection must be released before member lookups.
	_ = rows.Close()

	for i := range clusters {
		members, err := listClusterMembers(ctx, s.db, clusters[i].ID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			clusters[i].MemberIDs = append(clusters[i].MemberIDs, m.TransactionID)
		}
	}
	return clusters, nil
}

// ListClusterMembers returns a cluster's members in insertion order.
func (s *SQLiteStorage) ListClusterMembers(ctx context.Context, tenantID, clusterID string) ([]model.ClusterMember, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if _, err := s.GetCluster(ctx, tenantID, clusterID); err != nil {
		return nil, err
	}
	return listClusterMembers(ctx, s.db, clusterID)
}

func listClusterMembers(ctx context.Context, q queryer, clusterID string) ([]model.ClusterMember, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT transaction_id, description, confidence FROM cluster_members
		WHERE cluster_id = ? ORDER BY added_at, transaction_id`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster members: %w", err)
	}
	defer rows.Close()

	var members []model.ClusterMember
	for rows.Next() {
		var m model.ClusterMember
		if err := rows.Scan(&m.TransactionID, &m.Description, &m.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan cluster member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cluster members: %w", err)
	}
	return members, nil
}

// MarkClusterProcessed closes a pending cluster and records the minted rule.
func (s *SQLiteStorage) MarkClusterProcessed(ctx context.Context, tenantID, clusterID, ruleID string) error {
	if err := validateString(ruleID, "ruleID"); err != nil {
		return err
	}
	return s.closeCluster(ctx, tenantID, clusterID, model.ClusterProcessed, ruleID)
}

// ArchiveCluster closes a pending cluster without minting a rule.
func (s *SQLiteStorage) ArchiveCluster(ctx context.Context, tenantID, clusterID string) error {
	return s.closeCluster(ctx, tenantID, clusterID, model.ClusterArchived, "")
}

func (s *SQLiteStorage) closeCluster(ctx context.Context, tenantID, clusterID string, status model.ClusterStatus, ruleID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transaction_clusters SET status = ?, rule_id = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND status = 'pending'`,
		string(status), ruleID, s.now(), tenantID, clusterID)
	if err != nil {
		return fmt.Errorf("failed to update cluster status: %w", err)
	}
	return expectOneRow(result, "pending cluster", clusterID)
}

func scanCluster(row rowScanner) (*model.TransactionCluster, error) {
	var (
		c             model.TransactionCluster
		commonTokens  string
		status        string
		confidenceSum float64
	)

	err := row.Scan(
		&c.ID, &c.TenantID, &c.CategoryID, &c.CategoryName, &c.Pattern, &c.CentroidDescription,
		&commonTokens, &c.MemberCount, &confidenceSum, &status, &c.RuleID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan cluster: %w", err)
	}

	c.Status = model.ClusterStatus(status)
	c.CommonTokens = strings.Fields(commonTokens)
	if c.MemberCount > 0 {
		c.MeanConfidence = confidenceSum / float64(c.MemberCount)
	}
	return &c, nil
}

func validateClusterKey(key service.ClusterKey) error {
	if strings.TrimSpace(key.TenantID) == "" {
		return fmt.Errorf("%w: missing tenant ID", ErrInvalidCluster)
	}
	if strings.TrimSpace(key.CategoryID) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidCluster)
	}
	if strings.TrimSpace(key.Pattern) == "" {
		return fmt.Errorf("%w: missing pattern", ErrInvalidCluster)
	}
	return nil
}
