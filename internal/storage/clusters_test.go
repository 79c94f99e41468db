package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Veraticus/dre-classifier/internal/common"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClusterKey = service.ClusterKey{
	TenantID:     "t1",
	CategoryID:   "cat-rent",
	CategoryName: "Aluguel",
	Pattern:      "ALUGUEL GALPAO",
}

func TestSQLiteStorage_AddClusterMember(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first, err := store.AddClusterMember(ctx, testClusterKey, model.ClusterMember{
		TransactionID: "tx-1", Description: "ALUGUEL GALPAO 01/2024", Confidence: 0.92,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ClusterPending, first.Status)
	assert.Equal(t, 1, first.MemberCount)
	assert.Equal(t, "ALUGUEL GALPAO 01/2024", first.CentroidDescription)
	assert.Equal(t, []string{"ALUGUEL", "GALPAO"}, first.CommonTokens)

	second, err := store.AddClusterMember(ctx, testClusterKey, model.ClusterMember{
		TransactionID: "tx-2", Description: "ALUGUEL GALPAO 02/2024", Confidence: 0.96,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.MemberCount)
	assert.InDelta(t, 0.94, second.MeanConfidence, 1e-9)
	assert.Equal(t, []string{"tx-1", "tx-2"}, second.MemberIDs)

	again, err := store.AddClusterMember(ctx, testClusterKey, model.ClusterMember{
		TransactionID: "tx-2", Description: "ALUGUEL GALPAO 02/2024", Confidence: 0.96,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, again.MemberCount)

	otherTenant := testClusterKey
	otherTenant.TenantID = "t2"
	separate, err := store.AddClusterMember(ctx, otherTenant, model.ClusterMember{TransactionID: "tx-1", Confidence: 0.9})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, separate.ID)

	_, err = store.AddClusterMember(ctx, service.ClusterKey{TenantID: "t1"}, model.ClusterMember{TransactionID: "x"})
	assert.ErrorIs(t, err, ErrInvalidCluster)
}

func TestSQLiteStorage_ConcurrentClusterAppends(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.AddClusterMember(ctx, testClusterKey, model.ClusterMember{
				TransactionID: fmt.Sprintf("tx-%d", i), Description: "ALUGUEL GALPAO", Confidence: 0.9,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	clusters, err := store.ListPendingClusters(ctx, "t1", 1)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, 20, clusters[0].MemberCount)
	assert.Len(t, clusters[0].MemberIDs, 20)
}

func TestSQLiteStorage_ClusterLifecycle(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.AddClusterMember(ctx, testClusterKey, model.ClusterMember{
			TransactionID: fmt.Sprintf("tx-%d", i), Description: "ALUGUEL GALPAO", Confidence: 0.9,
		})
		require.NoError(t, err)
	}
	small := testClusterKey
	small.Pattern = "CONDOMINIO"
	_, err := store.AddClusterMember(ctx, small, model.ClusterMember{TransactionID: "tx-x", Confidence: 0.9})
	require.NoError(t, err)

	ready, err := store.ListPendingClusters(ctx, "t1", 5)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	cluster := ready[0]

	members, err := store.ListClusterMembers(ctx, "t1", cluster.ID)
	require.NoError(t, err)
	assert.Len(t, members, 5)

	require.NoError(t, store.MarkClusterProcessed(ctx, "t1", cluster.ID, "rule-1"))
	got, err := store.GetCluster(ctx, "t1", cluster.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClusterProcessed, got.Status)
	assert.Equal(t, "rule-1", got.RuleID)

	// Closing twice fails; a new pending cluster may open under the same key.
	assert.ErrorIs(t, store.ArchiveCluster(ctx, "t1", cluster.ID), common.ErrNotFound)

	reopened, err := store.AddClusterMember(ctx, testClusterKey, model.ClusterMember{TransactionID: "tx-new", Confidence: 0.9})
	require.NoError(t, err)
	assert.NotEqual(t, cluster.ID, reopened.ID)
	assert.Equal(t, 1, reopened.MemberCount)

	require.NoError(t, store.ArchiveCluster(ctx, "t1", reopened.ID))
	_, err = store.GetCluster(ctx, "t2", reopened.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
