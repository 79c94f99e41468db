package model

import "time"

// ClusterStatus is the processing state of a transaction cluster.
type ClusterStatus string

// Cluster status constants.
const (
	ClusterPending   ClusterStatus = "pending"
	ClusterProcessed ClusterStatus = "processed"
	ClusterArchived  ClusterStatus = "archived"
)

// TransactionCluster accumulates AI classifications that share a lexical pattern.
type TransactionCluster struct {
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ID                  string
	TenantID            string
	CategoryID          string
	CategoryName        string
	Pattern             string
	CentroidDescription string
	Status              ClusterStatus
	RuleID              string
	CommonTokens        []string
	MemberIDs           []string
	MemberCount         int
	MeanConfidence      float64
}

// ClusterMember is one classification appended to a cluster.
type ClusterMember struct {
	TransactionID string
	Description   string
	Confidence    float64
}
