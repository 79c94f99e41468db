package model

import "time"

// CacheEntry is a tenant-scoped memo of a confirmed categorization.
type CacheEntry struct {
	Timestamp    time.Time
	TenantID     string
	Key          string
	CategoryID   string
	CategoryName string
	Confidence   float64
	HitCount     int64
	Similarity   float64 // 1 for exact hits
}

// AIClassification is what the generative-model capability returns.
type AIClassification struct {
	CategoryName string
	Reasoning    string
	ModelUsed    string
	Confidence   float64 // 0-1
}
