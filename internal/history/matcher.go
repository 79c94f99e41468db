// Package history matches new transactions against the tenant's recently
// categorized ones.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/textsim"
)

// Defaults.
const (
	DefaultDaysLimit           = 90
	DefaultMaxRows             = 100
	DefaultSimilarityThreshold = 0.85
	MaxConfidence              = 0.95
)

// Store is the read path the matcher needs.
type Store interface {
	ListRecentCategorized(ctx context.Context, tenantID string, since time.Time, limit int) ([]model.CategorizedTransaction, error)
}

// Match is the closest past transaction.
type Match struct {
	Transaction model.CategorizedTransaction
	Similarity  float64
	Confidence  float64
}

// Config tunes a Matcher. Zero values take the defaults.
type Config struct {
	Now                 func() time.Time
	MaxRows             int
	SimilarityThreshold float64
}

// Matcher finds the most similar recent categorization.
type Matcher struct {
	store     Store
	logger    *slog.Logger
	now       func() time.Time
	maxRows   int
	threshold float64
}

// NewMatcher creates a history matcher.
func NewMatcher(store Store, logger *slog.Logger, cfg Config) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return &Matcher{
		store:     store,
		logger:    logger,
		now:       cfg.Now,
		maxRows:   cfg.MaxRows,
		threshold: cfg.SimilarityThreshold,
	}
}

// Find returns the best match at or above the similarity threshold among the
// tenant's rows categorized in the last daysLimit days, or nil when none qualifies.
// A daysLimit <= 0 means the default.
func (m *Matcher) Find(ctx context.Context, tenantID, description string, daysLimit int) (*Match, error) {
	if daysLimit <= 0 {
		daysLimit = DefaultDaysLimit
	}
	key := textsim.Normalize(description)
	if key == "" {
		return nil, nil //nolint:nilnil // No match is a valid result
	}

	since := m.now().AddDate(0, 0, -daysLimit)
	rows, err := m.store.ListRecentCategorized(ctx, tenantID, since, m.maxRows)
	if err != nil {
		return nil, fmt.Errorf("failed to load categorization history: %w", err)
	}

	var best *Match
	for _, row := range rows {
		if row.TenantID != tenantID {
			continue
		}
		sim := textsim.Similarity(key, textsim.Normalize(row.Description))
		if sim < m.threshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &Match{Transaction: row, Similarity: sim}
		}
	}

	if best == nil {
		m.logger.Debug("No history match", "tenant_id", tenantID, "candidates", len(rows))
		return nil, nil //nolint:nilnil // No match is a valid result
	}

	best.Confidence = Confidence(best.Similarity, best.Transaction.Confidence)
	return best, nil
}

// Confidence is 0.8*similarity + 0.2*recorded, capped at MaxConfidence.
func Confidence(similarity, recorded float64) float64 {
	return math.Min(MaxConfidence, 0.8*similarity+0.2*recorded)
}
