package lifecycle

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/textsim"
)

// Consolidation records one merge.
type Consolidation struct {
	SurvivorID string
	MergedIDs  []string
}

// ConsolidateRules merges near-duplicate matchable rules of the same category.
// Patterns merge when their similarity reaches ConsolidationSimilarity or one
// contains the other as a whole phrase. The most used rule survives with
// status consolidated and summed counters; the others become inactive and
// point at it. Regex rules are never merged.
func (m *Manager) ConsolidateRules(ctx context.Context, tenantID string) ([]Consolidation, error) {
	rules, err := m.store.ListMatchableRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	byCategory := make(map[string][]model.Rule)
	var categories []string
	for _, r := range rules {
		if r.MatchType == model.MatchRegex {
			continue
		}
		if _, ok := byCategory[r.CategoryID]; !ok {
			categories = append(categories, r.CategoryID)
		}
		byCategory[r.CategoryID] = append(byCategory[r.CategoryID], r)
	}
	slices.Sort(categories)

	var merges []Consolidation
	for _, categoryID := range categories {
		group := byCategory[categoryID]
		slices.SortFunc(group, func(a, b model.Rule) int {
			if c := cmp.Compare(b.UsageCount, a.UsageCount); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})

		merged := make(map[string]bool)
		for i := range group {
			if merged[group[i].ID] {
				continue
			}
			survivor := group[i]
			var absorbed []model.Rule

			for j := i + 1; j < len(group); j++ {
				if merged[group[j].ID] || !m.similarPatterns(survivor.Pattern, group[j].Pattern) {
					continue
				}
				merged[group[j].ID] = true
				absorbed = append(absorbed, group[j])
			}
			if len(absorbed) == 0 {
				continue
			}

			merge, err := m.merge(ctx, survivor, absorbed)
			if err != nil {
				return merges, err
			}
			merges = append(merges, merge)
		}
	}

	if len(merges) > 0 {
		m.logger.Info("Consolidated rules", "tenant_id", tenantID, "merges", len(merges))
	}
	return merges, nil
}

func (m *Manager) similarPatterns(a, b string) bool {
	fa, fb := textsim.Fold(a), textsim.Fold(b)
	if fa == "" || fb == "" {
		return false
	}
	if textsim.ContainsPhrase(fa, fb) || textsim.ContainsPhrase(fb, fa) {
		return true
	}
	return textsim.Similarity(fa, fb) >= m.cfg.ConsolidationSimilarity
}

func (m *Manager) merge(ctx context.Context, survivor model.Rule, absorbed []model.Rule) (Consolidation, error) {
	merge := Consolidation{SurvivorID: survivor.ID}
	for _, r := range absorbed {
		merge.MergedIDs = append(merge.MergedIDs, r.ID)
	}

	if _, err := m.store.MergeRules(ctx, survivor.TenantID, survivor.ID, merge.MergedIDs); err != nil {
		return Consolidation{}, fmt.Errorf("failed to merge into rule %s: %w", survivor.ID, err)
	}

	m.logger.Debug("Merged rules",
		"tenant_id", survivor.TenantID,
		"rule_id", survivor.ID,
		"merged", merge.MergedIDs)
	return merge, nil
}
