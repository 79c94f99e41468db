package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/Veraticus/dre-classifier/internal/classification"
	"github.com/Veraticus/dre-classifier/internal/common"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/textsim"
)

// stage is one layer of the cascade. run returns nil when the layer has no opinion.
type stage struct {
	run    func(ctx context.Context, req *request) (*candidate, error)
	skip   func(opts Options) bool
	source model.Source
}

// buildStages lists the configured layers in cascade order.
func (e *Engine) buildStages() []stage {
	var stages []stage
	if e.cache != nil {
		stages = append(stages, stage{
			source: model.SourceCache,
			skip:   func(o Options) bool { return o.SkipCache },
			run:    e.cacheStage,
		})
	}
	if e.rules != nil {
		stages = append(stages, stage{
			source: model.SourceRule,
			skip:   func(o Options) bool { return o.SkipRules },
			run:    e.ruleStage,
		})
	}
	if e.history != nil {
		stages = append(stages, stage{
			source: model.SourceHistory,
			skip:   func(o Options) bool { return o.SkipHistory },
			run:    e.historyStage,
		})
	}
	if e.ai != nil {
		stages = append(stages, stage{
			source: model.SourceAI,
			skip:   func(o Options) bool { return o.SkipAI },
			run:    e.aiStage,
		})
	}
	return stages
}

// request is the per-call state shared by the stages.
type request struct {
	byID        map[string]model.Category
	byName      map[string]model.Category
	txn         model.TransactionContext
	opts        Options
	movement    model.MovementType
	ambiguousBy string
	attempted   []model.Source
}

func (e *Engine) newRequest(txn model.TransactionContext, opts Options, categories []model.Category) *request {
	req := &request{
		byID:     make(map[string]model.Category, len(categories)),
		byName:   make(map[string]model.Category, len(categories)),
		txn:      txn,
		opts:     opts,
		movement: e.movement.Classify(txn.Description, txn.Memo, txn.Amount),
	}
	for _, c := range categories {
		req.byID[c.ID] = c
		req.byName[textsim.Fold(c.Name)] = c
	}
	if name, ok := e.ambiguity.Check(txn.Description); ok {
		req.ambiguousBy = name
	}
	return req
}

// finalize enforces that anything under the threshold goes to review.
func (r *request) finalize(result model.CategorizationResult) model.CategorizationResult {
	if result.Confidence < r.opts.ConfidenceThreshold {
		result.NeedsReview = true
	}
	return result
}

// candidate is a proposal on the internal 0-1 scale.
type candidate struct {
	reason     model.Reason
	category   model.Category
	source     model.Source
	ruleID     string
	confidence float64
	flagged    bool
}

func (c *candidate) percent() int {
	return toPercent(c.confidence)
}

// acceptable reports whether the cascade can stop here. Candidates that failed
// the accounting check or hit the ambiguity cap never stop it, whatever the threshold.
func (c *candidate) acceptable(threshold int) bool {
	return !c.flagged && c.percent() >= threshold
}

func (c *candidate) result(movement model.MovementType) model.CategorizationResult {
	return model.CategorizationResult{
		CategoryID:   c.category.ID,
		CategoryName: c.category.Name,
		Confidence:   c.percent(),
		Source:       c.source,
		RuleID:       c.ruleID,
		MovementType: movement,
		Reason:       c.reason,
	}
}

func (e *Engine) cacheStage(_ context.Context, req *request) (*candidate, error) {
	entry, ok := e.cache.Lookup(req.opts.TenantID, req.txn.Description, e.cfg.CacheSimilarity)
	if !ok {
		return nil, nil
	}
	category, ok := req.byID[entry.CategoryID]
	if !ok {
		e.logger.Debug("Cached category is no longer active",
			"tenant_id", req.opts.TenantID,
			"category_id", entry.CategoryID)
		return nil, nil
	}

	return &candidate{
		category:   category,
		confidence: entry.Confidence,
		source:     model.SourceCache,
		reason: model.NewReason(
			fmt.Sprintf("cached categorization (%d hits)", entry.HitCount),
			model.CacheHitMetadata{Key: entry.Key, HitCount: entry.HitCount, Similarity: entry.Similarity},
		),
	}, nil
}

// ruleStage takes the best-scoring rule whose category fits the movement type.
func (e *Engine) ruleStage(ctx context.Context, req *request) (*candidate, error) {
	rules, err := e.rules.ListMatchableRules(ctx, req.opts.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	for _, m := range e.matcher.RankMatches(rules, req.txn) {
		category, ok := req.byID[m.Rule.CategoryID]
		if !ok {
			continue
		}
		if !classification.Allows(req.movement, category) {
			e.logger.Debug("Rule category incompatible with movement",
				"tenant_id", req.opts.TenantID,
				"rule_id", m.Rule.ID,
				"movement", req.movement,
				"category", category.Name)
			continue
		}

		return &candidate{
			category:   category,
			confidence: m.Score,
			source:     model.SourceRule,
			ruleID:     m.Rule.ID,
			reason: model.NewReason(
				fmt.Sprintf("matched %s rule %q on %s", m.Rule.MatchType, m.Rule.Pattern, m.Field),
				model.RuleMatchMetadata{
					RuleID:    m.Rule.ID,
					Pattern:   m.Rule.Pattern,
					MatchType: m.Rule.MatchType,
					Field:     m.Field,
					Score:     m.Score,
				},
			),
		}, nil
	}
	return nil, nil
}

func (e *Engine) historyStage(ctx context.Context, req *request) (*candidate, error) {
	match, err := e.history.Find(ctx, req.opts.TenantID, req.txn.Description, req.opts.HistoryDaysLimit)
	if err != nil || match == nil {
		return nil, err
	}

	category, ok := req.byID[match.Transaction.CategoryID]
	if !ok {
		return nil, nil
	}

	return &candidate{
		category:   category,
		confidence: match.Confidence,
		source:     model.SourceHistory,
		reason: model.NewReason(
			fmt.Sprintf("similar to %q (%.0f%% similar)", match.Transaction.Description, match.Similarity*100),
			model.HistoryMatchMetadata{
				TransactionID:      match.Transaction.ID,
				MatchedDescription: match.Transaction.Description,
				Similarity:         match.Similarity,
			},
		),
	}, nil
}

func (e *Engine) aiStage(ctx context.Context, req *request) (*candidate, error) {
	classified, err := e.ai.Classify(ctx, req.txn, req.opts.TenantID)
	if err != nil || classified == nil {
		return nil, err
	}
	if math.IsNaN(classified.Confidence) || math.IsInf(classified.Confidence, 0) {
		e.logger.Warn("Discarding AI result with non-finite confidence",
			"tenant_id", req.opts.TenantID, "category", classified.CategoryName)
		return nil, nil //nolint:nilnil // No candidate
	}

	category, ok := req.byName[textsim.Fold(classified.CategoryName)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownCategory, classified.CategoryName)
	}

	reason := classified.Reasoning
	if reason == "" {
		reason = "classified by model"
	}
	return &candidate{
		category:   category,
		confidence: min(1, max(0, classified.Confidence)),
		source:     model.SourceAI,
		reason: model.NewReason(reason, model.AIClassificationMetadata{
			Reasoning: classified.Reasoning,
			Model:     classified.ModelUsed,
		}),
	}, nil
}

func toPercent(v float64) int {
	return int(math.Round(min(100, max(0, v*100))))
}
