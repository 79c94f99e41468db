// Package engine resolves a chart-of-accounts category for a bank transaction
// by running cache, rule, history and AI stages in order until one of them is
// confident enough, vetting every candidate for accounting consistency.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/dre-classifier/internal/ambiguity"
	"github.com/Veraticus/dre-classifier/internal/classification"
	"github.com/Veraticus/dre-classifier/internal/common"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/pattern"
	"github.com/Veraticus/dre-classifier/internal/service"
)

// Defaults.
const (
	DefaultConfidenceThreshold = 70
	DefaultHistoryDaysLimit    = 90
	DefaultCacheSimilarity     = 0.90
	DefaultAutoLearnConfidence = 0.90
	DefaultBackgroundTimeout   = 30 * time.Second

	// AmbiguityCap is the highest confidence generic text can reach.
	AmbiguityCap = 0.60
)

// ErrNoCategoryDirectory is returned by New when no category directory is given.
var ErrNoCategoryDirectory = errors.New("category directory is required")

// Options controls a single categorization.
type Options struct {
	TenantID            string
	ConfidenceThreshold int
	HistoryDaysLimit    int
	SkipCache           bool
	SkipRules           bool
	SkipHistory         bool
	SkipAI              bool
	SkipAutoLearning    bool
}

func (o Options) withDefaults() Options {
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if o.HistoryDaysLimit <= 0 {
		o.HistoryDaysLimit = DefaultHistoryDaysLimit
	}
	return o
}

// Deps are the collaborators of an Engine. Only Categories is required; a nil
// layer is never run. Matcher, Validator, Movement and Ambiguity fall back to
// the built-in implementations.
type Deps struct {
	Categories service.CategoryDirectory
	Cache      ResultCache
	Rules      RuleSource
	History    HistoryFinder
	AI         AIClassifier
	Generator  AutoRuleGenerator
	Matcher    pattern.RuleMatcher
	Validator  pattern.CategoryValidator
	Movement   MovementClassifier
	Ambiguity  AmbiguityPolicy
	Logger     *slog.Logger
}

// Config tunes an Engine. Zero values take the defaults.
type Config struct {
	Now                 func() time.Time
	CacheSimilarity     float64
	AutoLearnConfidence float64
	BackgroundTimeout   time.Duration
}

func (c *Config) applyDefaults() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.CacheSimilarity <= 0 {
		c.CacheSimilarity = DefaultCacheSimilarity
	}
	if c.AutoLearnConfidence <= 0 {
		c.AutoLearnConfidence = DefaultAutoLearnConfidence
	}
	if c.BackgroundTimeout <= 0 {
		c.BackgroundTimeout = DefaultBackgroundTimeout
	}
}

// Engine is the resolution orchestrator. It is safe for concurrent use.
type Engine struct {
	categories service.CategoryDirectory
	cache      ResultCache
	rules      RuleSource
	history    HistoryFinder
	ai         AIClassifier
	generator  AutoRuleGenerator
	matcher    pattern.RuleMatcher
	validator  pattern.CategoryValidator
	movement   MovementClassifier
	ambiguity  AmbiguityPolicy
	logger     *slog.Logger
	background *background
	stages     []stage
	cfg        Config
}

// New creates an engine from its collaborators.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Categories == nil {
		return nil, ErrNoCategoryDirectory
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Matcher == nil {
		deps.Matcher = pattern.NewMatcher(deps.Logger)
	}
	if deps.Validator == nil {
		deps.Validator = pattern.NewAccountingValidator()
	}
	if deps.Movement == nil {
		deps.Movement = classification.NewDefaultMovementClassifier()
	}
	if deps.Ambiguity == nil {
		deps.Ambiguity = ambiguity.DefaultPolicy()
	}
	cfg.applyDefaults()

	e := &Engine{
		categories: deps.Categories,
		cache:      deps.Cache,
		rules:      deps.Rules,
		history:    deps.History,
		ai:         deps.AI,
		generator:  deps.Generator,
		matcher:    deps.Matcher,
		validator:  deps.Validator,
		movement:   deps.Movement,
		ambiguity:  deps.Ambiguity,
		logger:     deps.Logger,
		background: newBackground(deps.Logger, cfg.BackgroundTimeout),
		cfg:        cfg,
	}
	e.stages = e.buildStages()
	return e, nil
}

// Categorize runs the cascade for one transaction. The only errors returned
// are a missing tenant and a failure to list the tenant's categories; every
// other failure degrades to a lower-confidence result.
func (e *Engine) Categorize(ctx context.Context, txn model.TransactionContext, opts Options) (model.CategorizationResult, error) {
	if opts.TenantID == "" {
		return model.CategorizationResult{}, common.ErrMissingTenant
	}
	opts = opts.withDefaults()

	categories, err := e.categories.ListActiveCategories(ctx, opts.TenantID)
	if err != nil {
		return model.CategorizationResult{}, fmt.Errorf("failed to list categories: %w", err)
	}

	req := e.newRequest(txn, opts, categories)

	var best *candidate
	for _, st := range e.stages {
		if st.skip(opts) {
			continue
		}
		req.attempted = append(req.attempted, st.source)

		cand, err := st.run(ctx, req)
		if err != nil {
			e.logger.Warn("Categorization stage failed",
				"tenant_id", opts.TenantID,
				"stage", st.source,
				"error", err)
			continue
		}
		if cand == nil {
			continue
		}

		e.review(req, cand)
		if cand.acceptable(opts.ConfidenceThreshold) {
			return e.accept(ctx, req, cand), nil
		}
		if best == nil || cand.confidence > best.confidence {
			best = cand
		}
	}

	return e.fallback(req, best), nil
}

// Wait blocks until background work started by earlier calls has finished.
func (e *Engine) Wait() {
	e.background.Wait()
}

// review applies the accounting validator and the ambiguity cap.
func (e *Engine) review(req *request, c *candidate) {
	if res := e.validator.Validate(req.txn, req.movement, c.category); !res.IsValid {
		c.confidence, c.reason = pattern.Downgrade(res, c.source, c.confidence, c.reason)
		c.flagged = true
		e.logger.Debug("Candidate failed accounting check",
			"tenant_id", req.opts.TenantID,
			"stage", c.source,
			"category", c.category.Name,
			"check", res.Check)
	}

	if req.ambiguousBy != "" && c.confidence > AmbiguityCap {
		c.reason = model.NewReason(
			fmt.Sprintf("generic description, confidence capped at %.0f", AmbiguityCap*100),
			model.AmbiguousPatternMetadata{
				Original:           c.reason,
				Predicate:          req.ambiguousBy,
				OriginalConfidence: c.confidence,
			},
		)
		c.confidence = AmbiguityCap
		c.flagged = true
	}
}

func (e *Engine) accept(ctx context.Context, req *request, c *candidate) model.CategorizationResult {
	tenantID := req.opts.TenantID

	if e.cache != nil && !req.opts.SkipCache && c.source != model.SourceCache {
		e.cache.Store(tenantID, req.txn.Description, c.category.ID, c.category.Name, c.confidence)
	}

	if c.source == model.SourceRule && e.rules != nil {
		ruleID, usedAt := c.ruleID, e.cfg.Now()
		e.background.Go(ctx, "rule_usage", func(ctx context.Context) error {
			return e.rules.IncrementRuleUsage(ctx, tenantID, ruleID, usedAt)
		})
	}

	if c.source == model.SourceAI && e.generator != nil && !req.opts.SkipAutoLearning &&
		c.confidence >= e.cfg.AutoLearnConfidence {
		txn, category, confidence := req.txn, c.category, c.confidence
		e.background.Go(ctx, "auto_learning", func(ctx context.Context) error {
			_, err := e.generator.AddToCluster(ctx, tenantID, txn.TransactionID, txn.Description, category, confidence)
			return err
		})
	}

	return req.finalize(c.result(req.movement))
}

func (e *Engine) fallback(req *request, best *candidate) model.CategorizationResult {
	if best == nil {
		return req.finalize(model.CategorizationResult{
			CategoryName: model.UnclassifiedName,
			Source:       model.SourceManual,
			MovementType: req.movement,
			NeedsReview:  true,
			Reason: model.NewReason("no layer produced a candidate", model.ManualFallbackMetadata{
				Attempted: req.attempted,
			}),
		})
	}

	result := best.result(req.movement)
	result.NeedsReview = true
	if !best.flagged {
		result.Reason = model.NewReason(
			fmt.Sprintf("best candidate from %s scored %d, below %d", best.source, result.Confidence, req.opts.ConfidenceThreshold),
			model.LowConfidenceMetadata{
				BestSource: best.source,
				Threshold:  req.opts.ConfidenceThreshold,
			},
		)
	}
	return req.finalize(result)
}
