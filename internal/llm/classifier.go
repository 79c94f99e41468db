package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/dre-classifier/internal/common"
	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/service"
	"github.com/Veraticus/dre-classifier/internal/textsim"
)

// Config holds configuration for the model-backed classifier.
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

func (c Config) temperature() float64 {
	if c.Temperature == 0 {
		return 0.1
	}
	return c.Temperature
}

func (c Config) maxTokens() int {
	if c.MaxTokens == 0 {
		return 200
	}
	return c.MaxTokens
}

// Classifier asks a model to pick one of the tenant's active categories.
type Classifier struct {
	client      Client
	categories  service.CategoryDirectory
	cache       *responseCache
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
}

// NewClassifier creates a classifier for the configured provider.
func NewClassifier(cfg Config, categories service.CategoryDirectory, logger *slog.Logger) (*Classifier, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewClassifierWithClient(client, categories, logger, cfg), nil
}

// NewClassifierWithClient wraps an existing client. Provider fields of cfg are ignored.
func NewClassifierWithClient(client Client, categories service.CategoryDirectory, logger *slog.Logger, cfg Config) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Classifier{
		client:      client,
		categories:  categories,
		cache:       newResponseCache(cfg.CacheTTL),
		logger:      logger,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		retryOpts:   retryOpts,
	}
}

// Classify suggests a category for the transaction. The returned name is
// always one of the tenant's active categories.
func (c *Classifier) Classify(ctx context.Context, txn model.TransactionContext, tenantID string) (*model.AIClassification, error) {
	categories, err := c.categories.ListActiveCategories(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: tenant %s has no active categories", common.ErrClassificationFailed, tenantID)
	}

	prompt := buildPrompt(txn, categories)

	resp, cached := c.cache.get(prompt)
	if !cached {
		err = common.WithRetry(ctx, func() error {
			if err := c.rateLimiter.wait(ctx); err != nil {
				return common.NewRetryableError(err, false)
			}
			r, err := c.client.Classify(ctx, prompt)
			if err != nil {
				return err
			}
			resp = r
			return nil
		}, c.retryOpts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrClassificationFailed, err)
		}
	}

	category, ok := resolveCategory(resp.Category, categories)
	if !ok {
		return nil, fmt.Errorf("%w: model answered %q", common.ErrUnknownCategory, resp.Category)
	}
	if !cached {
		c.cache.set(prompt, resp)
	}

	c.logger.Debug("Transaction classified by model",
		"tenant_id", tenantID,
		"category", category.Name,
		"confidence", resp.Confidence,
		"model", c.client.Model(),
		"cached", cached)

	return &model.AIClassification{
		CategoryName: category.Name,
		Confidence:   resp.Confidence,
		Reasoning:    resp.Reasoning,
		ModelUsed:    c.client.Model(),
	}, nil
}

// resolveCategory maps the model's answer onto a category, ignoring case and accents.
func resolveCategory(name string, categories []model.Category) (model.Category, bool) {
	want := textsim.Fold(name)
	for _, cat := range categories {
		if textsim.Fold(cat.Name) == want {
			return cat, true
		}
	}
	return model.Category{}, false
}

func buildPrompt(txn model.TransactionContext, categories []model.Category) string {
	var sb strings.Builder

	sb.WriteString("Classify this bank statement line.\n\n")
	fmt.Fprintf(&sb, "Description: %s\n", txn.Description)
	if txn.Memo != "" {
		fmt.Fprintf(&sb, "Memo: %s\n", txn.Memo)
	}
	if txn.PayeeName != "" {
		fmt.Fprintf(&sb, "Payee: %s\n", txn.PayeeName)
	}
	direction := "outflow"
	if txn.Amount.IsPositive() {
		direction = "inflow"
	}
	fmt.Fprintf(&sb, "Amount: %s (%s)\n", txn.Amount.StringFixed(2), direction)

	sb.WriteString("\nCategories (answer with one name exactly as written):\n")
	for _, cat := range categories {
		fmt.Fprintf(&sb, "- %s [%s", cat.Name, cat.Type)
		if cat.DREGroup != "" {
			fmt.Fprintf(&sb, ", %s", cat.DREGroup)
		}
		sb.WriteString("]\n")
	}

	sb.WriteString("\nInflows are never expenses and outflows are never revenue, except reversals (ESTORNO, DEVOLUCAO).\n")
	sb.WriteString("Use a confidence below 0.7 when the text does not identify what was paid or received.\n")
	return sb.String()
}
