// Package seed imports a tenant's chart of accounts and curated rules from YAML.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/service"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSeed is returned for seed files that cannot be imported.
var ErrInvalidSeed = errors.New("invalid seed file")

// File is the YAML layout of a seed file.
type File struct {
	Tenant     string         `yaml:"tenant"`
	Categories []CategorySeed `yaml:"categories"`
	Rules      []RuleSeed     `yaml:"rules"`
}

// CategorySeed is one chart-of-accounts entry.
type CategorySeed struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Group    string `yaml:"group"`
	Inactive bool   `yaml:"inactive"`
}

// RuleSeed is one curated rule. Category may be a category ID or name.
type RuleSeed struct {
	Pattern    string   `yaml:"pattern"`
	Match      string   `yaml:"match"`
	Category   string   `yaml:"category"`
	Status     string   `yaml:"status"`
	Fields     []string `yaml:"fields"`
	Confidence float64  `yaml:"confidence"`
}

// Parse decodes a seed file.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	return &f, nil
}

// LoadFile reads and decodes the seed file at path.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Store is what Apply writes to.
type Store interface {
	service.CategoryDirectory
	UpsertCategory(ctx context.Context, category *model.Category) error
	CreateRule(ctx context.Context, rule *model.Rule) error
	ListRules(ctx context.Context, tenantID string, filter service.RuleFilter) ([]model.Rule, error)
}

// Result counts what Apply wrote.
type Result struct {
	Categories   int
	Rules        int
	SkippedRules int
}

// Apply upserts the file's categories and creates its rules for tenantID,
// which overrides the file's own tenant when set. A rule identical in
// pattern, match type and category to an existing one is skipped, so
// re-importing a file is harmless.
func Apply(ctx context.Context, store Store, f *File, tenantID string, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if tenantID == "" {
		tenantID = f.Tenant
	}
	if tenantID == "" {
		return Result{}, fmt.Errorf("%w: no tenant given", ErrInvalidSeed)
	}

	categories, err := f.categories(tenantID)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for i := range categories {
		if err := store.UpsertCategory(ctx, &categories[i]); err != nil {
			return result, fmt.Errorf("failed to import category %s: %w", categories[i].ID, err)
		}
		result.Categories++
	}

	known, err := store.ListActiveCategories(ctx, tenantID)
	if err != nil {
		return result, fmt.Errorf("failed to list categories: %w", err)
	}
	existing, err := store.ListRules(ctx, tenantID, service.RuleFilter{})
	if err != nil {
		return result, fmt.Errorf("failed to list rules: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[ruleKey(r)] = true
	}

	for i, rs := range f.Rules {
		rule, err := rs.rule(tenantID, known)
		if err != nil {
			return result, fmt.Errorf("rule %d: %w", i+1, err)
		}
		if seen[ruleKey(rule)] {
			result.SkippedRules++
			continue
		}
		if err := store.CreateRule(ctx, &rule); err != nil {
			return result, fmt.Errorf("failed to import rule %q: %w", rule.Pattern, err)
		}
		seen[ruleKey(rule)] = true
		result.Rules++
	}

	logger.Info("Imported seed",
		"tenant_id", tenantID,
		"categories", result.Categories,
		"rules", result.Rules,
		"skipped_rules", result.SkippedRules)
	return result, nil
}

func (f *File) categories(tenantID string) ([]model.Category, error) {
	out := make([]model.Category, 0, len(f.Categories))
	for i, cs := range f.Categories {
		c := model.Category{
			ID:       strings.TrimSpace(cs.ID),
			TenantID: tenantID,
			Name:     strings.TrimSpace(cs.Name),
			Type:     model.CategoryType(cs.Type),
			DREGroup: model.DREGroup(cs.Group),
			IsActive: !cs.Inactive,
		}
		if c.ID == "" || c.Name == "" {
			return nil, fmt.Errorf("%w: category %d needs an id and a name", ErrInvalidSeed, i+1)
		}
		if !c.Type.Valid() {
			return nil, fmt.Errorf("%w: category %s has unknown type %q", ErrInvalidSeed, c.ID, cs.Type)
		}
		if c.DREGroup != "" && !c.DREGroup.Valid() {
			return nil, fmt.Errorf("%w: category %s has unknown group %q", ErrInvalidSeed, c.ID, cs.Group)
		}
		out = append(out, c)
	}
	return out, nil
}

func (rs RuleSeed) rule(tenantID string, categories []model.Category) (model.Rule, error) {
	category, ok := resolveCategory(rs.Category, categories)
	if !ok {
		return model.Rule{}, fmt.Errorf("%w: unknown category %q", ErrInvalidSeed, rs.Category)
	}

	rule := model.Rule{
		TenantID:     tenantID,
		Pattern:      strings.TrimSpace(rs.Pattern),
		MatchType:    model.MatchType(rs.Match),
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Confidence:   rs.Confidence,
		Status:       model.RuleStatus(rs.Status),
		Source:       model.RuleSourceImported,
	}
	if rule.MatchType == "" {
		rule.MatchType = model.MatchContains
	}
	if rule.Status == "" {
		rule.Status = model.RuleActive
	}
	if rule.Confidence == 0 {
		rule.Confidence = 0.9
	}
	for _, f := range rs.Fields {
		rule.Fields = append(rule.Fields, model.RuleField(f))
	}
	return rule, nil
}

func resolveCategory(ref string, categories []model.Category) (model.Category, bool) {
	ref = strings.TrimSpace(ref)
	for _, c := range categories {
		if c.ID == ref {
			return c, true
		}
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, ref) {
			return c, true
		}
	}
	return model.Category{}, false
}

func ruleKey(r model.Rule) string {
	return string(r.MatchType) + "\x00" + r.CategoryID + "\x00" + strings.ToUpper(strings.TrimSpace(r.Pattern))
}
