package pattern

import (
	"cmp"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/textsim"
)

// Matcher implements RuleMatcher. Compiled regular expressions are cached by
// pattern, including failed compilations.
type Matcher struct {
	logger *slog.Logger
	regex  map[string]*regexp.Regexp
	scorer Scorer
	mu     sync.RWMutex
}

// NewMatcher creates a rule matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		logger: logger,
		regex:  make(map[string]*regexp.Regexp),
	}
}

// RankMatches tests every matchable rule against its fields and returns the
// hits sorted by score descending, then usage descending, then ID.
func (m *Matcher) RankMatches(rules []model.Rule, txn model.TransactionContext) []Match {
	var matches []Match

	for _, rule := range rules {
		if !rule.Status.Matchable() {
			continue
		}

		field, ok := m.matchRule(rule, txn)
		if !ok {
			continue
		}

		matches = append(matches, Match{
			Rule:  rule,
			Field: field,
			Score: m.scorer.Score(rule),
		})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Rule.UsageCount, a.Rule.UsageCount); c != 0 {
			return c
		}
		return cmp.Compare(a.Rule.ID, b.Rule.ID)
	})

	return matches
}

// Matches reports whether a single rule fits the transaction, ignoring its status.
func (m *Matcher) Matches(rule model.Rule, txn model.TransactionContext) bool {
	_, ok := m.matchRule(rule, txn)
	return ok
}

func (m *Matcher) matchRule(rule model.Rule, txn model.TransactionContext) (model.RuleField, bool) {
	if strings.TrimSpace(rule.Pattern) == "" {
		return "", false
	}

	for _, field := range rule.MatchFields() {
		text := fieldText(txn, field)
		if text == "" {
			continue
		}
		if m.matchText(rule, text) {
			return field, true
		}
	}
	return "", false
}

func (m *Matcher) matchText(rule model.Rule, text string) bool {
	switch rule.MatchType {
	case model.MatchExact:
		folded := textsim.Fold(text)
		pattern := textsim.Fold(rule.Pattern)
		return folded == pattern || textsim.ContainsPhrase(folded, pattern)
	case model.MatchContains:
		pattern := textsim.Fold(rule.Pattern)
		return pattern != "" && strings.Contains(textsim.Fold(text), pattern)
	case model.MatchRegex:
		re := m.compile(rule)
		return re != nil && re.MatchString(strings.ToUpper(text))
	}
	return false
}

func (m *Matcher) compile(rule model.Rule) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.regex[rule.Pattern]
	m.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile("(?i)" + rule.Pattern)
	if err != nil {
		m.logger.Warn("Skipping rule with invalid regex",
			"rule_id", rule.ID,
			"tenant_id", rule.TenantID,
			"pattern", rule.Pattern,
			"error", err)
		re = nil
	}

	m.mu.Lock()
	m.regex[rule.Pattern] = re
	m.mu.Unlock()
	return re
}

func fieldText(txn model.TransactionContext, field model.RuleField) string {
	switch field {
	case model.FieldDescription:
		return txn.Description
	case model.FieldMemo:
		return txn.Memo
	case model.FieldPayee:
		return txn.PayeeName
	}
	return ""
}
