package model

import "time"

// MatchType controls how a rule pattern is compared to transaction text.
type MatchType string

// Match type constants.
const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// RuleStatus is the lifecycle state of a rule. Values are part of the
// contract with the review queue and must not change.
type RuleStatus string

// Rule status constants.
const (
	RuleCandidate    RuleStatus = "candidate"
	RuleActive       RuleStatus = "active"
	RuleRefined      RuleStatus = "refined"
	RuleConsolidated RuleStatus = "consolidated"
	RuleInactive     RuleStatus = "inactive"
)

// Matchable reports whether rules in this status participate in matching.
func (s RuleStatus) Matchable() bool {
	return s == RuleActive || s == RuleRefined || s == RuleConsolidated
}

// Valid reports whether s is a known status.
func (s RuleStatus) Valid() bool {
	switch s {
	case RuleCandidate, RuleActive, RuleRefined, RuleConsolidated, RuleInactive:
		return true
	}
	return false
}

// RuleSource indicates how a rule was created.
type RuleSource string

const (
	// RuleSourceManual indicates a rule written by a person.
	RuleSourceManual RuleSource = "manual"
	// RuleSourceAI indicates a rule minted from clustered AI classifications.
	RuleSourceAI RuleSource = "ai"
	// RuleSourceImported indicates a rule loaded from a seed file.
	RuleSourceImported RuleSource = "imported"
)

// RuleField names a transaction field a rule may be matched against.
type RuleField string

// Rule field constants.
const (
	FieldDescription RuleField = "description"
	FieldMemo        RuleField = "memo"
	FieldPayee       RuleField = "payee"
)

// Rule maps a text pattern to a category.
type Rule struct {
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastUsedAt      *time.Time
	ID              string
	TenantID        string
	Pattern         string
	MatchType       MatchType
	CategoryID      string
	CategoryName    string
	Status          RuleStatus
	Source          RuleSource
	ParentRuleID    string
	Fields          []RuleField
	Confidence      float64
	UsageCount      int
	ValidationCount int
	NegativeCount   int
}

// MatchFields returns the fields the rule applies to, defaulting to the description.
func (r Rule) MatchFields() []RuleField {
	if len(r.Fields) == 0 {
		return []RuleField{FieldDescription}
	}
	return r.Fields
}

// FeedbackOutcome records what a reviewer did with a rule-driven classification.
type FeedbackOutcome string

// Feedback outcome constants.
const (
	FeedbackConfirmed FeedbackOutcome = "confirmed"
	FeedbackCorrected FeedbackOutcome = "corrected"
)

// RuleFeedback is an immutable audit record of a human decision on a rule hit.
type RuleFeedback struct {
	CreatedAt           time.Time
	ID                  string
	TenantID            string
	RuleID              string
	TransactionID       string
	Outcome             FeedbackOutcome
	CorrectedCategoryID string
	Note                string
}
