package model

// ReasonCode is the closed set of explanations attached to a result.
type ReasonCode string

// Reason codes.
const (
	ReasonCacheHit            ReasonCode = "CACHE_HIT"
	ReasonRuleMatch           ReasonCode = "RULE_MATCH"
	ReasonHistoryMatch        ReasonCode = "HISTORY_MATCH"
	ReasonAIClassification    ReasonCode = "AI_CLASSIFICATION"
	ReasonAccountingViolation ReasonCode = "ACCOUNTING_CONSISTENCY_VIOLATION"
	ReasonAmbiguousPattern    ReasonCode = "AMBIGUOUS_PATTERN"
	ReasonLowConfidence       ReasonCode = "LOW_CONFIDENCE"
	ReasonManualFallback      ReasonCode = "MANUAL_FALLBACK"
)

// Reason is a structured explanation. Metadata always matches Code.
type Reason struct {
	Metadata ReasonMetadata
	Code     ReasonCode
	Message  string
}

// ReasonMetadata is implemented only by the metadata types in this package.
type ReasonMetadata interface {
	reasonCode() ReasonCode
}

// CacheHitMetadata describes a cache hit.
type CacheHitMetadata struct {
	Key        string
	HitCount   int64
	Similarity float64
}

// RuleMatchMetadata describes a rule hit.
type RuleMatchMetadata struct {
	RuleID    string
	Pattern   string
	MatchType MatchType
	Field     RuleField
	Score     float64
}

// HistoryMatchMetadata describes a match against a past transaction.
type HistoryMatchMetadata struct {
	TransactionID      string
	MatchedDescription string
	Similarity         float64
}

// AIClassificationMetadata carries the model's own explanation.
type AIClassificationMetadata struct {
	Reasoning string
	Model     string
}

// AccountingViolationMetadata keeps the reason that was overridden by the validator.
type AccountingViolationMetadata struct {
	Original           Reason
	Check              string
	Detail             string
	OriginalSource     Source
	OriginalConfidence float64
}

// AmbiguousPatternMetadata records a confidence cap for generic text.
type AmbiguousPatternMetadata struct {
	Original           Reason
	Predicate          string
	OriginalConfidence float64
}

// LowConfidenceMetadata explains why no layer was accepted.
type LowConfidenceMetadata struct {
	BestSource Source
	Threshold  int
}

// ManualFallbackMetadata lists the layers that were attempted.
type ManualFallbackMetadata struct {
	Attempted []Source
}

func (CacheHitMetadata) reasonCode() ReasonCode            { return ReasonCacheHit }
func (RuleMatchMetadata) reasonCode() ReasonCode           { return ReasonRuleMatch }
func (HistoryMatchMetadata) reasonCode() ReasonCode        { return ReasonHistoryMatch }
func (AIClassificationMetadata) reasonCode() ReasonCode    { return ReasonAIClassification }
func (AccountingViolationMetadata) reasonCode() ReasonCode { return ReasonAccountingViolation }
func (AmbiguousPatternMetadata) reasonCode() ReasonCode    { return ReasonAmbiguousPattern }
func (LowConfidenceMetadata) reasonCode() ReasonCode       { return ReasonLowConfidence }
func (ManualFallbackMetadata) reasonCode() ReasonCode      { return ReasonManualFallback }

// NewReason builds a reason whose code is derived from its metadata.
func NewReason(message string, metadata ReasonMetadata) Reason {
	return Reason{
		Code:     metadata.reasonCode(),
		Message:  message,
		Metadata: metadata,
	}
}
