package pattern

import (
	"math"

	"github.com/Veraticus/dre-classifier/internal/model"
)

// Score weights.
const (
	matchTypeWeight  = 0.4
	confidenceWeight = 0.5
	usageWeight      = 0.1
	maxUsageBonus    = 0.15
)

// Scorer combines match-type weight, rule confidence and a logarithmic usage bonus.
type Scorer struct{}

// MatchTypeWeight returns the weight of a match type. Unknown types score zero.
func MatchTypeWeight(mt model.MatchType) float64 {
	switch mt {
	case model.MatchExact:
		return 1.0
	case model.MatchContains:
		return 0.85
	case model.MatchRegex:
		return 0.75
	}
	return 0
}

// UsageBonus is min(0.15, log10(usage+1)/10).
func UsageBonus(usageCount int) float64 {
	if usageCount <= 0 {
		return 0
	}
	return math.Min(maxUsageBonus, math.Log10(float64(usageCount)+1)/10)
}

// Score returns the rule score on the 0-1 scale.
func (Scorer) Score(rule model.Rule) float64 {
	score := MatchTypeWeight(rule.MatchType)*matchTypeWeight +
		clamp01(rule.Confidence)*confidenceWeight +
		UsageBonus(rule.UsageCount)*usageWeight
	return clamp01(score)
}

// Score100 returns the rule score on the 0-100 scale.
func (s Scorer) Score100(rule model.Rule) int {
	return toPercent(s.Score(rule))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func toPercent(v float64) int {
	return int(math.Round(clamp01(v) * 100))
}
