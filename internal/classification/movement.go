// Package classification derives the coarse movement type of a bank
// transaction from its text and sign, before any category is chosen.
package classification

import (
	"slices"
	"strings"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/textsim"
	"github.com/shopspring/decimal"
)

// Side restricts a pattern to one direction of money flow.
type Side int

const (
	// SideAny applies regardless of sign.
	SideAny Side = iota
	// SideInflow applies to positive amounts.
	SideInflow
	// SideOutflow applies to zero or negative amounts.
	SideOutflow
)

// Pattern maps a keyword set to a movement type.
type Pattern struct {
	Name     string
	Movement model.MovementType
	Keywords []string
	Side     Side
	Priority int // Higher priority patterns are checked first
}

// Match explains a classification.
type Match struct {
	PatternName string
	Keyword     string
	Movement    model.MovementType
}

// MovementClassifier assigns one of the eight movement types to a transaction.
// It is immutable after construction and safe for concurrent use.
type MovementClassifier struct {
	patterns []Pattern
}

// NewMovementClassifier creates a classifier from the given patterns.
// Keywords are folded so callers may pass accented text.
func NewMovementClassifier(patterns []Pattern) *MovementClassifier {
	compiled := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		keywords := make([]string, 0, len(p.Keywords))
		for _, k := range p.Keywords {
			if folded := textsim.Fold(k); folded != "" {
				keywords = append(keywords, folded)
			}
		}
		p.Keywords = keywords
		compiled = append(compiled, p)
	}

	slices.SortStableFunc(compiled, func(a, b Pattern) int {
		return b.Priority - a.Priority
	})

	return &MovementClassifier{patterns: compiled}
}

// NewDefaultMovementClassifier uses DefaultPatterns.
func NewDefaultMovementClassifier() *MovementClassifier {
	return NewMovementClassifier(DefaultPatterns())
}

// Classify returns the movement type for the transaction text and amount.
func (c *MovementClassifier) Classify(description, memo string, amount decimal.Decimal) model.MovementType {
	return c.Explain(description, memo, amount).Movement
}

// Explain is Classify plus the pattern and keyword that decided it.
// When no pattern applies, the sign default is returned with an empty PatternName.
func (c *MovementClassifier) Explain(description, memo string, amount decimal.Decimal) Match {
	text := textsim.Fold(strings.TrimSpace(description + " " + memo))
	inflow := amount.IsPositive()

	for _, p := range c.patterns {
		switch p.Side {
		case SideInflow:
			if !inflow {
				continue
			}
		case SideOutflow:
			if inflow {
				continue
			}
		}
		if keyword, ok := textsim.ContainsAny(text, p.Keywords); ok {
			return Match{PatternName: p.Name, Keyword: keyword, Movement: p.Movement}
		}
	}

	if inflow {
		return Match{Movement: model.MovementOperatingRevenue}
	}
	return Match{Movement: model.MovementOperatingExpense}
}

// PatternCount returns the number of loaded patterns.
func (c *MovementClassifier) PatternCount() int {
	return len(c.patterns)
}
