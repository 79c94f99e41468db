// Package ambiguity decides when bank statement text is too generic to be
// categorized without a human. The same policy feeds the cache deny-list and
// the orchestrator's confidence cap.
package ambiguity

import (
	"strings"

	"github.com/Veraticus/dre-classifier/internal/textsim"
)

// Predicate flags normalized text as non-discriminating.
type Predicate interface {
	Name() string
	Match(normalized string) bool
}

// PredicateFunc adapts a function to the Predicate interface.
type PredicateFunc struct {
	Fn    func(normalized string) bool
	Label string
}

// Name returns the predicate label.
func (p PredicateFunc) Name() string { return p.Label }

// Match calls the wrapped function.
func (p PredicateFunc) Match(normalized string) bool { return p.Fn(normalized) }

// DefaultGenericTerms are tokens that say how money moved but not why.
var DefaultGenericTerms = []string{
	"SISPAG", "PAGAMENTO", "PAGAMENTOS", "PAGTO", "PGTO", "PAG",
	"FORNECEDOR", "FORNECEDORES", "FORNEC", "TED", "DOC", "PIX",
	"TRANSFERENCIA", "TRANSF", "DEBITO", "CREDITO", "ENVIADO", "ENVIADA",
	"RECEBIDO", "RECEBIDA", "BOLETO", "TITULO", "TITULOS", "DIVERSOS",
	"LANCAMENTO", "OUTROS", "CONTA", "DE", "DA", "DO", "EM", "A", "O",
}

// DefaultBarePatterns are whole descriptions known to be ambiguous.
var DefaultBarePatterns = []string{
	"SISPAG",
	"PAGAMENTO FORNECEDORES",
	"DEBITO AUTOMATICO",
	"PAGAMENTO DIVERSOS",
}

// GenericTerms matches text whose non-numeric tokens are all generic.
type GenericTerms struct {
	terms map[string]struct{}
}

// NewGenericTerms builds the predicate from a term list.
func NewGenericTerms(terms []string) *GenericTerms {
	g := &GenericTerms{terms: make(map[string]struct{}, len(terms))}
	for _, term := range terms {
		if n := textsim.Normalize(term); n != "" {
			g.terms[n] = struct{}{}
		}
	}
	return g
}

// Name returns the predicate label.
func (g *GenericTerms) Name() string { return "generic_terms" }

// Match reports whether no token carries discriminating information.
func (g *GenericTerms) Match(normalized string) bool {
	for _, token := range strings.Fields(normalized) {
		if textsim.IsNumeric(token) {
			continue
		}
		if _, ok := g.terms[token]; !ok {
			return false
		}
	}
	return true
}

// BarePatterns matches text equal to one of a fixed list of descriptions.
type BarePatterns struct {
	patterns map[string]struct{}
}

// NewBarePatterns builds the predicate from a pattern list.
func NewBarePatterns(patterns []string) *BarePatterns {
	b := &BarePatterns{patterns: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		if n := textsim.Normalize(p); n != "" {
			b.patterns[n] = struct{}{}
		}
	}
	return b
}

// Name returns the predicate label.
func (b *BarePatterns) Name() string { return "bare_pattern" }

// Match reports whether the text is exactly one of the known patterns.
func (b *BarePatterns) Match(normalized string) bool {
	_, ok := b.patterns[normalized]
	return ok
}

// Policy is an ordered set of predicates.
type Policy struct {
	predicates []Predicate
}

// NewPolicy creates a policy from the given predicates.
func NewPolicy(predicates ...Predicate) *Policy {
	return &Policy{predicates: predicates}
}

// DefaultPolicy returns the built-in Brazilian bank statement policy, extended
// with any extra generic terms.
func DefaultPolicy(extraTerms ...string) *Policy {
	terms := make([]string, 0, len(DefaultGenericTerms)+len(extraTerms))
	terms = append(terms, DefaultGenericTerms...)
	terms = append(terms, extraTerms...)
	return NewPolicy(NewBarePatterns(DefaultBarePatterns), NewGenericTerms(terms))
}

// Check normalizes text and returns the name of the first predicate that matched.
func (p *Policy) Check(text string) (string, bool) {
	if p == nil {
		return "", false
	}
	normalized := textsim.Normalize(text)
	for _, pred := range p.predicates {
		if pred.Match(normalized) {
			return pred.Name(), true
		}
	}
	return "", false
}

// IsAmbiguous reports whether any predicate matches the text.
func (p *Policy) IsAmbiguous(text string) bool {
	_, ok := p.Check(text)
	return ok
}
