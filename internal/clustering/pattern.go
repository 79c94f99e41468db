package clustering

import (
	"strings"
	"unicode"

	"github.com/Veraticus/dre-classifier/internal/textsim"
)

// MaxPatternTokens bounds the significant tokens kept in a pattern.
const MaxPatternTokens = 4

const minSignificantChars = 3

// StopWords are Portuguese function words and banking noise that say nothing
// about the counterparty.
var StopWords = []string{
	"A", "O", "AS", "OS", "E", "DE", "DA", "DO", "DAS", "DOS", "EM", "NA", "NO",
	"NAS", "NOS", "PARA", "POR", "COM", "AO",
	"PIX", "TED", "DOC", "TEF", "QR", "QRCODE", "RECEBIDO", "RECEBIDA", "ENVIADO",
	"ENVIADA", "TRANSF", "TRANSFERENCIA", "PAGTO", "PGTO", "PAG", "PAGAMENTO",
	"COMPRA", "COMPRAS", "DEBITO", "CREDITO", "CARTAO", "BOLETO", "SISPAG", "TIT",
	"TITULO", "CPF", "CNPJ", "LTDA", "ME", "EIRELI", "SA", "AG", "CC", "CONTA",
	"REF", "DOCTO", "NR", "INT", "ELO", "VISA", "MASTERCARD",
}

var stopWords = func() map[string]struct{} {
	m := make(map[string]struct{}, len(StopWords))
	for _, w := range StopWords {
		m[w] = struct{}{}
	}
	return m
}()

// ExtractPattern reduces a description to the lexical pattern that identifies
// its counterparty. The text is folded and split into runs at tokens carrying
// digits (dates, amounts, document numbers); the run with the most significant
// characters wins. Leading and trailing stop words are trimmed and the run is
// cut after MaxPatternTokens significant tokens, so the pattern stays a
// contiguous phrase of the original text.
func ExtractPattern(description string) (string, bool) {
	var best []string
	bestScore := 0

	for _, run := range splitRuns(strings.Fields(textsim.Fold(description))) {
		run = trimRun(run)
		if score := significantChars(run); score > bestScore {
			best, bestScore = run, score
		}
	}

	if bestScore < minSignificantChars {
		return "", false
	}
	return strings.Join(best, " "), true
}

func splitRuns(tokens []string) [][]string {
	var runs [][]string
	var current []string
	for _, t := range tokens {
		if hasDigit(t) {
			if len(current) > 0 {
				runs = append(runs, current)
			}
			current = nil
			continue
		}
		current = append(current, t)
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}

func trimRun(run []string) []string {
	start := 0
	for start < len(run) && !significant(run[start]) {
		start++
	}
	run = run[start:]

	kept := 0
	for i, t := range run {
		if significant(t) {
			kept++
			if kept == MaxPatternTokens {
				run = run[:i+1]
				break
			}
		}
	}

	end := len(run)
	for end > 0 && !significant(run[end-1]) {
		end--
	}
	return run[:end]
}

func significantChars(run []string) int {
	n := 0
	for _, t := range run {
		if significant(t) {
			n += len(t)
		}
	}
	return n
}

func significant(token string) bool {
	if len(token) < 2 {
		return false
	}
	_, stop := stopWords[token]
	return !stop
}

func hasDigit(token string) bool {
	return strings.IndexFunc(token, unicode.IsDigit) >= 0
}
