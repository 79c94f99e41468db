package textsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "upper cases and collapses whitespace", in: "  pix   recebido ", want: "PIX RECEBIDO"},
		{name: "keeps short digit tokens", in: "PIX RECEBIDO 500,00 CLIENTE XPTO", want: "PIX RECEBIDO 500 00 CLIENTE XPTO"},
		{name: "strips long digit runs", in: "TED 0012345678 FORNECEDOR ABC", want: "TED FORNECEDOR ABC"},
		{name: "strips accents", in: "Devolução de mercadoria", want: "DEVOLUCAO DE MERCADORIA"},
		{name: "drops punctuation", in: "PAG*FORNEC-XYZ/SP", want: "PAG FORNEC XYZ SP"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestFold_KeepsLongDigits(t *testing.T) {
	assert.Equal(t, "TED 0012345678 ABC", Fold("ted 0012345678 abc"))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("ABC", "ABC"), 0.0001)
	assert.InDelta(t, 0.0, Similarity("", "ABC"), 0.0001)
	assert.InDelta(t, 0.75, Similarity("ABCD", "ABCE"), 0.0001)
	assert.InDelta(t, 0.0, Similarity("AAAA", "BBBB"), 0.0001)
	assert.Greater(t, Similarity("ENERGIA ELETRICA CEMIG", "ENERGIA ELETRICA CEMIG 2"), 0.9)
}

func TestContainsPhrase(t *testing.T) {
	assert.True(t, ContainsPhrase("SALARIOS FUNCIONARIOS", "SALARIOS"))
	assert.True(t, ContainsPhrase("PAGTO SIMPLES NACIONAL", "SIMPLES NACIONAL"))
	assert.False(t, ContainsPhrase("VENDAS BALCAO", "DAS"))
	assert.False(t, ContainsPhrase("ANYTHING", ""))

	match, ok := ContainsAny("ESTORNO TARIFA", []string{"DEVOLUCAO", "ESTORNO"})
	assert.True(t, ok)
	assert.Equal(t, "ESTORNO", match)
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("2024"))
	assert.False(t, IsNumeric("20A4"))
	assert.False(t, IsNumeric(""))
}
