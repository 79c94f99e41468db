package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    ClassificationResponse
		wantErr bool
	}{
		{
			name:    "plain JSON",
			content: `{"category": "Aluguel", "confidence": 0.91, "reasoning": "rent"}`,
			want:    ClassificationResponse{Category: "Aluguel", Confidence: 0.91, Reasoning: "rent"},
		},
		{
			name:    "markdown fence",
			content: "```json\n{\"category\": \"Aluguel\", \"confidence\": 0.8}\n```",
			want:    ClassificationResponse{Category: "Aluguel", Confidence: 0.8},
		},
		{
			name:    "percentage string",
			content: `{"category": "Aluguel", "confidence": "75%"}`,
			want:    ClassificationResponse{Category: "Aluguel", Confidence: 0.75},
		},
		{
			name:    "integer percent",
			content: `{"category": " Aluguel ", "confidence": 95}`,
			want:    ClassificationResponse{Category: "Aluguel", Confidence: 0.95},
		},
		{name: "no JSON", content: "I think it is rent", wantErr: true},
		{name: "missing category", content: `{"confidence": 0.9}`, wantErr: true},
		{name: "missing confidence", content: `{"category": "Aluguel"}`, wantErr: true},
		{name: "negative confidence", content: `{"category": "Aluguel", "confidence": -0.2}`, wantErr: true},
		{name: "confidence over 100", content: `{"category": "Aluguel", "confidence": 150}`, wantErr: true},
		{name: "NaN confidence", content: `{"category": "Aluguel", "confidence": "NaN"}`, wantErr: true},
		{name: "infinite confidence", content: `{"category": "Aluguel", "confidence": "+Inf"}`, wantErr: true},
		{name: "broken JSON", content: `{"category": "Aluguel", "confidence": }`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassification(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Category, got.Category)
			assert.InDelta(t, tt.want.Confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.want.Reasoning, got.Reasoning)
		})
	}
}
