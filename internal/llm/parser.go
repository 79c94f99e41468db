package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseClassification extracts the JSON answer from model output, tolerating
// markdown fences and chatter around the object.
func parseClassification(content string) (ClassificationResponse, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return ClassificationResponse{}, fmt.Errorf("no JSON object in response: %q", truncate(content, 120))
	}

	var resp struct {
		Category   string          `json:"category"`
		Reasoning  string          `json:"reasoning"`
		Confidence json.RawMessage `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return ClassificationResponse{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	category := strings.TrimSpace(resp.Category)
	if category == "" {
		return ClassificationResponse{}, fmt.Errorf("no category found in response")
	}

	confidence, err := parseConfidence(resp.Confidence)
	if err != nil {
		return ClassificationResponse{}, err
	}

	return ClassificationResponse{
		Category:   category,
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(resp.Reasoning),
	}, nil
}

// parseConfidence accepts 0.92, "0.92", 92 and "92%", returning a value in [0, 1].
func parseConfidence(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("no confidence found in response")
	}

	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	percent := strings.HasSuffix(text, "%")
	text = strings.TrimSpace(strings.TrimSuffix(text, "%"))

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid confidence %s: %w", raw, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("confidence is not a finite number: %s", raw)
	}
	if percent || value > 1 {
		value /= 100
	}
	if value < 0 || value > 1 {
		return 0, fmt.Errorf("confidence out of range: %s", raw)
	}
	return value, nil
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
