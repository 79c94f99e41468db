package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/shopspring/decimal"
)

// inputLine is one JSONL input record.
type inputLine struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Memo        string          `json:"memo,omitempty"`
	Payee       string          `json:"payee,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// outputLine is one JSONL output record.
type outputLine struct {
	ID           string             `json:"id,omitempty"`
	Description  string             `json:"description"`
	CategoryID   string             `json:"category_id,omitempty"`
	CategoryName string             `json:"category_name"`
	Source       model.Source       `json:"source"`
	RuleID       string             `json:"rule_id,omitempty"`
	MovementType model.MovementType `json:"movement_type"`
	ReasonCode   model.ReasonCode   `json:"reason_code"`
	Reason       string             `json:"reason"`
	Confidence   int                `json:"confidence"`
	NeedsReview  bool               `json:"needs_review"`
}

// readTransactions parses JSONL transactions, skipping blank lines.
func readTransactions(r io.Reader) ([]model.TransactionContext, error) {
	var txns []model.TransactionContext
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var in inputLine
		if err := json.Unmarshal([]byte(text), &in); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(in.Description) == "" {
			return nil, fmt.Errorf("line %d: description is required", line)
		}
		txns = append(txns, model.TransactionContext{
			TransactionID: in.ID,
			Description:   in.Description,
			Memo:          in.Memo,
			PayeeName:     in.Payee,
			Amount:        in.Amount,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return txns, nil
}

// writeResults writes one JSONL record per result, in input order.
func writeResults(w io.Writer, txns []model.TransactionContext, results []model.CategorizationResult) error {
	enc := json.NewEncoder(w)
	for i, r := range results {
		out := outputLine{
			ID:           txns[i].TransactionID,
			Description:  txns[i].Description,
			CategoryID:   r.CategoryID,
			CategoryName: r.CategoryName,
			Source:       r.Source,
			RuleID:       r.RuleID,
			MovementType: r.MovementType,
			ReasonCode:   r.Reason.Code,
			Reason:       r.Reason.Message,
			Confidence:   r.Confidence,
			NeedsReview:  r.NeedsReview,
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to write result %d: %w", i+1, err)
		}
	}
	return nil
}
