package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionContext is a single bank statement line to categorize.
// Amount is signed: positive is an inflow, negative an outflow.
type TransactionContext struct {
	Amount        decimal.Decimal
	TransactionID string // Optional, only used to track cluster membership
	Description   string
	Memo          string
	PayeeName     string
}

// CategorizedTransaction is a previously categorized line, read by the history layer.
type CategorizedTransaction struct {
	CategorizedAt time.Time
	Amount        decimal.Decimal
	ID            string
	TenantID      string
	Description   string
	Memo          string
	PayeeName     string
	CategoryID    string
	CategoryName  string
	Source        Source
	Confidence    float64
}
