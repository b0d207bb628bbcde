package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord is the append-only trace of one executed trade. Records
// are never mutated or deleted after commit.
type TransactionRecord struct {
	ID           string
	AccountID    string
	Symbol       string
	Side         Side
	Quantity     int64
	PricePerUnit decimal.Decimal
	ExecutedAt   time.Time
}

// Notional is quantity times execution price, unrounded.
func (t TransactionRecord) Notional() decimal.Decimal {
	return t.PricePerUnit.Mul(decimal.NewFromInt(t.Quantity))
}
