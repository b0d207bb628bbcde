package types

import (
	"github.com/shopspring/decimal"
)

// Account is the single contended entity: one cash balance plus the set of
// open positions, mutated only through ledger transitions.
type Account struct {
	ID       string
	Cash     decimal.Decimal
	Holdings map[string]*Holding
}

// Holding is an open position. Quantity is always >= 1; a holding that
// reaches zero is removed from the account, never kept at zero.
type Holding struct {
	Symbol   string
	Quantity int64
	AvgCost  decimal.Decimal
}

func NewAccount(id string, startingCash decimal.Decimal) *Account {
	return &Account{
		ID:       id,
		Cash:     startingCash,
		Holdings: make(map[string]*Holding),
	}
}

// Clone returns a deep copy so a caller can hand out snapshots without
// exposing its own holdings map.
func (a *Account) Clone() *Account {
	c := &Account{
		ID:       a.ID,
		Cash:     a.Cash,
		Holdings: make(map[string]*Holding, len(a.Holdings)),
	}
	for sym, h := range a.Holdings {
		hc := *h
		c.Holdings[sym] = &hc
	}
	return c
}
