package types

import "github.com/shopspring/decimal"

// Quote is an ephemeral market price, fetched fresh per trade attempt and
// never persisted on its own.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
}
