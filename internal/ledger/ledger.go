package ledger

import (
	"errors"
	"time"

	"tradeledger/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	InvalidQuantityErr    = errors.New("quantity must be a positive integer")
	InvalidPriceErr       = errors.New("price must be positive")
	InsufficientFundsErr  = errors.New("insufficient funds")
	InsufficientSharesErr = errors.New("insufficient shares to sell")
	HoldingNotFoundErr    = errors.New("no holding for symbol")
)

// Result carries the outcome of one applied transition. Account is the
// updated state, Record the append-only trace of the trade. RealizedPnL is
// (price - avg cost) x quantity on sells and zero on buys; it is reported
// but never stored on the holding.
type Result struct {
	Account     *types.Account
	Record      types.TransactionRecord
	RealizedPnL decimal.Decimal
}

// Apply runs a single BUY or SELL transition against acct and returns the
// updated state together with the transaction record. It is pure apart from
// mutating acct: no I/O, no clock reads. Validation happens before any
// mutation, so on error acct is untouched.
//
// Money stays in exact decimals throughout. Cost and proceeds are never
// rounded; only the recomputed average cost is rounded, half-up to two
// places.
func Apply(acct *types.Account, side types.Side, symbol string, quantity int64, price decimal.Decimal, now time.Time) (*Result, error) {
	if quantity <= 0 {
		return nil, InvalidQuantityErr
	}
	if !price.IsPositive() {
		return nil, InvalidPriceErr
	}

	res := &Result{Account: acct, RealizedPnL: decimal.Zero}
	notional := price.Mul(decimal.NewFromInt(quantity))

	switch side {
	case types.SideTypeBuy:
		if notional.GreaterThan(acct.Cash) {
			return nil, InsufficientFundsErr
		}
		acct.Cash = acct.Cash.Sub(notional)
		if h, ok := acct.Holdings[symbol]; ok {
			newQty := h.Quantity + quantity
			h.AvgCost = weightedAvgCost(h.AvgCost, h.Quantity, price, quantity)
			h.Quantity = newQty
		} else {
			acct.Holdings[symbol] = &types.Holding{
				Symbol:   symbol,
				Quantity: quantity,
				AvgCost:  price,
			}
		}

	case types.SideTypeSell:
		h, ok := acct.Holdings[symbol]
		if !ok {
			return nil, HoldingNotFoundErr
		}
		if quantity > h.Quantity {
			return nil, InsufficientSharesErr
		}
		acct.Cash = acct.Cash.Add(notional)
		h.Quantity -= quantity
		res.RealizedPnL = price.Sub(h.AvgCost).Mul(decimal.NewFromInt(quantity))
		if h.Quantity == 0 {
			delete(acct.Holdings, symbol)
		}

	default:
		return nil, errors.New("unknown trade side: " + string(side))
	}

	res.Record = types.TransactionRecord{
		ID:           uuid.NewString(),
		AccountID:    acct.ID,
		Symbol:       symbol,
		Side:         side,
		Quantity:     quantity,
		PricePerUnit: price,
		ExecutedAt:   now,
	}
	return res, nil
}

// weightedAvgCost recomputes the average cost after a scale-in buy:
// (oldQty*oldAvg + addQty*price) / (oldQty+addQty), rounded half-up to two
// fractional digits. Sells never pass through here.
func weightedAvgCost(oldAvg decimal.Decimal, oldQty int64, price decimal.Decimal, addQty int64) decimal.Decimal {
	oldValue := oldAvg.Mul(decimal.NewFromInt(oldQty))
	addValue := price.Mul(decimal.NewFromInt(addQty))
	return oldValue.Add(addValue).Div(decimal.NewFromInt(oldQty + addQty)).Round(2)
}
