package ledger

import (
	"time"

	"tradeledger/types"

	"github.com/shopspring/decimal"
)

// Summary aggregates one account's transaction log over a time window.
type Summary struct {
	TotalTrades int
	TotalVolume int64
	TotalValue  decimal.Decimal
	ProfitLoss  decimal.Decimal
}

// Summarize folds the records whose execution time falls in [from, to) into
// a Summary. It reads a committed snapshot of the log and mutates nothing,
// so it is safe to run while trades are in flight.
//
// ProfitLoss is a cash-flow proxy: sell proceeds minus buy cost inside the
// window. It ignores the cost basis of positions opened outside the window,
// so it is not a true realized-gain figure.
func Summarize(records []types.TransactionRecord, from, to time.Time) Summary {
	s := Summary{
		TotalValue: decimal.Zero,
		ProfitLoss: decimal.Zero,
	}
	for _, rec := range records {
		if rec.ExecutedAt.Before(from) || !rec.ExecutedAt.Before(to) {
			continue
		}
		notional := rec.Notional()
		s.TotalTrades++
		s.TotalVolume += rec.Quantity
		s.TotalValue = s.TotalValue.Add(notional)
		if rec.Side == types.SideTypeSell {
			s.ProfitLoss = s.ProfitLoss.Add(notional)
		} else {
			s.ProfitLoss = s.ProfitLoss.Sub(notional)
		}
	}
	return s
}

// DayWindow returns the [start, end) bounds of the calendar day containing
// now in the given location.
func DayWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
