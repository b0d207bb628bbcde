// Package quote supplies current market prices. Sources are treated as
// untrusted: any provider failure, missing price or non-positive price maps
// to ErrUnavailable so callers can tell market-data problems apart from
// business rule violations.
package quote

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrUnavailable = errors.New("quote unavailable")

type Source interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
