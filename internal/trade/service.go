// Package trade orchestrates one trade request: quote, load, ledger
// transition, commit. The account store is the only synchronization
// boundary; the quote is always fetched before the store is touched, so an
// account is never held exclusively while waiting on the network.
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradeledger/internal/ledger"
	"tradeledger/internal/store"
	"tradeledger/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// One initial attempt plus three conflict retries. Each retry re-fetches the
// quote so the trade never settles on a price from before the conflict.
const maxAttempts = 4

var ErrContention = errors.New("account under contention, try again")

type quoteSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type accountStore interface {
	LoadForUpdate(ctx context.Context, accountID string) (*types.Account, int64, error)
	Commit(ctx context.Context, accountID string, version int64, acct *types.Account, rec types.TransactionRecord) error
}

// Request is one validated trade order: market order, whole shares, no
// partial fills.
type Request struct {
	Side     types.Side
	Symbol   string
	Quantity int64
}

// Receipt is what the caller gets back after a committed trade. Holding is
// nil when the sell closed the position.
type Receipt struct {
	Cash        decimal.Decimal
	Holding     *types.Holding
	Record      types.TransactionRecord
	RealizedPnL decimal.Decimal
}

type Service struct {
	quotes quoteSource
	store  accountStore
	logger *zap.Logger
	now    func() time.Time
}

func NewService(quotes quoteSource, st accountStore, logger *zap.Logger) *Service {
	return &Service{
		quotes: quotes,
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Execute runs the trade pipeline for accountID. Commit conflicts are
// retried transparently with a fresh quote and a fresh snapshot; every other
// error is terminal and leaves no partial effects, because the ledger
// transition is computed fully before the all-or-nothing commit.
func (s *Service) Execute(ctx context.Context, accountID string, req Request) (*Receipt, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		price, err := s.quotes.GetPrice(ctx, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("quote %s: %w", req.Symbol, err)
		}

		acct, version, err := s.store.LoadForUpdate(ctx, accountID)
		if err != nil {
			return nil, err
		}

		res, err := ledger.Apply(acct, req.Side, req.Symbol, req.Quantity, price, s.now().UTC())
		if err != nil {
			return nil, err
		}

		if err := s.store.Commit(ctx, accountID, version, res.Account, res.Record); err != nil {
			if errors.Is(err, store.ErrConflict) {
				s.logger.Debug("commit conflict, re-quoting",
					zap.String("account_id", accountID),
					zap.String("symbol", req.Symbol),
					zap.Int("attempt", attempt))
				continue
			}
			return nil, err
		}

		s.logger.Info("trade committed",
			zap.String("account_id", accountID),
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.Int64("quantity", req.Quantity),
			zap.String("price", price.String()))

		receipt := &Receipt{
			Cash:        res.Account.Cash,
			Record:      res.Record,
			RealizedPnL: res.RealizedPnL,
		}
		if h, ok := res.Account.Holdings[req.Symbol]; ok {
			hc := *h
			receipt.Holding = &hc
		}
		return receipt, nil
	}

	s.logger.Warn("trade retries exhausted", zap.String("account_id", accountID), zap.String("symbol", req.Symbol))
	return nil, ErrContention
}
