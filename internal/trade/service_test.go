package trade

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tradeledger/internal/ledger"
	"tradeledger/internal/quote"
	"tradeledger/internal/store"
	"tradeledger/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ctx = context.Background()

type stubQuotes struct {
	mu     sync.Mutex
	prices []string
	err    error
	calls  int
}

func (s *stubQuotes) GetPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.prices) {
		idx = len(s.prices) - 1
	}
	return decimal.RequireFromString(s.prices[idx]), nil
}

// conflictStore rejects the first n commits with ErrConflict, then delegates.
type conflictStore struct {
	*store.Memory
	remaining int32
}

func (c *conflictStore) Commit(ctx context.Context, accountID string, version int64, acct *types.Account, rec types.TransactionRecord) error {
	if atomic.AddInt32(&c.remaining, -1) >= 0 {
		return store.ErrConflict
	}
	return c.Memory.Commit(ctx, accountID, version, acct, rec)
}

func newFundedStore(t *testing.T, cash string) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	if err := m.CreateAccount(ctx, "acct-1", decimal.RequireFromString(cash)); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestExecuteBuy(t *testing.T) {
	m := newFundedStore(t, "100000.00")
	quotes := &stubQuotes{prices: []string{"150.00"}}
	svc := NewService(quotes, m, zap.NewNop())

	receipt, err := svc.Execute(ctx, "acct-1", Request{Side: types.SideTypeBuy, Symbol: "AAPL", Quantity: 10})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if !receipt.Cash.Equal(decimal.RequireFromString("98500.00")) {
		t.Errorf("cash = %s, want 98500.00", receipt.Cash)
	}
	if receipt.Holding == nil || receipt.Holding.Quantity != 10 ||
		!receipt.Holding.AvgCost.Equal(decimal.RequireFromString("150.00")) {
		t.Errorf("holding = %+v, want 10 AAPL @ 150.00", receipt.Holding)
	}
	if !receipt.Record.PricePerUnit.Equal(decimal.RequireFromString("150.00")) {
		t.Errorf("record price = %s, want 150.00", receipt.Record.PricePerUnit)
	}

	// The committed state must match the receipt.
	acct, err := m.Get(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if !acct.Cash.Equal(receipt.Cash) {
		t.Errorf("stored cash = %s, receipt says %s", acct.Cash, receipt.Cash)
	}
	log, err := m.Transactions(ctx, "acct-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 1 {
		t.Errorf("log length = %d, want 1", len(log))
	}
}

func TestExecuteSellClosesPosition(t *testing.T) {
	m := newFundedStore(t, "100000.00")
	svc := NewService(&stubQuotes{prices: []string{"150.00"}}, m, zap.NewNop())
	if _, err := svc.Execute(ctx, "acct-1", Request{Side: types.SideTypeBuy, Symbol: "AAPL", Quantity: 10}); err != nil {
		t.Fatal(err)
	}

	svc = NewService(&stubQuotes{prices: []string{"180.00"}}, m, zap.NewNop())
	receipt, err := svc.Execute(ctx, "acct-1", Request{Side: types.SideTypeSell, Symbol: "AAPL", Quantity: 10})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if receipt.Holding != nil {
		t.Errorf("holding = %+v, want nil after closing sell", receipt.Holding)
	}
	if !receipt.RealizedPnL.Equal(decimal.RequireFromString("300.00")) {
		t.Errorf("realized pnl = %s, want 300.00", receipt.RealizedPnL)
	}
}

func TestExecuteQuoteFailureShortCircuits(t *testing.T) {
	m := newFundedStore(t, "100000.00")
	quotes := &stubQuotes{err: quote.ErrUnavailable}
	svc := NewService(quotes, m, zap.NewNop())

	_, err := svc.Execute(ctx, "acct-1", Request{Side: types.SideTypeBuy, Symbol: "AAPL", Quantity: 1})
	if !errors.Is(err, quote.ErrUnavailable) {
		t.Fatalf("Execute() error = %v, want ErrUnavailable", err)
	}
	if quotes.calls != 1 {
		t.Errorf("quote calls = %d, want 1 (no internal quote retry)", quotes.calls)
	}

	// No mutation may have happened.
	acct, err := m.Get(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if !acct.Cash.Equal(decimal.RequireFromString("100000.00")) {
		t.Errorf("cash = %s, quote failure mutated the account", acct.Cash)
	}
}

func TestExecuteBusinessErrorsPassThrough(t *testing.T) {
	m := newFundedStore(t, "100.00")
	svc := NewService(&stubQuotes{prices: []string{"150.00"}}, m, zap.NewNop())

	if _, err := svc.Execute(ctx, "acct-1", Request{Side: types.SideTypeBuy, Symbol: "AAPL", Quantity: 1}); !errors.Is(err, ledger.InsufficientFundsErr) {
		t.Errorf("buy error = %v, want InsufficientFundsErr", err)
	}
	if _, err := svc.Execute(ctx, "acct-1", Request{Side: types.SideTypeSell, Symbol: "AAPL", Quantity: 1}); !errors.Is(err, ledger.HoldingNotFoundErr) {
		t.Errorf("sell error = %v, want HoldingNotFoundErr", err)
	}
	if _, err := svc.Execute(ctx, "nobody", Request{Side: types.SideTypeBuy, Symbol: "AAPL", Quantity: 1}); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("unknown account error = %v, want ErrAccountNotFound", err)
	}
}

// A conflicted commit must retry against a fresh snapshot and a fresh quote.
func TestExecuteRetriesOnConflictWithFreshQuote(t *testing.T) {
	m := newFundedStore(t, "100000.00")
	cs := &conflictStore{Memory: m, remaining: 1}
	quotes := &stubQuotes{prices: []string{"100.00", "105.00"}}
	svc := NewService(quotes, cs, zap.NewNop())

	receipt, err := svc.Execute(ctx, "acct-1", Request{Side: types.SideTypeBuy, Symbol: "AAPL", Quantity: 1})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if quotes.calls != 2 {
		t.Errorf("quote calls = %d, want 2 (re-quote per attempt)", quotes.calls)
	}
	if !receipt.Record.PricePerUnit.Equal(decimal.RequireFromString("105.00")) {
		t.Errorf("executed at %s, want the re-fetched 105.00", receipt.Record.PricePerUnit)
	}
}

func TestExecuteContentionAfterRetriesExhausted(t *testing.T) {
	m := newFundedStore(t, "100000.00")
	cs := &conflictStore{Memory: m, remaining: 1000}
	quotes := &stubQuotes{prices: []string{"100.00"}}
	svc := NewService(quotes, cs, zap.NewNop())

	_, err := svc.Execute(ctx, "acct-1", Request{Side: types.SideTypeBuy, Symbol: "AAPL", Quantity: 1})
	if !errors.Is(err, ErrContention) {
		t.Fatalf("Execute() error = %v, want ErrContention", err)
	}
	if quotes.calls != maxAttempts {
		t.Errorf("quote calls = %d, want %d", quotes.calls, maxAttempts)
	}
}

// N goroutines hammer one account with buys and sells. Afterwards the
// invariants must hold: non-negative cash, positive holding quantities, and
// a log entry per committed trade, with cash reconciling exactly against the
// log's cash flows.
func TestExecuteConcurrentTradesOneAccount(t *testing.T) {
	m := newFundedStore(t, "1000.00")
	quotes := &stubQuotes{prices: []string{"10.00"}}
	svc := NewService(quotes, m, zap.NewNop())

	const workers = 40
	var wg sync.WaitGroup
	var committed int64

	for i := 0; i < workers; i++ {
		side := types.SideTypeBuy
		if i%2 == 0 {
			side = types.SideTypeSell
		}
		wg.Add(1)
		go func(side types.Side) {
			defer wg.Done()
			_, err := svc.Execute(ctx, "acct-1", Request{Side: side, Symbol: "AAPL", Quantity: 1})
			if err == nil {
				atomic.AddInt64(&committed, 1)
				return
			}
			// Rejections and contention are legal outcomes here; partial
			// effects or unknown errors are not.
			if !errors.Is(err, ledger.InsufficientFundsErr) &&
				!errors.Is(err, ledger.InsufficientSharesErr) &&
				!errors.Is(err, ledger.HoldingNotFoundErr) &&
				!errors.Is(err, ErrContention) {
				t.Errorf("unexpected error: %v", err)
			}
		}(side)
	}
	wg.Wait()

	acct, err := m.Get(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Cash.IsNegative() {
		t.Errorf("cash went negative: %s", acct.Cash)
	}
	for sym, h := range acct.Holdings {
		if h.Quantity < 1 {
			t.Errorf("holding %s has quantity %d", sym, h.Quantity)
		}
	}

	log, err := m.Transactions(ctx, "acct-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(log)) != committed {
		t.Errorf("log length = %d, committed trades = %d", len(log), committed)
	}

	// Replay the log's cash flows; they must land exactly on the final cash.
	cash := decimal.RequireFromString("1000.00")
	for _, rec := range log {
		if rec.Side == types.SideTypeBuy {
			cash = cash.Sub(rec.Notional())
		} else {
			cash = cash.Add(rec.Notional())
		}
	}
	if !cash.Equal(acct.Cash) {
		t.Errorf("replayed cash = %s, stored cash = %s", cash, acct.Cash)
	}
}

