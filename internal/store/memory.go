package store

import (
	"context"
	"sync"
	"time"

	"tradeledger/types"

	"github.com/shopspring/decimal"
)

type memoryAccount struct {
	version int64
	acct    *types.Account
	log     []types.TransactionRecord
}

// Memory is an in-process AccountStore used in tests and local development.
// A single RWMutex guards the map; per-account versions provide the same
// optimistic commit semantics as the Postgres store.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*memoryAccount
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]*memoryAccount)}
}

func (m *Memory) CreateAccount(ctx context.Context, accountID string, startingCash decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; ok {
		return ErrAccountExists
	}
	m.accounts[accountID] = &memoryAccount{
		acct: types.NewAccount(accountID, startingCash),
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, accountID string) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return entry.acct.Clone(), nil
}

// LoadForUpdate returns a deep-copied snapshot plus the version token to
// present at Commit.
func (m *Memory) LoadForUpdate(ctx context.Context, accountID string) (*types.Account, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.accounts[accountID]
	if !ok {
		return nil, 0, ErrAccountNotFound
	}
	return entry.acct.Clone(), entry.version, nil
}

// Commit installs the new state and appends the record, or fails with
// ErrConflict if the account was committed to since version was issued.
// State and log move together under the lock.
func (m *Memory) Commit(ctx context.Context, accountID string, version int64, acct *types.Account, rec types.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if entry.version != version {
		return ErrConflict
	}
	entry.acct = acct.Clone()
	entry.log = append(entry.log, rec)
	entry.version++
	return nil
}

// Transactions returns the account's records with execution time in
// [from, to), oldest first. Zero bounds mean unbounded on that side.
func (m *Memory) Transactions(ctx context.Context, accountID string, from, to time.Time) ([]types.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	var out []types.TransactionRecord
	for _, rec := range entry.log {
		if !from.IsZero() && rec.ExecutedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !rec.ExecutedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
