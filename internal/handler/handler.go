package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"tradeledger/internal/ledger"
	"tradeledger/internal/quote"
	"tradeledger/internal/store"
	"tradeledger/internal/trade"
	"tradeledger/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const recentTransactionLimit = 10

type accountStore interface {
	CreateAccount(ctx context.Context, accountID string, startingCash decimal.Decimal) error
	Get(ctx context.Context, accountID string) (*types.Account, error)
	Transactions(ctx context.Context, accountID string, from, to time.Time) ([]types.TransactionRecord, error)
}

type Handler struct {
	trades          *trade.Service
	accounts        accountStore
	quotes          quote.Source
	loc             *time.Location
	startingBalance decimal.Decimal
	logger          *zap.Logger
}

func New(trades *trade.Service, accounts accountStore, quotes quote.Source, loc *time.Location, startingBalance decimal.Decimal, logger *zap.Logger) *Handler {
	return &Handler{
		trades:          trades,
		accounts:        accounts,
		quotes:          quotes,
		loc:             loc,
		startingBalance: startingBalance,
		logger:          logger,
	}
}

type holdingJSON struct {
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	AverageCost decimal.Decimal `json:"averageCost"`
}

type transactionJSON struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Side         types.Side      `json:"side"`
	Quantity     int64           `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
	Timestamp    time.Time       `json:"timestamp"`
}

// OpenAccount provisions the authenticated account with the fixed starting
// balance. The auth layer calls this once at signup; replays get 409.
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)
	if err := h.accounts.CreateAccount(r.Context(), id, h.startingBalance); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			respondError(w, http.StatusConflict, "account already exists")
			return
		}
		h.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"accountId":      id,
		"virtualBalance": h.startingBalance,
	})
}

// Portfolio returns the balance plus all open holdings.
func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Get(r.Context(), accountID(r))
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "account not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	holdings := make([]holdingJSON, 0, len(acct.Holdings))
	for _, hld := range acct.Holdings {
		holdings = append(holdings, holdingJSON{Symbol: hld.Symbol, Quantity: hld.Quantity, AverageCost: hld.AvgCost})
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })

	respondJSON(w, http.StatusOK, map[string]any{
		"virtualBalance": acct.Cash,
		"holdings":       holdings,
	})
}

type tradeRequestJSON struct {
	Side     string `json:"side"`
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// Trade executes a market order for the authenticated account.
func (h *Handler) Trade(w http.ResponseWriter, r *http.Request) {
	var in tradeRequestJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side := types.Side(strings.ToUpper(in.Side))
	if !side.Valid() {
		respondError(w, http.StatusBadRequest, "side must be BUY or SELL")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	receipt, err := h.trades.Execute(r.Context(), accountID(r), trade.Request{
		Side:     side,
		Symbol:   symbol,
		Quantity: in.Quantity,
	})
	if err != nil {
		h.tradeError(w, r, err)
		return
	}

	out := map[string]any{
		"virtualBalance": receipt.Cash,
		"transaction": transactionJSON{
			ID:           receipt.Record.ID,
			Symbol:       receipt.Record.Symbol,
			Side:         receipt.Record.Side,
			Quantity:     receipt.Record.Quantity,
			PricePerUnit: receipt.Record.PricePerUnit,
			Timestamp:    receipt.Record.ExecutedAt,
		},
	}
	if receipt.Holding != nil {
		out["holding"] = holdingJSON{
			Symbol:      receipt.Holding.Symbol,
			Quantity:    receipt.Holding.Quantity,
			AverageCost: receipt.Holding.AvgCost,
		}
	}
	if side == types.SideTypeSell {
		out["realizedPnL"] = receipt.RealizedPnL
	}
	respondJSON(w, http.StatusOK, out)
}

// RecentTransactions returns the newest transactions, capped.
func (h *Handler) RecentTransactions(w http.ResponseWriter, r *http.Request) {
	h.listTransactions(w, r, recentTransactionLimit)
}

// AllTransactions returns the full history, newest first.
func (h *Handler) AllTransactions(w http.ResponseWriter, r *http.Request) {
	h.listTransactions(w, r, 0)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request, limit int) {
	records, err := h.accounts.Transactions(r.Context(), accountID(r), time.Time{}, time.Time{})
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "account not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	// Store order is oldest first; the API serves newest first.
	out := make([]transactionJSON, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		out = append(out, transactionJSON{
			ID:           rec.ID,
			Symbol:       rec.Symbol,
			Side:         rec.Side,
			Quantity:     rec.Quantity,
			PricePerUnit: rec.PricePerUnit,
			Timestamp:    rec.ExecutedAt,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// DailySummary aggregates today's trades in the service's reference
// timezone. ProfitLoss is the documented cash-flow proxy, not realized gain.
func (h *Handler) DailySummary(w http.ResponseWriter, r *http.Request) {
	from, to := ledger.DayWindow(time.Now(), h.loc)
	records, err := h.accounts.Transactions(r.Context(), accountID(r), from, to)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "account not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	s := ledger.Summarize(records, from, to)
	respondJSON(w, http.StatusOK, map[string]any{
		"totalTrades": s.TotalTrades,
		"totalVolume": s.TotalVolume,
		"totalValue":  s.TotalValue,
		"profitLoss":  s.ProfitLoss,
	})
}

// Quote returns the current price for a symbol, served through the cached
// source.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	price, err := h.quotes.GetPrice(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, quote.ErrUnavailable) {
			respondError(w, http.StatusBadGateway, "could not fetch price for symbol: "+symbol)
			return
		}
		h.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"currentPrice": price})
}

// tradeError maps the trade pipeline's error taxonomy onto HTTP statuses.
// Market-data problems must stay distinguishable from business rule
// violations.
func (h *Handler) tradeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.InvalidQuantityErr),
		errors.Is(err, ledger.InvalidPriceErr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.InsufficientFundsErr),
		errors.Is(err, ledger.InsufficientSharesErr):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.HoldingNotFoundErr),
		errors.Is(err, store.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, quote.ErrUnavailable):
		respondError(w, http.StatusBadGateway, "quote unavailable")
	case errors.Is(err, trade.ErrContention):
		respondError(w, http.StatusConflict, "account busy, please retry")
	default:
		h.internalError(w, r, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("account_id", accountID(r)),
		zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}
