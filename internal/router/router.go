package router

import (
	"net/http"
	"time"

	"tradeledger/internal/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func Setup(h *handler.Handler, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Account-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Quotes are public; everything touching an account needs a resolved
	// identity.
	r.Get("/api/stocks/quote/{symbol}", h.Quote)

	r.Group(func(pr chi.Router) {
		pr.Use(handler.RequireAccount)

		pr.Post("/api/accounts", h.OpenAccount)
		pr.Get("/api/portfolio", h.Portfolio)
		pr.Post("/api/trade", h.Trade)

		pr.Route("/api/transactions", func(tr chi.Router) {
			tr.Get("/recent", h.RecentTransactions)
			tr.Get("/all", h.AllTransactions)
			tr.Get("/daily-summary", h.DailySummary)
		})
	})

	return r
}
