package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	mW "github.com/xpense/backend/internal/middleware"
	"github.com/xpense/backend/internal/services"
)

// Services is everything the API serves.
type Services struct {
	Accounts   *services.AccountService
	Expenses   *services.ExpenseService
	Categories *services.CategoryService
	Debts      *services.DebtService
	Exchange   *services.ExchangeService
	Rates      *services.RateCache
}

type RouterConfig struct {
	JWTSecret      string
	RequestTimeout time.Duration
	StorageType    string
}

func NewRouter(svc Services, cfg RouterConfig, log logrus.FieldLogger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	accounts := NewAccountHandler(svc.Accounts, log)
	expenses := NewExpenseHandler(svc.Expenses, log)
	categories := NewCategoryHandler(svc.Categories, log)
	debts := NewDebtHandler(svc.Debts, log)
	rates := NewRateHandler(svc.Exchange, svc.Rates, log)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "storage": cfg.StorageType})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.Auth(cfg.JWTSecret, log))

		// Streams stay open, so they are kept out of the request timeout.
		r.Get("/accounts/total/stream", accounts.StreamTotal)
		r.Get("/accounts/amounts/stream", accounts.StreamAmounts)
		r.Get("/expenses/stream", expenses.Stream)
		r.Get("/debts/stream", debts.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))

			r.Get("/accounts", accounts.List)
			r.Post("/accounts", accounts.Create)
			r.Delete("/accounts", accounts.ClearAll)
			r.Post("/accounts/transfer", accounts.Transfer)
			r.Get("/accounts/total", accounts.Total)
			r.Get("/accounts/amounts", accounts.Amounts)
			r.Get("/accounts/{id}", accounts.Get)
			r.Delete("/accounts/{id}", accounts.Delete)

			r.Get("/expenses", expenses.List)
			r.Delete("/expenses", expenses.ClearAll)
			r.Post("/expenses/spend", expenses.Spend)
			r.Post("/expenses/earn", expenses.Earn)
			r.Delete("/expenses/{id}", expenses.Delete)

			r.Get("/categories", categories.List)
			r.Post("/categories", categories.Create)
			r.Delete("/categories/{id}", categories.Delete)

			r.Get("/debts", debts.List)
			r.Post("/debts", debts.Create)
			r.Delete("/debts", debts.ClearAll)
			r.Delete("/debts/{id}", debts.Delete)

			r.Get("/rates", rates.List)
			r.Put("/rates", rates.Upsert)
			r.Get("/rates/convert", rates.Convert)
			r.Post("/rates/sync", rates.Sync)
			r.Post("/rates/sync-all", rates.SyncAll)

			r.Get("/settings/base-currency", rates.BaseCurrency)
			r.Put("/settings/base-currency", rates.SetBaseCurrency)
		})
	})

	return r
}

// requestLogger logs one logrus entry per request.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("HTTP request")
		})
	}
}
