package api

import (
	"log/slog"
	"money_transfer/pkg/auth"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	Issuer         *auth.TokenIssuer
	Metrics        HTTPMetrics
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewRouter(h *APIHandler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:4200"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(Metrics(opts.Metrics))
	}
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, SignatureHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/health", h.HealthCheckHandler)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		h.sendJSON(w, map[string]string{"name": "money_transfer", "status": "ok"}, http.StatusOK)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.RegisterHandler)
		r.Post("/auth/login", h.LoginHandler)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(opts.Issuer))

			r.Post("/transfers", h.TransferHandler)
			r.Get("/transfers/history/{accountId}", h.HistoryHandler)
			r.Get("/transfers/history/{accountId}/paginated", h.HistoryPageHandler)
			r.Get("/transfers/history/{accountId}/paginated-filter", h.HistoryFilterPageHandler)

			r.Post("/accounts", h.OpenAccountHandler)
			r.Get("/accounts/{id}", h.GetAccountHandler)

			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminOnly)

				r.Get("/accounts", h.ListAccountsHandler)
				r.Put("/accounts/{id}", h.UpdateAccountHandler)
				r.Delete("/accounts/{id}", h.DeactivateAccountHandler)
				r.Get("/transactions/paginated", h.AllTransactionsHandler)
			})
		})
	})

	return r
}
