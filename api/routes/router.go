package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mahara-hq/mahara-backend/api/controllers"
	"github.com/mahara-hq/mahara-backend/api/middleware"
	"github.com/mahara-hq/mahara-backend/internal/ledger"
	"github.com/mahara-hq/mahara-backend/internal/transfers"
	"github.com/mahara-hq/mahara-backend/internal/wallets"
	"github.com/mahara-hq/mahara-backend/pkg/config"
	"github.com/mahara-hq/mahara-backend/pkg/db"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
	"github.com/mahara-hq/mahara-backend/pkg/logger"
	"github.com/mahara-hq/mahara-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	pubsubP controllers.Pinger,
	walletService wallets.Service,
	ledgerService ledger.Service,
	transferService transfers.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(),
		middleware.Logging(logg),
	)

	var redisPinger controllers.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger, pubsubP))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if redisClient != nil {
			r.Use(middleware.Idempotency(redisClient, cfg.Wallet, logg))
			r.Use(middleware.WriteRateLimit(cfg.Wallet, redisClient, logg))
		}

		r.Route("/wallets", func(r chi.Router) {
			r.Post("/", controllers.EnsureWallet(walletService, logg))
			r.Get("/", controllers.ListMyWallets(walletService, logg))

			r.Route("/{walletId}", func(r chi.Router) {
				r.Get("/", controllers.WalletDetail(walletService, ledgerService, logg))
				r.Get("/balance", controllers.WalletBalance(walletService, ledgerService, logg))
				r.Get("/transactions", controllers.ListTransactions(ledgerService, walletService, logg))
				r.Post("/transactions", controllers.CreateTransaction(ledgerService, walletService, logg))
				r.With(middleware.RequireRole(string(enums.RoleAdmin), logg)).
					Post("/deactivate", controllers.DeactivateWallet(walletService, logg))
			})
		})

		r.Post("/transfers", controllers.CreateTransfer(transferService, logg))
	})

	return r
}
