package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockledger/api/controllers"
	"github.com/angelmondragon/stockledger/api/middleware"
	"github.com/angelmondragon/stockledger/internal/adjustments"
	"github.com/angelmondragon/stockledger/internal/cart"
	"github.com/angelmondragon/stockledger/internal/flags"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/internal/stats"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/logger"
	pkgredis "github.com/angelmondragon/stockledger/pkg/redis"
)

// Services bundles what the HTTP surface calls into.
type Services struct {
	Cart        cart.Service
	Adjustments adjustments.Service
	Movements   movements.Repository
	Reconciler  *movements.Reconciler
	Stats       stats.Service
	Flags       flags.Service
}

// Infra carries the shared clients the router needs directly.
type Infra struct {
	DB       controllers.Pinger
	Redis    *pkgredis.Client
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(infra)))
	})

	if infra.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(infra.Gatherer, promhttp.HandlerOpts{}))
	}

	var idempotencyStore pkgredis.IdempotencyStore
	rateLimit := func(next http.Handler) http.Handler { return next }
	if infra.Redis != nil {
		idempotencyStore = infra.Redis
		policy := middleware.NewRateLimitPolicy("api", time.Minute, cfg.App.RateLimitPerMinute)
		rateLimit = middleware.RateLimit(policy, infra.Redis, logg)
	}

	r.Route("/api/v1/stores/{"+middleware.StoreParam+"}", func(r chi.Router) {
		// GET /cart is the only route open to anonymous callers.
		r.With(middleware.OptionalAuth(cfg.JWT, logg), middleware.StoreMatch(logg)).
			Get("/cart", controllers.CartFetch(svc.Cart, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.StoreMatch(logg))
			r.Use(rateLimit)
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Post("/cart", controllers.CartAddItem(svc.Cart, logg))
			r.Patch("/cart", controllers.CartUpdateItem(svc.Cart, logg))
			r.Delete("/cart", controllers.CartRemoveItem(svc.Cart, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireStockAdjuster(logg))

				r.Post("/stock-movements", controllers.StockMovementCreate(svc.Adjustments, logg))
				r.Get("/stock-movements", controllers.StockMovementList(svc.Movements, logg))
				r.Post("/stock-items", controllers.StockItemCreate(svc.Adjustments, logg))
				r.Get("/stock-items/{stockItemId}/reconciliation", controllers.StockItemReconciliation(svc.Reconciler, logg))
				r.Get("/stats", controllers.StoreStats(svc.Stats, logg))
				r.Get("/inventory-flags", controllers.InventoryFlagList(svc.Flags, logg))
				r.Post("/inventory-flags/{flagId}/resolve", controllers.InventoryFlagResolve(svc.Flags, logg))
			})
		})
	})

	return r
}

func readinessDeps(infra Infra) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if infra.DB != nil {
		deps["db"] = infra.DB
	}
	if infra.Redis != nil {
		deps["redis"] = infra.Redis
	}
	return deps
}
