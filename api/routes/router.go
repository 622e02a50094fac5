package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coralcart/loyalty-backend/api/controllers"
	"github.com/coralcart/loyalty-backend/api/middleware"
	"github.com/coralcart/loyalty-backend/internal/checkoutguard"
	"github.com/coralcart/loyalty-backend/internal/ledger"
	"github.com/coralcart/loyalty-backend/internal/pointconfig"
	"github.com/coralcart/loyalty-backend/internal/redemption"
	"github.com/coralcart/loyalty-backend/pkg/commerce"
	"github.com/coralcart/loyalty-backend/pkg/config"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         controllers.Pinger
	Redis      controllers.Pinger
	Ledger     *ledger.Service
	Configs    *pointconfig.Service
	Redemption *redemption.Service
	Guard      *checkoutguard.Guard
	Commerce   *commerce.Client
	Registry   *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/customers/{id}/points", func(r chi.Router) {
			r.Get("/", controllers.GetCustomerPoints(deps.Ledger, logg))
			r.With(middleware.RequireAdmin(logg)).Post("/", controllers.AdjustCustomerPoints(deps.Ledger, logg))
		})

		r.Route("/variants/{id}/point-config", func(r chi.Router) {
			r.Get("/", controllers.GetVariantPointConfig(deps.Configs, logg))
			r.With(middleware.RequireAdmin(logg)).Post("/", controllers.UpsertVariantPointConfig(deps.Configs, logg))
		})

		r.Route("/carts/{id}", func(r chi.Router) {
			r.Post("/points/redeem", controllers.RedeemCartPoints(deps.Redemption, logg))
			r.Delete("/points/redeem", controllers.RemoveCartPoints(deps.Redemption, logg))
			r.Post("/checkout/validate", controllers.ValidateCheckout(deps.Guard, logg))
			r.Post("/promotions/validate", controllers.ValidatePromotionUpdate(deps.Guard, logg))
		})

		r.With(middleware.RequireAdmin(logg)).
			Get("/orders/{id}/coins", controllers.GetOrderCoins(deps.Commerce, deps.Ledger, deps.Configs, logg))
	})

	return r
}
