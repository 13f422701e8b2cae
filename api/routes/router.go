package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andikaprasetya/kantin-backend/api/controllers"
	webhookcontrollers "github.com/andikaprasetya/kantin-backend/api/controllers/webhooks"
	"github.com/andikaprasetya/kantin-backend/api/middleware"
	"github.com/andikaprasetya/kantin-backend/internal/orders"
	"github.com/andikaprasetya/kantin-backend/internal/payments"
	"github.com/andikaprasetya/kantin-backend/internal/settlements"
	"github.com/andikaprasetya/kantin-backend/pkg/config"
	"github.com/andikaprasetya/kantin-backend/pkg/db"
	"github.com/andikaprasetya/kantin-backend/pkg/logger"
	"github.com/andikaprasetya/kantin-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ordersService orders.Service,
	paymentsService payments.Service,
	paymentGateway payments.Gateway,
	settlementsService settlements.Service,
) http.Handler {
	// A nil *redis.Client must stay a nil interface downstream so the
	// idempotency and replay guards disable themselves cleanly.
	var idemStore redis.IdempotencyStore
	var redisP redis.Pinger
	if redisClient != nil {
		idemStore = redisClient
		redisP = redisClient
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	// Gateway notifications authenticate via payload signature, not a bearer
	// token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/midtrans", webhookcontrollers.MidtransNotification(paymentsService, paymentGateway, idemStore, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(ordersService, logg))
			r.Get("/", controllers.ListOrders(ordersService, logg))
			r.Get("/{orderId}", controllers.OrderDetail(ordersService, logg))
		})

		r.Route("/v1/payments", func(r chi.Router) {
			r.Post("/", controllers.InitiatePayment(paymentsService, logg))
			r.Post("/status", controllers.PaymentStatusUpdate(paymentsService, logg))
		})

		r.Route("/v1/tenant", func(r chi.Router) {
			r.Use(middleware.RequireRole("tenant", logg))
			r.Get("/orders", controllers.TenantOrders(ordersService, logg))
			r.Post("/orders/{orderId}/transition", controllers.OrderTransition(ordersService, logg))
			r.Route("/settlements", func(r chi.Router) {
				r.Get("/", controllers.TenantSettlements(settlementsService, logg))
				r.Post("/", controllers.TenantWithdraw(settlementsService, logg))
				r.Get("/balance", controllers.TenantBalance(settlementsService, logg))
				r.Get("/pending", controllers.TenantPendingWithdrawals(settlementsService, logg))
			})
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", logg))
			r.Get("/ping", controllers.AdminPing())
			r.Post("/orders/{orderId}/transition", controllers.OrderTransition(ordersService, logg))
			r.Post("/settlements/{settlementId}/transition", controllers.AdminSettlementTransition(settlementsService, logg))
		})
	})

	return r
}
