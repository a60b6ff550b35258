package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/camilomorales/domicilios-backend/api/controllers"
	ordercontrollers "github.com/camilomorales/domicilios-backend/api/controllers/orders"
	payoutcontrollers "github.com/camilomorales/domicilios-backend/api/controllers/payouts"
	webhookcontrollers "github.com/camilomorales/domicilios-backend/api/controllers/webhooks"
	"github.com/camilomorales/domicilios-backend/api/middleware"
	"github.com/camilomorales/domicilios-backend/internal/notifications"
	"github.com/camilomorales/domicilios-backend/internal/orders"
	"github.com/camilomorales/domicilios-backend/internal/payouts"
	"github.com/camilomorales/domicilios-backend/internal/settlement"
	"github.com/camilomorales/domicilios-backend/pkg/config"
	"github.com/camilomorales/domicilios-backend/pkg/db"
	"github.com/camilomorales/domicilios-backend/pkg/logger"
	"github.com/camilomorales/domicilios-backend/pkg/payments"
	"github.com/camilomorales/domicilios-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	metricsRegistry *prometheus.Registry,
	paymentsClient *payments.Client,
	ordersService orders.Service,
	payoutsService payouts.Service,
	notificationsService notifications.Service,
	settlementService settlement.Service,
	settlementGuard *settlement.IdempotencyGuard,
) http.Handler {
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

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentsWebhook(settlementService, paymentsClient, settlementGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(ordersService, logg))
			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Get("/available", ordercontrollers.Available(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
			r.Post("/{orderId}/status", ordercontrollers.UpdateStatus(ordersService, logg))
			r.Post("/{orderId}/ready", ordercontrollers.MarkReady(ordersService, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/balance", payoutcontrollers.Balance(payoutsService, logg))
			r.Post("/withdrawals", payoutcontrollers.WithdrawalCreate(payoutsService, logg))
			r.Get("/withdrawals", payoutcontrollers.WithdrawalList(payoutsService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/pending", payoutcontrollers.AdminPendingWithdrawals(payoutsService, logg))
			r.Post("/{withdrawalId}/decision", payoutcontrollers.AdminWithdrawalDecision(payoutsService, logg))
		})
		r.Post("/payouts/settle", payoutcontrollers.AdminSettleOrders(payoutsService, logg))
	})

	return r
}
