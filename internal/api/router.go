package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mycarconcierge/marketplace/internal/api/handler"
	"github.com/mycarconcierge/marketplace/internal/api/middleware"
	"github.com/mycarconcierge/marketplace/internal/api/spec"
	"github.com/mycarconcierge/marketplace/internal/config"
	"github.com/mycarconcierge/marketplace/internal/idempotency"
	"github.com/mycarconcierge/marketplace/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services groups the application services exposed over HTTP.
type Services struct {
	Escrow        *service.EscrowService
	Checkout      *service.CheckoutService
	Webhooks      *service.WebhookService
	Notifications *service.NotificationService
	Marketplace   *service.MarketplaceService
	Payouts       *service.PayoutAccountService
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        handler.Pinger
	redis     redis.Cmdable
	idemStore *idempotency.Store
	services  Services
}

// NewRouter builds the HTTP surface. redis may be nil when no cache is configured.
func NewRouter(cfg *config.Config, logger *zap.Logger, db handler.Pinger, redis redis.Cmdable, idemStore *idempotency.Store, services Services) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redis,
		idemStore: idemStore,
		services:  services,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	webhookHandler := handler.NewWebhookHandler(api.services.Webhooks)
	escrowHandler := handler.NewEscrowHandler(api.services.Escrow)
	checkoutHandler := handler.NewCheckoutHandler(api.services.Checkout)
	marketplaceHandler := handler.NewMarketplaceHandler(api.services.Marketplace)
	notificationHandler := handler.NewNotificationHandler(api.services.Notifications)
	connectHandler := handler.NewConnectHandler(api.services.Payouts)
	idempotent := middleware.IdempotencyMiddleware(api.idemStore, api.logger)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Get("/health/live", healthHandler.Live)
		r.Get("/health/ready", healthHandler.Ready)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

		r.Get("/api/fees", escrowHandler.PreviewFees)
		r.Get("/api/bid-packs", checkoutHandler.ListPacks)
		r.Post("/api/webhooks/gateway", webhookHandler.HandleGatewayEvent)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Route("/api/escrow", func(r chi.Router) {
			r.With(idempotent).Post("/create", escrowHandler.Create)
			r.With(idempotent).Post("/confirm/{packageId}", escrowHandler.Confirm)
			r.With(idempotent).Post("/release/{packageId}", escrowHandler.Release)
			r.With(idempotent).Post("/refund/{packageId}", escrowHandler.Refund)
			r.Get("/status/{packageId}", escrowHandler.Status)
		})
		r.With(idempotent).Post("/api/create-bid-checkout", checkoutHandler.CreateCheckout)

		r.Post("/api/connect/account", connectHandler.CreateAccount)
		r.Post("/api/connect/onboarding-link", connectHandler.OnboardingLink)

		r.Post("/api/packages/{packageId}/bids", marketplaceHandler.SubmitBid)
		r.Post("/api/packages/{packageId}/start", marketplaceHandler.StartWork)
		r.Post("/api/packages/{packageId}/complete", marketplaceHandler.CompleteWork)
		r.Post("/api/packages/{packageId}/messages", marketplaceHandler.SendMessage)
		r.Post("/api/bids/{bidId}/accept", marketplaceHandler.AcceptBid)

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Get("/unread-count", notificationHandler.UnreadCount)
			r.Post("/read-all", notificationHandler.MarkAllRead)
			r.Post("/{id}/read", notificationHandler.MarkRead)
		})
	})

	return r
}
