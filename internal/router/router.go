package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"paygate/internal/config"
	"paygate/internal/handler"
	"paygate/internal/middleware"
	"paygate/internal/payment"
	"paygate/internal/repository"
)

// Setup configures all routes for the Echo server.
func Setup(
	e *echo.Echo,
	cfg *config.Config,
	orders repository.OrderStore,
	carts repository.CartStore,
	gateway payment.Gateway,
	reconciler *payment.Reconciler,
	gwLog *repository.GatewayLogRepository,
	deduper middleware.DeliveryDeduper,
	logger *zap.Logger,
) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	checkoutHandler := handler.NewCheckoutHandler(orders, carts, gateway, gwLog, cfg, logger)
	webhookHandler := handler.NewWebhookHandler(reconciler, orders, logger)
	cartHandler := handler.NewCartHandler(carts, logger)

	// Cart
	e.POST("/cart/items", cartHandler.AddItem)
	e.GET("/cart/:id", cartHandler.Show)

	// Checkout
	e.POST("/checkout/piprapay", checkoutHandler.Checkout)

	// Buyer-facing confirmation page (the provider's redirect_url target)
	e.GET("/payment/confirmation", webhookHandler.Confirmation)

	// Webhook listener. The provider posts to the site root with the
	// listener discriminator in the query string; authentication runs
	// before the body is touched, dedup after it.
	webhookChain := []echo.MiddlewareFunc{
		middleware.WebhookAuth(cfg.Gateway.WebhookSecret),
		middleware.WebhookDedup(deduper),
	}
	e.POST("/", webhookHandler.HandleNotification,
		append([]echo.MiddlewareFunc{middleware.ListenerGate(gateway.Name())}, webhookChain...)...)

	// Alias for deployments that cannot expose the root path.
	e.POST("/payment/piprapay/webhook", webhookHandler.HandleNotification, webhookChain...)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
