package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"paygate/internal/config"
	"paygate/internal/models"
	"paygate/internal/payment"
	"paygate/internal/pkg/utils"
	"paygate/internal/repository"
)

// GatewayErrorRecorder persists outbound gateway failures for operator
// visibility.
type GatewayErrorRecorder interface {
	Record(gateway, context, message string) error
}

// CheckoutHandler turns a checkout submission into a remote charge and a
// redirect to the hosted payment page.
type CheckoutHandler struct {
	orders  repository.OrderStore
	carts   repository.CartStore
	gateway payment.Gateway
	gwLog   GatewayErrorRecorder
	cfg     *config.Config
	logger  *zap.Logger
}

func NewCheckoutHandler(
	orders repository.OrderStore,
	carts repository.CartStore,
	gateway payment.Gateway,
	gwLog GatewayErrorRecorder,
	cfg *config.Config,
	logger *zap.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		orders:  orders,
		carts:   carts,
		gateway: gateway,
		gwLog:   gwLog,
		cfg:     cfg,
		logger:  logger,
	}
}

// CheckoutRequest is the checkout submission. The cart referenced by CartID
// supplies the line items and the amount.
type CheckoutRequest struct {
	CartID      string `json:"cart_id" form:"cart_id"`
	FirstName   string `json:"first_name" form:"first_name"`
	LastName    string `json:"last_name" form:"last_name"`
	EmailMobile string `json:"email_mobile" form:"email_mobile"`
}

// Checkout creates a Pending order, requests a charge from the provider and
// redirects the buyer to the hosted payment page. Every failure sends the
// buyer back to checkout; a created order is left Pending so the attempt is
// safely re-triable. Each new attempt produces a fresh order.
func (h *CheckoutHandler) Checkout(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return h.backToCheckout(c)
	}
	if req.CartID == "" || req.EmailMobile == "" {
		return h.backToCheckout(c)
	}

	ctx := c.Request().Context()

	cart, err := h.carts.Get(ctx, req.CartID)
	if err != nil || len(cart.Items) == 0 {
		return h.backToCheckout(c)
	}

	order := &models.Order{
		PurchaseKey: utils.GeneratePurchaseKey(),
		FullName:    strings.TrimSpace(req.FirstName + " " + req.LastName),
		EmailMobile: req.EmailMobile,
		Amount:      cart.Total(),
		Currency:    h.cfg.Gateway.Currency,
		Status:      models.OrderStatusPending,
	}
	for _, item := range cart.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	// No partial state: if the local order cannot be created, no network
	// call is made.
	if err := h.orders.Create(order); err != nil {
		h.logger.Error("Order creation failed", zap.Error(err))
		return h.backToCheckout(c)
	}

	result, err := h.gateway.CreateCharge(ctx, payment.ChargeRequest{
		FullName:    order.FullName,
		EmailMobile: order.EmailMobile,
		Amount:      order.Amount.StringFixed(2),
		RedirectURL: h.confirmationURL(order.PurchaseKey),
		CancelURL:   h.checkoutURL(),
		WebhookURL:  h.cfg.Server.SiteURL + "/?listener=" + h.gateway.Name(),
		ReturnType:  "GET",
		Currency:    order.Currency,
		Metadata:    payment.ChargeMetadata{InvoiceID: order.PurchaseKey},
	})
	if err != nil {
		// Order stays Pending; the buyer recovers by re-attempting checkout.
		h.logger.Error("Charge creation failed",
			zap.String("purchase_key", order.PurchaseKey), zap.Error(err))
		if h.gwLog != nil {
			_ = h.gwLog.Record(h.gateway.Name(), "create-charge", err.Error())
		}
		return h.backToCheckout(c)
	}

	if result.ChargeID != "" {
		if err := h.orders.SetProviderChargeID(order.PurchaseKey, result.ChargeID); err != nil {
			h.logger.Warn("Failed to record provider charge id",
				zap.String("purchase_key", order.PurchaseKey), zap.Error(err))
		}
	}

	if err := h.carts.Clear(ctx, req.CartID); err != nil {
		h.logger.Warn("Cart clear failed", zap.String("cart_id", req.CartID), zap.Error(err))
	}

	return c.Redirect(http.StatusFound, result.PaymentURL)
}

func (h *CheckoutHandler) backToCheckout(c echo.Context) error {
	return c.Redirect(http.StatusFound, h.checkoutURL())
}

func (h *CheckoutHandler) checkoutURL() string {
	base := h.cfg.Server.CheckoutURL
	if base == "" {
		base = h.cfg.Server.SiteURL + "/checkout"
	}
	return base + "?payment-mode=" + h.gateway.Name()
}

func (h *CheckoutHandler) confirmationURL(purchaseKey string) string {
	q := url.Values{}
	q.Set("payment-confirmation", h.gateway.Name())
	q.Set("payment-id", purchaseKey)
	return h.cfg.Server.SiteURL + "/payment/confirmation?" + q.Encode()
}
