package handler

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paygate/internal/models"
	"paygate/internal/payment"
	"paygate/internal/repository"
)

type ack struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
}

// WebhookHandler processes authenticated provider notifications and serves
// the buyer-facing confirmation page.
type WebhookHandler struct {
	reconciler *payment.Reconciler
	orders     repository.OrderStore
	logger     *zap.Logger
}

func NewWebhookHandler(reconciler *payment.Reconciler, orders repository.OrderStore, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		orders:     orders,
		logger:     logger,
	}
}

// HandleNotification applies one provider notification. Authentication has
// already happened in middleware; this is the first point where the JSON
// body is read.
func (h *WebhookHandler) HandleNotification(c echo.Context) error {
	var n payment.WebhookNotification
	if err := c.Bind(&n); err != nil {
		return c.JSON(http.StatusBadRequest, ack{Status: false, Message: "Invalid data."})
	}

	outcome, err := h.reconciler.Reconcile(c.Request().Context(), n)
	switch {
	case errors.Is(err, payment.ErrMissingInvoiceID):
		return c.JSON(http.StatusBadRequest, ack{Status: false, Message: "Invalid data."})
	case errors.Is(err, payment.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, ack{Status: false, Message: "Payment not found."})
	case errors.Is(err, payment.ErrVerificationFailed):
		// Non-2xx so the provider redelivers once verification recovers.
		h.logger.Warn("Webhook verification failed",
			zap.String("purchase_key", n.Metadata.InvoiceID), zap.Error(err))
		return c.JSON(http.StatusBadGateway, ack{Status: false, Message: "Verification failed."})
	case err != nil:
		h.logger.Error("Webhook reconciliation failed",
			zap.String("purchase_key", n.Metadata.InvoiceID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ack{Status: false, Message: "Internal error."})
	}

	if outcome == payment.OutcomeCompleted {
		h.logger.Info("Order reconciled",
			zap.String("purchase_key", n.Metadata.InvoiceID),
			zap.String("transaction_id", n.TransactionID))
	}

	return c.JSON(http.StatusOK, ack{Status: true})
}

// ── Confirmation page ────────────────────────────────────────────────

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Payment Confirmation</title>
    <style>
        body { font-family: sans-serif; background: #f2f2f2; margin: 0; padding: 20px; display: flex; justify-content: center; align-items: center; min-height: 100vh; }
        .box { background: #fff; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); padding: 40px; text-align: center; max-width: 400px; width: 100%; }
        h1 { color: #333; margin-bottom: 20px; }
        p { color: #666; margin-bottom: 10px; }
    </style>
</head>
<body>
    <div class="box">
        <h1>{{.Title}}</h1>
        {{if .OrderID}}<p>Order: <span>{{.OrderID}}</span></p>{{end}}
        {{if .Amount}}<p>Amount: <span>{{.Amount}}</span> {{.Currency}}</p>{{end}}
        <p>{{.Message}}</p>
    </div>
</body>
</html>`))

// Confirmation renders the page the provider redirects the buyer to after
// payment. It only reads order state; reconciliation happens exclusively
// through the webhook and the recovery sweep.
func (h *WebhookHandler) Confirmation(c echo.Context) error {
	purchaseKey := c.QueryParam("payment-id")
	if purchaseKey == "" {
		return h.renderConfirmation(c, "Error", "Missing payment reference.", nil)
	}

	order, err := h.orders.FindByPurchaseKey(purchaseKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return h.renderConfirmation(c, "Error", "Payment not found.", nil)
		}
		h.logger.Error("Confirmation lookup failed", zap.Error(err))
		return h.renderConfirmation(c, "Error", "Something went wrong. Please contact support.", nil)
	}

	switch order.Status {
	case models.OrderStatusCompleted:
		return h.renderConfirmation(c, "Payment successful", "Thank you for your purchase!", order)
	case models.OrderStatusPending:
		return h.renderConfirmation(c, "Payment processing", "Your payment is being confirmed. This page can be refreshed in a moment.", order)
	default:
		return h.renderConfirmation(c, "Payment not completed", "The payment was not completed. Please try again.", order)
	}
}

func (h *WebhookHandler) renderConfirmation(c echo.Context, title, message string, order *models.Order) error {
	data := map[string]interface{}{
		"Title":   title,
		"Message": message,
	}
	if order != nil {
		data["OrderID"] = order.PurchaseKey
		data["Amount"] = order.Amount.StringFixed(2)
		data["Currency"] = order.Currency
	}

	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return confirmationTmpl.Execute(c.Response().Writer, data)
}
