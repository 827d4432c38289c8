package payment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"paygate/internal/notify"
	"paygate/internal/repository"
)

// WebhookNotification is the inbound provider callback payload. It is
// untrusted until the shared-secret check has passed, and its status field
// is only trusted directly when verify-before-trust is disabled.
type WebhookNotification struct {
	Status        string               `json:"status"`
	TransactionID string               `json:"transaction_id"`
	PPID          string               `json:"pp_id"`
	Metadata      NotificationMetadata `json:"metadata"`
}

// NotificationMetadata echoes back the merchant metadata sent with the
// charge.
type NotificationMetadata struct {
	InvoiceID string `json:"invoiceid"`
}

// Reconciliation failures the webhook handler maps to response codes.
var (
	ErrMissingInvoiceID   = errors.New("notification missing metadata.invoiceid")
	ErrOrderNotFound      = errors.New("no order for purchase key")
	ErrVerificationFailed = errors.New("provider verification failed")
)

// Outcome describes what a reconciliation did.
type Outcome int

const (
	// OutcomeCompleted means this call won the pending→completed transition.
	OutcomeCompleted Outcome = iota
	// OutcomeAlreadyCompleted means a previous delivery already applied it.
	OutcomeAlreadyCompleted
	// OutcomeIgnored means the status was not "completed"; no state change.
	OutcomeIgnored
)

// Reconciler applies verified provider statuses to local orders.
type Reconciler struct {
	store    repository.OrderStore
	gateway  Gateway
	notifier notify.Notifier
	logger   *zap.Logger
	// verifyBeforeTrust gates the server-to-server verify call. When set,
	// the webhook body's own status field is never trusted.
	verifyBeforeTrust bool
}

func NewReconciler(
	store repository.OrderStore,
	gateway Gateway,
	notifier notify.Notifier,
	verifyBeforeTrust bool,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		store:             store,
		gateway:           gateway,
		notifier:          notifier,
		verifyBeforeTrust: verifyBeforeTrust,
		logger:            logger,
	}
}

// Reconcile maps an authenticated notification onto the order it
// references. The only automatic transition is pending→completed; every
// other provider status is acknowledged without state change. Safe to call
// for duplicate deliveries, concurrent ones included.
func (r *Reconciler) Reconcile(ctx context.Context, n WebhookNotification) (Outcome, error) {
	key := n.Metadata.InvoiceID
	if key == "" {
		return OutcomeIgnored, ErrMissingInvoiceID
	}

	order, err := r.store.FindByPurchaseKey(key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeIgnored, ErrOrderNotFound
		}
		return OutcomeIgnored, fmt.Errorf("order lookup failed: %w", err)
	}

	// Remember the provider charge id so the recovery sweep can re-query
	// this order later. This happens before the verify decision: a delivery
	// that fails verification must still leave the sweep a handle on the
	// charge, and the id itself needs only the authenticated notification.
	if order.ProviderChargeID == "" && n.PPID != "" {
		if err := r.store.SetProviderChargeID(key, n.PPID); err != nil {
			r.logger.Warn("Failed to record provider charge id",
				zap.String("purchase_key", key), zap.Error(err))
		}
	}

	status := n.Status
	transactionID := n.TransactionID

	if r.verifyBeforeTrust {
		if n.PPID == "" {
			return OutcomeIgnored, fmt.Errorf("%w: notification carries no pp_id", ErrVerificationFailed)
		}
		verified, err := r.gateway.VerifyPayment(ctx, n.PPID)
		if err != nil {
			// Fail closed: a forged completed status must not advance the
			// order without a confirming verify response.
			return OutcomeIgnored, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		status = verified.Status
		transactionID = verified.TransactionID
	}

	return r.apply(order.PurchaseKey, status, transactionID)
}

// ApplyVerified applies an already-verified provider status, bypassing the
// webhook trust decision. Used by the recovery sweep, which obtains status
// straight from the verify endpoint.
func (r *Reconciler) ApplyVerified(purchaseKey string, v *VerifyResult) (Outcome, error) {
	return r.apply(purchaseKey, v.Status, v.TransactionID)
}

func (r *Reconciler) apply(purchaseKey, status, transactionID string) (Outcome, error) {
	if status != StatusCompleted {
		return OutcomeIgnored, nil
	}

	note := "PipraPay transaction ID: " + transactionID
	transitioned, err := r.store.CompleteByPurchaseKey(purchaseKey, note)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("order completion failed: %w", err)
	}
	if !transitioned {
		return OutcomeAlreadyCompleted, nil
	}

	if r.notifier != nil {
		if order, err := r.store.FindByPurchaseKey(purchaseKey); err == nil {
			r.notifier.OrderCompleted(order, transactionID)
		} else {
			// The transition itself is committed; only the report is lost.
			r.logger.Warn("Completed order could not be reloaded for notification",
				zap.String("purchase_key", purchaseKey), zap.Error(err))
		}
	}
	return OutcomeCompleted, nil
}
