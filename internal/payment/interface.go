package payment

import "context"

// ChargeRequest is the outbound create-charge payload. It is an ephemeral
// projection of an order; the purchase key travels in Metadata so the
// provider can echo it back through the webhook.
type ChargeRequest struct {
	FullName    string         `json:"full_name"`
	EmailMobile string         `json:"email_mobile"`
	Amount      string         `json:"amount"`
	RedirectURL string         `json:"redirect_url"`
	CancelURL   string         `json:"cancel_url"`
	WebhookURL  string         `json:"webhook_url"`
	ReturnType  string         `json:"return_type"`
	Currency    string         `json:"currency"`
	Metadata    ChargeMetadata `json:"metadata"`
}

// ChargeMetadata carries the merchant-side correlation id.
type ChargeMetadata struct {
	InvoiceID string `json:"invoiceid"`
}

// ChargeResult contains the result of a charge creation.
type ChargeResult struct {
	// PaymentURL is the hosted payment page the buyer is redirected to.
	PaymentURL string `json:"payment_url"`
	// ChargeID is the provider-issued charge id (pp_id) when the provider
	// returns one alongside the payment URL.
	ChargeID string `json:"charge_id,omitempty"`
}

// VerifyResult contains the provider's authoritative view of a charge.
type VerifyResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Completed reports whether the provider considers the charge paid.
func (v *VerifyResult) Completed() bool {
	return v.Status == StatusCompleted
}

// StatusCompleted is the only provider status that advances an order.
const StatusCompleted = "completed"

// Gateway defines the interface for payment provider implementations.
type Gateway interface {
	// Name returns the gateway identifier.
	Name() string

	// CreateCharge initiates a hosted-checkout charge for a pending order.
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)

	// VerifyPayment re-queries the provider for the authoritative status of
	// a charge, by provider charge id.
	VerifyPayment(ctx context.Context, chargeID string) (*VerifyResult, error)
}
