package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"paygate/internal/pkg/httpclient"
)

// HeaderAPIKey is the header PipraPay uses for API authentication on both
// outbound calls and inbound webhooks.
const HeaderAPIKey = "mh-piprapay-api-key"

// PipraPayGateway implements the Gateway interface for PipraPay hosted
// checkout.
type PipraPayGateway struct {
	apiURL string
	client *httpclient.Client
}

func NewPipraPayGateway(apiURL, apiKey string) *PipraPayGateway {
	return &PipraPayGateway{
		apiURL: apiURL,
		client: httpclient.New().
			WithTimeout(30*time.Second).
			WithHeader("accept", "application/json").
			WithHeader(HeaderAPIKey, apiKey),
	}
}

func (p *PipraPayGateway) Name() string {
	return "piprapay"
}

func (p *PipraPayGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body, _ := json.Marshal(req)
	resp, status, err := p.client.Post(ctx, p.apiURL+"/create-charge", body)
	if err != nil {
		return nil, fmt.Errorf("piprapay create charge failed: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("piprapay create charge returned status %d", status)
	}

	var result struct {
		PPURL string `json:"pp_url"`
		PPID  string `json:"pp_id"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("piprapay create charge parse error: %w", err)
	}
	if result.PPURL == "" {
		return nil, fmt.Errorf("piprapay response missing pp_url")
	}

	return &ChargeResult{
		PaymentURL: result.PPURL,
		ChargeID:   result.PPID,
	}, nil
}

func (p *PipraPayGateway) VerifyPayment(ctx context.Context, chargeID string) (*VerifyResult, error) {
	body, _ := json.Marshal(map[string]string{"pp_id": chargeID})
	resp, status, err := p.client.Post(ctx, p.apiURL+"/verify-payments", body)
	if err != nil {
		return nil, fmt.Errorf("piprapay verify failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("piprapay verify returned status %d", status)
	}

	var result VerifyResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("piprapay verify parse error: %w", err)
	}
	if result.Status == "" {
		return nil, fmt.Errorf("piprapay verify response missing status")
	}

	return &result, nil
}
