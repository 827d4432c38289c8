package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"paygate/internal/payment"
)

type webhookAck struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
}

// ListenerGate admits only requests carrying ?listener=<name>, the
// discriminator the provider includes in the configured webhook URL.
func ListenerGate(name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.QueryParam("listener") != name {
				return c.JSON(http.StatusNotFound, webhookAck{Status: false, Message: "Payment not found."})
			}
			return next(c)
		}
	}
}

// WebhookAuth validates the provider's shared-secret header before any
// part of the body is read. The comparison is constant-time. The expected
// value is the configured webhook secret (see config.Load for the
// precedence rule when it is unset).
func WebhookAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			received := webhookSecretHeader(c.Request())
			if secret == "" || subtle.ConstantTimeCompare([]byte(received), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, webhookAck{Status: false, Message: "Unauthorized request."})
			}
			return next(c)
		}
	}
}

// webhookSecretHeader extracts the provider API-key header. Get already
// matches the canonical MIME casing; the raw scan catches senders that
// bypass canonicalization (HTTP/2 lowercase keys, proxies rewriting
// headers).
func webhookSecretHeader(req *http.Request) string {
	if v := req.Header.Get(payment.HeaderAPIKey); v != "" {
		return v
	}
	for name, values := range req.Header {
		if strings.EqualFold(name, payment.HeaderAPIKey) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// CORS configures CORS headers.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Access-Control-Allow-Origin", "*")
			c.Response().Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Response().Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
