package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeliveryDeduper(t *testing.T) {
	d := newMemoryDeliveryDeduper(time.Minute)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "pp-1:completed")
	require.NoError(t, err)
	assert.False(t, seen)

	// Seen is read-only: checking does not record.
	seen, err = d.Seen(ctx, "pp-1:completed")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "pp-1:completed"))

	seen, err = d.Seen(ctx, "pp-1:completed")
	require.NoError(t, err)
	assert.True(t, seen)

	// Same charge, different reported status: a distinct delivery.
	seen, err = d.Seen(ctx, "pp-1:pending")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryDeliveryDeduperExpiry(t *testing.T) {
	d := newMemoryDeliveryDeduper(time.Millisecond)
	ctx := context.Background()

	require.NoError(t, d.Mark(ctx, "pp-1:completed"))

	time.Sleep(5 * time.Millisecond)

	seen, err := d.Seen(ctx, "pp-1:completed")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestNewDeliveryDeduperWithoutRedis(t *testing.T) {
	d, err := NewDeliveryDeduper("", "", 0, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, d)

	ctx := context.Background()
	seen, err := d.Seen(ctx, "pp-1:completed")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "pp-1:completed"))
	seen, err = d.Seen(ctx, "pp-1:completed")
	require.NoError(t, err)
	assert.True(t, seen)
}

// dedupHandler answers with the code in *status and counts invocations.
func dedupApp(deduper DeliveryDeduper, status *int, calls *int, lastBody *string) *echo.Echo {
	e := echo.New()
	e.POST("/", func(c echo.Context) error {
		*calls++
		raw, _ := io.ReadAll(c.Request().Body)
		*lastBody = string(raw)
		if *status >= 400 {
			return c.JSON(*status, webhookAck{Status: false, Message: "Verification failed."})
		}
		return c.JSON(*status, webhookAck{Status: true})
	}, WebhookDedup(deduper))
	return e
}

func postDedup(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookDedup(t *testing.T) {
	body := `{"status":"completed","pp_id":"pp-42"}`

	t.Run("duplicate of a processed delivery is acked without reaching the handler", func(t *testing.T) {
		status, calls := http.StatusOK, 0
		var lastBody string
		e := dedupApp(newMemoryDeliveryDeduper(time.Minute), &status, &calls, &lastBody)

		first := postDedup(e, body)
		second := postDedup(e, body)

		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, http.StatusOK, second.Code)
		assert.JSONEq(t, `{"status":true}`, second.Body.String())
		assert.Equal(t, 1, calls)
	})

	t.Run("failed delivery is not recorded so its redelivery is processed", func(t *testing.T) {
		status, calls := http.StatusBadGateway, 0
		var lastBody string
		e := dedupApp(newMemoryDeliveryDeduper(time.Minute), &status, &calls, &lastBody)

		first := postDedup(e, body)
		assert.Equal(t, http.StatusBadGateway, first.Code)

		status = http.StatusOK
		second := postDedup(e, body)
		assert.Equal(t, http.StatusOK, second.Code)
		assert.Equal(t, 2, calls)

		// Only now is the delivery remembered.
		third := postDedup(e, body)
		assert.Equal(t, http.StatusOK, third.Code)
		assert.Equal(t, 2, calls)
	})

	t.Run("body stays readable for the handler", func(t *testing.T) {
		status, calls := http.StatusOK, 0
		var lastBody string
		e := dedupApp(newMemoryDeliveryDeduper(time.Minute), &status, &calls, &lastBody)

		postDedup(e, body)

		assert.Equal(t, body, lastBody)
	})

	t.Run("payload without pp_id passes through every time", func(t *testing.T) {
		status, calls := http.StatusOK, 0
		var lastBody string
		e := dedupApp(newMemoryDeliveryDeduper(time.Minute), &status, &calls, &lastBody)

		anonymous := `{"status":"completed"}`
		postDedup(e, anonymous)
		postDedup(e, anonymous)

		assert.Equal(t, 2, calls)
	})

	t.Run("nil deduper passes everything through", func(t *testing.T) {
		status, calls := http.StatusOK, 0
		var lastBody string
		e := dedupApp(nil, &status, &calls, &lastBody)

		postDedup(e, body)
		postDedup(e, body)

		assert.Equal(t, 2, calls)
	})
}
