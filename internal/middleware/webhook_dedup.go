package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// DeliveryDeduper tracks processed webhook deliveries. Providers redeliver
// webhooks on non-2xx responses or timeouts; the deduper sheds exact
// repeats early. Correctness does not depend on it — the order store's
// conditional update is the idempotency guarantee.
//
// Seen is a read-only check; Mark records a delivery and is only called
// once processing succeeded, so a failed delivery stays eligible for
// redelivery.
type DeliveryDeduper interface {
	Seen(ctx context.Context, deliveryKey string) (bool, error)
	Mark(ctx context.Context, deliveryKey string) error
}

type redisDeliveryDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (d *redisDeliveryDeduper) Seen(ctx context.Context, deliveryKey string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+":"+deliveryKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *redisDeliveryDeduper) Mark(ctx context.Context, deliveryKey string) error {
	return d.client.Set(ctx, d.prefix+":"+deliveryKey, "1", d.ttl).Err()
}

type memoryDeliveryDeduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func newMemoryDeliveryDeduper(ttl time.Duration) *memoryDeliveryDeduper {
	now := time.Now()
	return &memoryDeliveryDeduper{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: now.Add(ttl),
	}
}

func (d *memoryDeliveryDeduper) Seen(_ context.Context, deliveryKey string) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.seen[deliveryKey]
	return ok && exp.After(now), nil
}

func (d *memoryDeliveryDeduper) Mark(_ context.Context, deliveryKey string) error {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen[deliveryKey] = now.Add(d.ttl)
	if now.After(d.nextGC) {
		for id, exp := range d.seen {
			if exp.Before(now) {
				delete(d.seen, id)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}

	return nil
}

// NewDeliveryDeduper builds a Redis deduper and falls back to in-memory on
// failure.
func NewDeliveryDeduper(addr, pass string, db int, ttl time.Duration) (DeliveryDeduper, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if addr == "" {
		return newMemoryDeliveryDeduper(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return newMemoryDeliveryDeduper(ttl), err
	}

	return &redisDeliveryDeduper{
		client: client,
		prefix: "pp:delivery",
		ttl:    ttl,
	}, nil
}

// WebhookDedup acknowledges duplicate webhook deliveries without
// re-processing them, keyed on the provider charge id plus reported status.
// Runs after WebhookAuth so unauthenticated bodies are never read. A
// delivery is only recorded once the handler answered 2xx; a failed
// delivery is never marked, so the provider's redelivery of it still
// reaches the reconciler.
func WebhookDedup(deduper DeliveryDeduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil {
				return next(c)
			}

			req := c.Request()
			if req.Body == nil {
				return next(c)
			}

			rawBody, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewBuffer(rawBody))
			if len(rawBody) == 0 {
				return next(c)
			}

			var payload struct {
				Status string `json:"status"`
				PPID   string `json:"pp_id"`
			}
			if err := json.Unmarshal(rawBody, &payload); err != nil || payload.PPID == "" {
				return next(c)
			}

			deliveryKey := payload.PPID + ":" + payload.Status
			isDuplicate, err := deduper.Seen(req.Context(), deliveryKey)
			if err == nil && isDuplicate {
				// The provider only needs a 2xx ack to stop redelivering.
				return c.JSON(http.StatusOK, webhookAck{Status: true})
			}

			if err := next(c); err != nil {
				return err
			}

			status := c.Response().Status
			if status >= 200 && status < 300 {
				// Best effort; a missed mark only costs one re-reconcile.
				_ = deduper.Mark(req.Context(), deliveryKey)
			}
			return nil
		}
	}
}
