package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// CartItem is one line of a buyer's cart.
type CartItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Cart is the per-session cart cleared after a charge is created.
type Cart struct {
	ID    string     `json:"id"`
	Items []CartItem `json:"items"`
}

// Total sums the line totals. Pricing policy (tax, discounts, currency
// conversion) lives upstream; this is plain summation.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// CartStore holds carts keyed by cart id.
type CartStore interface {
	Get(ctx context.Context, id string) (*Cart, error)
	AddItem(ctx context.Context, id string, item CartItem) (*Cart, error)
	Clear(ctx context.Context, id string) error
}

// ErrCartNotFound is returned when a cart id has no stored cart.
var ErrCartNotFound = fmt.Errorf("cart not found")

type redisCartStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCartStore builds a Redis-backed cart store.
func NewRedisCartStore(client *redis.Client, ttl time.Duration) CartStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisCartStore{client: client, ttl: ttl}
}

func (s *redisCartStore) key(id string) string {
	return "cart:" + id
}

func (s *redisCartStore) Get(ctx context.Context, id string) (*Cart, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return nil, fmt.Errorf("cart decode failed: %w", err)
	}
	return &cart, nil
}

func (s *redisCartStore) AddItem(ctx context.Context, id string, item CartItem) (*Cart, error) {
	cart, err := s.Get(ctx, id)
	if err == ErrCartNotFound {
		cart = &Cart{ID: id}
	} else if err != nil {
		return nil, err
	}
	cart.Items = append(cart.Items, item)

	raw, err := json.Marshal(cart)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, s.key(id), raw, s.ttl).Err(); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *redisCartStore) Clear(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

type memoryCartStore struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

// NewMemoryCartStore builds the in-memory fallback used when Redis is
// unreachable.
func NewMemoryCartStore() CartStore {
	return &memoryCartStore{carts: make(map[string]*Cart)}
}

func (s *memoryCartStore) Get(_ context.Context, id string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[id]
	if !ok {
		return nil, ErrCartNotFound
	}
	copied := *cart
	copied.Items = append([]CartItem(nil), cart.Items...)
	return &copied, nil
}

func (s *memoryCartStore) AddItem(_ context.Context, id string, item CartItem) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[id]
	if !ok {
		cart = &Cart{ID: id}
		s.carts[id] = cart
	}
	cart.Items = append(cart.Items, item)
	copied := *cart
	copied.Items = append([]CartItem(nil), cart.Items...)
	return &copied, nil
}

func (s *memoryCartStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, id)
	return nil
}
