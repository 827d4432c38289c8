package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GeneratePurchaseKey creates the opaque merchant-side correlation id for an
// order. Keys are immutable once assigned.
func GeneratePurchaseKey() string {
	return uuid.New().String()
}

// GenerateCartID creates a cart/session identifier.
func GenerateCartID() string {
	return fmt.Sprintf("cart-%d-%s", time.Now().UnixMilli(), RandomHex(4))
}

// RandomHex generates a random hex string of n bytes.
func RandomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
