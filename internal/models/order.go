package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. An order starts Pending; the reconciler is the only
// component that moves it to Completed. Failed is reached solely through
// the recovery sweep's expiry path.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
)

// Order maps to the `orders` table. The purchase key is the merchant-side
// correlation id echoed through the provider as metadata.invoiceid.
type Order struct {
	ID               uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PurchaseKey      string          `gorm:"column:purchase_key;uniqueIndex;size:64" json:"purchase_key"`
	FullName         string          `gorm:"column:full_name;size:200" json:"full_name"`
	EmailMobile      string          `gorm:"column:email_mobile;size:200" json:"email_mobile"`
	Amount           decimal.Decimal `gorm:"column:amount;type:decimal(12,2)" json:"amount"`
	Currency         string          `gorm:"column:currency;size:8" json:"currency"`
	Status           string          `gorm:"column:status;size:32;index" json:"status"`
	ProviderChargeID string          `gorm:"column:provider_charge_id;size:100" json:"provider_charge_id"`
	Items            []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	Notes            []OrderNote     `gorm:"foreignKey:OrderID" json:"notes"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem maps to the `order_items` table.
type OrderItem struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID   uint            `gorm:"column:order_id;index" json:"order_id"`
	ProductID string          `gorm:"column:product_id;size:100" json:"product_id"`
	Name      string          `gorm:"column:name;size:300" json:"name"`
	Quantity  int             `gorm:"column:quantity" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:decimal(12,2)" json:"unit_price"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// OrderNote maps to the `order_notes` table. Notes are append-only audit
// entries ordered by creation time.
type OrderNote struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID   uint      `gorm:"column:order_id;index" json:"order_id"`
	Note      string    `gorm:"column:note;size:1000" json:"note"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (OrderNote) TableName() string {
	return "order_notes"
}
