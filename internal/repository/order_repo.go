package repository

import (
	"time"

	"gorm.io/gorm"

	"paygate/internal/models"
)

// OrderStore is the order persistence contract consumed by the checkout
// handler, the reconciler and the recovery sweep.
type OrderStore interface {
	Create(order *models.Order) error
	FindByPurchaseKey(key string) (*models.Order, error)
	// CompleteByPurchaseKey transitions an order from pending to completed
	// and appends the audit note in the same transaction. It reports whether
	// the transition actually happened; false means the order was already
	// past pending.
	CompleteByPurchaseKey(key, note string) (bool, error)
	// MarkFailed expires a pending order; webhooks never call it.
	MarkFailed(key, note string) error
	FindStalePending(olderThan time.Time) ([]models.Order, error)
	SetProviderChargeID(key, chargeID string) error
}

// OrderRepository handles order database operations.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create creates a new order with its line items.
func (r *OrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// FindByPurchaseKey returns an order by its purchase key, notes included.
func (r *OrderRepository) FindByPurchaseKey(key string) (*models.Order, error) {
	var order models.Order
	err := r.db.Preload("Items").Preload("Notes").
		Where("purchase_key = ?", key).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CompleteByPurchaseKey performs the pending→completed transition as a
// single conditional UPDATE so concurrent duplicate webhook deliveries
// cannot double-apply. The audit note is only written when this call won
// the transition.
func (r *OrderRepository) CompleteByPurchaseKey(key, note string) (bool, error) {
	var transitioned bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("purchase_key = ? AND status = ?", key, models.OrderStatusPending).
			Update("status", models.OrderStatusCompleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		transitioned = true
		return appendNoteTx(tx, key, note)
	})
	return transitioned, err
}

// MarkFailed marks a pending order failed. Used by the recovery sweep when
// a charge sits unpaid past its expiry window.
func (r *OrderRepository) MarkFailed(key, note string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("purchase_key = ? AND status = ?", key, models.OrderStatusPending).
			Update("status", models.OrderStatusFailed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return appendNoteTx(tx, key, note)
	})
}

// FindStalePending returns pending orders created before the cutoff that
// carry a provider charge id, oldest first.
func (r *OrderRepository) FindStalePending(olderThan time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.
		Where("status = ? AND created_at < ? AND provider_charge_id <> ''",
			models.OrderStatusPending, olderThan).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// SetProviderChargeID records the provider-issued charge id on an order.
func (r *OrderRepository) SetProviderChargeID(key, chargeID string) error {
	return r.db.Model(&models.Order{}).
		Where("purchase_key = ?", key).
		Update("provider_charge_id", chargeID).Error
}

func appendNoteTx(tx *gorm.DB, key, note string) error {
	var order models.Order
	if err := tx.Select("id").Where("purchase_key = ?", key).First(&order).Error; err != nil {
		return err
	}
	return tx.Create(&models.OrderNote{OrderID: order.ID, Note: note}).Error
}
