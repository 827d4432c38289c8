package repository

import (
	"time"

	"gorm.io/gorm"

	"paygate/internal/models"
)

// GatewayLogRepository records outbound gateway failures.
type GatewayLogRepository struct {
	db *gorm.DB
}

func NewGatewayLogRepository(db *gorm.DB) *GatewayLogRepository {
	return &GatewayLogRepository{db: db}
}

// Record stores one gateway error row.
func (r *GatewayLogRepository) Record(gateway, context, message string) error {
	return r.db.Create(&models.GatewayLog{
		Gateway: gateway,
		Context: context,
		Message: message,
	}).Error
}

// Prune deletes log rows older than the cutoff and returns the count.
func (r *GatewayLogRepository) Prune(olderThan time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", olderThan).Delete(&models.GatewayLog{})
	return res.RowsAffected, res.Error
}
