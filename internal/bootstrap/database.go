package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"paygate/internal/models"
)

// Migrate ensures the order pipeline tables exist.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.OrderNote{},
		&models.GatewayLog{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}
