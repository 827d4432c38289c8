package models

import "time"

// GatewayLog maps to the `gateway_logs` table. Rows record outbound gateway
// failures for operator visibility; the cron scheduler prunes old entries.
type GatewayLog struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Gateway   string    `gorm:"column:gateway;size:64" json:"gateway"`
	Context   string    `gorm:"column:context;size:200" json:"context"`
	Message   string    `gorm:"column:message;type:text" json:"message"`
	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
}

func (GatewayLog) TableName() string {
	return "gateway_logs"
}
