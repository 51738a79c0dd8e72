package order

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Order struct {
	ID             string            `gorm:"primaryKey;size:64"`
	TenantID       string            `gorm:"column:tenant_id;size:64;not null;index"`
	OrderNumber    string            `gorm:"column:order_number;size:64;not null"`
	TotalAmount    decimal.Decimal   `gorm:"column:total_amount;type:decimal(12,2);not null"`
	Currency       string            `gorm:"column:currency;size:3;not null"`
	CustomerName   string            `gorm:"column:customer_name"`
	CustomerPhone  string            `gorm:"column:customer_phone"`
	PaymentStatus  string            `gorm:"column:payment_status;size:16;not null;default:pending"`
	PaymentMethod  *string           `gorm:"column:payment_method;size:32"`
	PaidAt         *time.Time        `gorm:"column:paid_at"`
	PaymentDetails datatypes.JSONMap `gorm:"column:payment_details"`
	Status         string            `gorm:"column:status;size:16;not null;default:pending"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}

type OrderStatusChange struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	OrderID    string    `gorm:"column:order_id;size:64;not null;index"`
	FromStatus string    `gorm:"column:from_status;size:16;not null"`
	ToStatus   string    `gorm:"column:to_status;size:16;not null"`
	ActorID    string    `gorm:"column:actor_id;size:64"`
	Note       string    `gorm:"column:note"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusChange) TableName() string {
	return "order_status_changes"
}
