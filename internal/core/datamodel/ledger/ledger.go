package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentTransaction is one payment attempt as reported by a gateway callback.
type PaymentTransaction struct {
	ID                       string            `gorm:"primaryKey;size:36"`
	TenantID                 string            `gorm:"column:tenant_id;size:64;not null;index"`
	OrderID                  string            `gorm:"column:order_id;size:64;not null;uniqueIndex:ux_payment_transactions_attempt,priority:1"`
	Status                   string            `gorm:"column:status;size:16;not null"`
	Amount                   decimal.Decimal   `gorm:"column:amount;type:decimal(12,2);not null"`
	Currency                 string            `gorm:"column:currency;size:3;not null"`
	CustomerPhone            string            `gorm:"column:customer_phone"`
	CustomerName             string            `gorm:"column:customer_name"`
	Gateway                  string            `gorm:"column:gateway;size:32;not null"`
	GatewayTransactionID     string            `gorm:"column:gateway_transaction_id;size:128"`
	GatewayCheckoutRequestID string            `gorm:"column:gateway_checkout_request_id;size:128;not null;uniqueIndex:ux_payment_transactions_attempt,priority:2"`
	GatewayResponse          datatypes.JSONMap `gorm:"column:gateway_response"`
	GatewayMetadata          datatypes.JSONMap `gorm:"column:gateway_metadata"`
	InitiatedAt              time.Time         `gorm:"column:initiated_at;not null"`
	CompletedAt              *time.Time        `gorm:"column:completed_at"`
	FailedAt                 *time.Time        `gorm:"column:failed_at"`
	CreatedAt                time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

func (t *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
