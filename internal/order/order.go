package order

import (
	"gorm.io/gorm"

	"github.com/frahmantamala/pos-payments/internal"
	orderDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/order"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusPreparing = "preparing"
	StatusReady     = "ready"
	StatusServed    = "served"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

var (
	ErrOrderNotFound           = internal.ErrOrderNotFound
	ErrInvalidStatusTransition = internal.ErrInvalidStatusTransition
)

// transitions is the fulfillment state machine. Every live state may also be cancelled.
var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusServed, StatusCancelled},
	StatusServed:    {StatusCompleted},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsPaid(o *orderDatamodel.Order) bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// RepositoryAPI is the order store. Every method runs on the caller's transaction handle.
type RepositoryAPI interface {
	FindByID(tx *gorm.DB, id string) (*orderDatamodel.Order, error)
	Save(tx *gorm.DB, o *orderDatamodel.Order) error
	AdvanceStatus(tx *gorm.DB, o *orderDatamodel.Order, next, actorID, note string) error
	Create(tx *gorm.DB, o *orderDatamodel.Order) error
	ListStatusChanges(tx *gorm.DB, orderID string) ([]*orderDatamodel.OrderStatusChange, error)
}
