package reconciliation

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/pos-payments/internal"
	orderDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/order"
	"github.com/frahmantamala/pos-payments/internal/gateway"
	"github.com/frahmantamala/pos-payments/internal/ledger"
	"github.com/frahmantamala/pos-payments/internal/order"
)

type OrderUpdateResult struct {
	Order          *orderDatamodel.Order
	PaymentChanged bool
	StatusAdvanced bool
}

// OrderUpdater applies a classified callback to the order's payment fields.
type OrderUpdater struct {
	orders order.RepositoryAPI
	logger *slog.Logger
	now    func() time.Time
}

func NewOrderUpdater(orders order.RepositoryAPI, logger *slog.Logger) *OrderUpdater {
	return &OrderUpdater{
		orders: orders,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply runs inside tx. A paid order never goes back to pending or failed, and a failure
// only lands on an order that is still pending.
func (u *OrderUpdater) Apply(tx *gorm.DB, orderRef, txnRef string, outcome gateway.Outcome, cb *gateway.Callback) (*OrderUpdateResult, error) {
	o, err := u.orders.FindByID(tx, orderRef)
	if err != nil {
		return nil, err
	}

	res := &OrderUpdateResult{Order: o}

	switch outcome {
	case gateway.OutcomeSuccess:
		if !order.IsPaid(o) {
			method := cb.Gateway
			o.PaymentStatus = order.PaymentStatusPaid
			o.PaymentMethod = &method
			if o.PaidAt == nil {
				paidAt := u.now()
				o.PaidAt = &paidAt
			}
			o.PaymentDetails = ledger.MergeMetadata(o.PaymentDetails, map[string]interface{}{
				"transactionId": txnRef,
				"gateway":       cb.Gateway,
				"paidAt":        o.PaidAt.UTC().Format(time.RFC3339Nano),
			})
			res.PaymentChanged = true
		}

		// saved even when already paid so replays take the same path
		if err := u.orders.Save(tx, o); err != nil {
			return nil, err
		}

		if o.Status == order.StatusPending {
			note := fmt.Sprintf("payment confirmed via %s (%s)", cb.Gateway, txnRef)
			actor := actorFrom(tx)
			if err := u.orders.AdvanceStatus(tx, o, order.StatusConfirmed, actor, note); err != nil {
				return nil, err
			}
			res.StatusAdvanced = true
		}

	case gateway.OutcomeFailure:
		if o.PaymentStatus != order.PaymentStatusPending {
			u.logger.Info("late failure ignored for order",
				"order_id", o.ID,
				"payment_status", o.PaymentStatus,
				"txn_ref", txnRef)
			return res, nil
		}
		o.PaymentStatus = order.PaymentStatusFailed
		if err := u.orders.Save(tx, o); err != nil {
			return nil, err
		}
		res.PaymentChanged = true

	default:
		return nil, fmt.Errorf("unknown outcome %q", outcome)
	}

	return res, nil
}

func actorFrom(tx *gorm.DB) string {
	if tx == nil || tx.Statement == nil {
		return internal.SystemActor
	}
	return internal.ActorIDFromContext(tx.Statement.Context)
}
