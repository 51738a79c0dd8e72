package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentReconciled     = "payment.reconciled"
	EventTypePaymentCallbackFailed = "payment.callback_failed"
)

type PaymentReconciledEvent struct {
	BaseEvent
	TenantID       string `json:"tenant_id"`
	OrderID        string `json:"order_id"`
	LedgerEntryID  string `json:"ledger_entry_id"`
	Gateway        string `json:"gateway"`
	TxnRef         string `json:"txn_ref"`
	Outcome        string `json:"outcome"`
	PaymentStatus  string `json:"payment_status"`
	OrderStatus    string `json:"order_status"`
	PaymentChanged bool   `json:"payment_changed"`
	LedgerCreated  bool   `json:"ledger_created"`
}

type ReconciledParams struct {
	TenantID       string
	OrderID        string
	LedgerEntryID  string
	Gateway        string
	TxnRef         string
	Outcome        string
	PaymentStatus  string
	OrderStatus    string
	Amount         string
	Currency       string
	PaymentChanged bool
	LedgerCreated  bool
}

func NewPaymentReconciledEvent(p ReconciledParams) *PaymentReconciledEvent {
	return &PaymentReconciledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentReconciled,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"tenant_id":       p.TenantID,
				"order_id":        p.OrderID,
				"ledger_entry_id": p.LedgerEntryID,
				"gateway":         p.Gateway,
				"txn_ref":         p.TxnRef,
				"outcome":         p.Outcome,
				"payment_status":  p.PaymentStatus,
				"order_status":    p.OrderStatus,
				"amount":          p.Amount,
				"currency":        p.Currency,
				"payment_changed": p.PaymentChanged,
				"ledger_created":  p.LedgerCreated,
			},
		},
		TenantID:       p.TenantID,
		OrderID:        p.OrderID,
		LedgerEntryID:  p.LedgerEntryID,
		Gateway:        p.Gateway,
		TxnRef:         p.TxnRef,
		Outcome:        p.Outcome,
		PaymentStatus:  p.PaymentStatus,
		OrderStatus:    p.OrderStatus,
		PaymentChanged: p.PaymentChanged,
		LedgerCreated:  p.LedgerCreated,
	}
}

type PaymentCallbackFailedEvent struct {
	BaseEvent
	Gateway   string `json:"gateway"`
	OrderRef  string `json:"order_ref"`
	TxnRef    string `json:"txn_ref"`
	ErrorCode string `json:"error_code"`
	Reason    string `json:"reason"`
}

func NewPaymentCallbackFailedEvent(gateway, orderRef, txnRef, errorCode, reason string) *PaymentCallbackFailedEvent {
	return &PaymentCallbackFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCallbackFailed,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"gateway":    gateway,
				"order_ref":  orderRef,
				"txn_ref":    txnRef,
				"error_code": errorCode,
				"reason":     reason,
			},
		},
		Gateway:   gateway,
		OrderRef:  orderRef,
		TxnRef:    txnRef,
		ErrorCode: errorCode,
		Reason:    reason,
	}
}
