package reconciliation

import (
	"time"

	"gorm.io/gorm"

	ledgerDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/ledger"
	orderDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/order"
	"github.com/frahmantamala/pos-payments/internal/gateway"
	"github.com/frahmantamala/pos-payments/internal/ledger"
)

// LedgerUpserter keeps exactly one ledger row per (order, attempt).
type LedgerUpserter struct {
	entries         ledger.RepositoryAPI
	defaultCurrency string
	now             func() time.Time
}

func NewLedgerUpserter(entries ledger.RepositoryAPI, defaultCurrency string) *LedgerUpserter {
	return &LedgerUpserter{
		entries:         entries,
		defaultCurrency: defaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Upsert reports whether a new row was inserted. Terminal timestamps are only ever set once.
func (u *LedgerUpserter) Upsert(tx *gorm.DB, cb *gateway.Callback, o *orderDatamodel.Order, outcome gateway.Outcome, txnRef string) (*ledgerDatamodel.PaymentTransaction, bool, error) {
	attemptKey := cb.CheckoutRequestID
	if attemptKey == "" {
		attemptKey = txnRef
	}

	status := ledger.StatusFailed
	if outcome == gateway.OutcomeSuccess {
		status = ledger.StatusCompleted
	}

	now := u.now()

	existing, err := u.entries.FindByAttempt(tx, o.ID, attemptKey)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		// a completed attempt stays completed; a late failure only adds to the audit trail
		if existing.Status != ledger.StatusCompleted {
			existing.Status = status
		}
		existing.GatewayResponse = copyMap(cb.Raw)
		existing.GatewayMetadata = ledger.MergeMetadata(existing.GatewayMetadata, cb.Metadata())
		if existing.GatewayTransactionID == "" {
			existing.GatewayTransactionID = txnRef
		}
		// stamp only the state the row actually holds
		markTerminal(existing, existing.Status, now)

		if err := u.entries.Save(tx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	entry := u.candidate(cb, o, status, txnRef, attemptKey)
	entry.InitiatedAt = now
	markTerminal(entry, status, now)

	if err := u.entries.Insert(tx, entry); err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func (u *LedgerUpserter) candidate(cb *gateway.Callback, o *orderDatamodel.Order, status, txnRef, attemptKey string) *ledgerDatamodel.PaymentTransaction {
	amount := o.TotalAmount
	if cb.Amount != nil {
		amount = *cb.Amount
	}

	return &ledgerDatamodel.PaymentTransaction{
		TenantID:                 o.TenantID,
		OrderID:                  o.ID,
		Status:                   status,
		Amount:                   amount,
		Currency:                 firstNonEmpty(cb.Currency, o.Currency, u.defaultCurrency),
		CustomerPhone:            firstNonEmpty(cb.Phone, o.CustomerPhone),
		CustomerName:             firstNonEmpty(cb.CustomerName, o.CustomerName),
		Gateway:                  cb.Gateway,
		GatewayTransactionID:     txnRef,
		GatewayCheckoutRequestID: attemptKey,
		GatewayResponse:          copyMap(cb.Raw),
		GatewayMetadata:          ledger.MergeMetadata(nil, cb.Metadata()),
	}
}

func markTerminal(e *ledgerDatamodel.PaymentTransaction, status string, now time.Time) {
	switch status {
	case ledger.StatusCompleted:
		if e.CompletedAt == nil {
			e.CompletedAt = &now
		}
	case ledger.StatusFailed:
		if e.FailedAt == nil {
			e.FailedAt = &now
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func copyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
