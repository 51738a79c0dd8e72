package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	ledgerDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/ledger"
	ledgerpkg "github.com/frahmantamala/pos-payments/internal/ledger"
)

type LedgerRepository struct{}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{}
}

var _ ledgerpkg.RepositoryAPI = (*LedgerRepository)(nil)

// FindByAttempt returns nil, nil when the attempt has no row yet.
func (r *LedgerRepository) FindByAttempt(tx *gorm.DB, orderID, checkoutRequestID string) (*ledgerDatamodel.PaymentTransaction, error) {
	var entry ledgerDatamodel.PaymentTransaction
	err := tx.Where("order_id = ? AND gateway_checkout_request_id = ?", orderID, checkoutRequestID).
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("find ledger entry for order %s: %w", orderID, err)
	}
	if entry.ID == "" {
		return nil, nil
	}
	return &entry, nil
}

func (r *LedgerRepository) Insert(tx *gorm.DB, entry *ledgerDatamodel.PaymentTransaction) error {
	// relies on gorm.Config.TranslateError to surface unique violations as gorm.ErrDuplicatedKey
	err := tx.Create(entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ledgerpkg.ErrDuplicateAttempt.WithCause(err)
		}
		return fmt.Errorf("insert ledger entry for order %s: %w", entry.OrderID, err)
	}
	return nil
}

// Save updates the mutable columns of an existing entry; tenant and order are never rewritten.
func (r *LedgerRepository) Save(tx *gorm.DB, entry *ledgerDatamodel.PaymentTransaction) error {
	err := tx.Model(entry).
		Select("status", "amount", "currency", "customer_phone", "customer_name", "gateway_transaction_id",
			"gateway_response", "gateway_metadata", "completed_at", "failed_at", "updated_at").
		Updates(entry).Error
	if err != nil {
		return fmt.Errorf("save ledger entry %s: %w", entry.ID, err)
	}
	return nil
}

func (r *LedgerRepository) ListByOrder(tx *gorm.DB, orderID string) ([]*ledgerDatamodel.PaymentTransaction, error) {
	var entries []*ledgerDatamodel.PaymentTransaction
	err := tx.Where("order_id = ?", orderID).Order("initiated_at ASC").Find(&entries).Error
	return entries, err
}
