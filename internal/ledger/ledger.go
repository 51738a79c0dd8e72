package ledger

import (
	"gorm.io/gorm"

	"github.com/frahmantamala/pos-payments/internal"
	ledgerDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/ledger"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrDuplicateAttempt = internal.ErrDuplicateAttempt

// RepositoryAPI is the ledger store. Rows are keyed by (order id, checkout request id).
type RepositoryAPI interface {
	FindByAttempt(tx *gorm.DB, orderID, checkoutRequestID string) (*ledgerDatamodel.PaymentTransaction, error)
	Insert(tx *gorm.DB, entry *ledgerDatamodel.PaymentTransaction) error
	Save(tx *gorm.DB, entry *ledgerDatamodel.PaymentTransaction) error
	ListByOrder(tx *gorm.DB, orderID string) ([]*ledgerDatamodel.PaymentTransaction, error)
}

// MergeMetadata copies every non-empty value of src over dst and returns dst.
// Keys missing from src, or empty in it, keep what dst already learned.
func MergeMetadata(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		if isEmpty(v) {
			continue
		}
		dst[k] = v
	}
	return dst
}

func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}
