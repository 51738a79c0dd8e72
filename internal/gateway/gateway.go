// Package gateway holds the gateway-neutral view of an inbound payment callback.
// Each gateway contributes a Normalizer and Classifier pair through the Gateway interface.
package gateway

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pos-payments/internal"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

var ErrUnresolvableCallback = internal.ErrUnresolvableCallback

// Callback is a normalized inbound notification.
type Callback struct {
	Gateway           string
	OrderRef          string
	TxnRef            string
	CheckoutRequestID string
	MerchantRequestID string
	ReceiptNumber     string
	Amount            *decimal.Decimal
	Currency          string
	Phone             string
	CustomerName      string
	AccountReference  string
	Description       string
	ResultDesc        string
	Raw               map[string]interface{}
}

// AttemptKey identifies the payment attempt within its order.
func (c *Callback) AttemptKey() string {
	if c.CheckoutRequestID != "" {
		return c.CheckoutRequestID
	}
	return c.TxnRef
}

// Metadata is the gateway-specific subset kept on the ledger entry.
func (c *Callback) Metadata() map[string]interface{} {
	return map[string]interface{}{
		"merchantRequestId": c.MerchantRequestID,
		"checkoutRequestId": c.CheckoutRequestID,
		"receiptNumber":     c.ReceiptNumber,
		"phone":             c.Phone,
		"accountReference":  c.AccountReference,
		"description":       c.Description,
		"resultDesc":        c.ResultDesc,
	}
}

type Gateway interface {
	Name() string
	// Normalize returns ErrUnresolvableCallback when no order reference is present.
	Normalize(payload map[string]interface{}) (*Callback, error)
	Classify(payload map[string]interface{}) Outcome
}

type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Name()] = g
}

func (r *Registry) Get(name string) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[name]
	return g, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
