// Package mpesa reads Safaricom M-Pesa callbacks, both the Daraja STK envelope and the flat
// shapes posted by older integrations.
package mpesa

import "github.com/frahmantamala/pos-payments/internal/gateway"

const (
	Name               = "mpesa"
	DefaultPhoneRegion = "KE"
)

type Gateway struct {
	normalizer *Normalizer
}

func New(phoneRegion string) *Gateway {
	return &Gateway{normalizer: NewNormalizer(phoneRegion)}
}

var _ gateway.Gateway = (*Gateway)(nil)

func (g *Gateway) Name() string {
	return Name
}

func (g *Gateway) Normalize(payload map[string]interface{}) (*gateway.Callback, error) {
	return g.normalizer.Normalize(payload)
}

func (g *Gateway) Classify(payload map[string]interface{}) gateway.Outcome {
	return Classify(payload)
}
