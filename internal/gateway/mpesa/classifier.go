package mpesa

import (
	"strings"

	"github.com/frahmantamala/pos-payments/internal/gateway"
)

var (
	numericResultCodeKeys = []string{"resultCode", "ResultCode"}
	stringResultCodeKeys  = []string{"ResultCode", "resultCode"}
	statusKeys            = []string{"status", "Status"}
)

// Classify resolves every callback to success or failure. Any one success signal is enough:
// a numeric result code of 0, a string result code of "0", a success/completed status, or a receipt number.
func Classify(payload map[string]interface{}) gateway.Outcome {
	flat := Flatten(payload)

	for _, k := range numericResultCodeKeys {
		if code, ok := asNumber(flat[k]); ok && code.IsZero() {
			return gateway.OutcomeSuccess
		}
	}

	if stringResultCode(flat) == "0" {
		return gateway.OutcomeSuccess
	}

	for _, k := range statusKeys {
		if s, ok := flat[k].(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "success", "completed":
				return gateway.OutcomeSuccess
			}
		}
	}

	if firstMatch(flat, receiptFields) != "" {
		return gateway.OutcomeSuccess
	}

	return gateway.OutcomeFailure
}

// stringResultCode reads the first string-typed result code, defaulting to "1".
func stringResultCode(flat map[string]interface{}) string {
	for _, k := range stringResultCodeKeys {
		if s, ok := flat[k].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return "1"
}
