package reconciliation

import (
	"errors"
	"net/http"

	"github.com/frahmantamala/pos-payments/internal"
)

const (
	ResultCodeAccepted      = "0"
	ResultCodeInternalError = "1"
)

// Acknowledgement is the body returned to the gateway. It reports whether the
// notification was processed, not whether the payment succeeded.
type Acknowledgement struct {
	Accepted          bool   `json:"accepted"`
	ResultCode        string `json:"resultCode"`
	ResultDescription string `json:"resultDescription"`
}

func accepted(description string) Acknowledgement {
	return Acknowledgement{Accepted: true, ResultCode: ResultCodeAccepted, ResultDescription: description}
}

func rejected(description string) Acknowledgement {
	return Acknowledgement{Accepted: false, ResultCode: ResultCodeInternalError, ResultDescription: description}
}

// Acknowledge maps a reconciliation outcome onto the HTTP status and body sent to the gateway.
// Gateways retry on non-2xx, so only true internal failures answer 5xx; an order that cannot be
// found is reported as an internal error with 200 to stop the retry loop while still alerting.
func Acknowledge(result *Result, err error) (int, Acknowledgement) {
	if err == nil {
		if result != nil && result.Status == ResultUnresolvable {
			return http.StatusOK, accepted("Accepted without changes: no order reference")
		}
		return http.StatusOK, accepted("Accepted")
	}

	switch {
	case errors.Is(err, internal.ErrOrderNotFound):
		return http.StatusOK, rejected("Internal error: order not found")
	case errors.Is(err, internal.ErrUnknownGateway):
		return http.StatusNotFound, rejected("Unknown payment gateway")
	}

	if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeValidation {
		status := appErr.StatusCode
		if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		return status, rejected(appErr.Message)
	}

	return http.StatusInternalServerError, rejected("Internal error")
}
