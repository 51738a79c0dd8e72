package middleware

import (
	"net/http"

	"github.com/frahmantamala/pos-payments/pkg/logger"

	"github.com/google/uuid"
)

const TraceHeader = "X-Trace-ID"

// TraceID reuses X-Trace-ID from the caller or mints one, and scopes the request logger with it.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		// inject into context
		ctx := logger.With(r.Context(), "traceID", traceID)

		// propagate back to response
		w.Header().Set(TraceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
