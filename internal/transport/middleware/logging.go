package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
)

const (
	filtered = "[FILTERED]"

	// maxLoggedBody caps what a single log line carries of a request or response body.
	maxLoggedBody = 4 << 10
)

// sensitiveFields are matched against lowercased keys with separators removed, so
// "PhoneNumber", "customer_phone" and "MSISDN" are all caught.
var sensitiveFields = []string{
	"phone",
	"msisdn",
	"partya",
	"firstname",
	"middlename",
	"lastname",
	"customername",
	"password",
	"passkey",
	"secret",
	"token",
	"credential",
	"authorization",
	"apikey",
}

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
	"x-api-key":     true,
}

// LoggingMiddleware logs each callback request and its acknowledgement. At most maxBodyBytes of
// the request body are buffered for the log; the handler still reads the full stream and enforces
// its own limit. Payer details are filtered, including Daraja Item entries such as PhoneNumber.
func LoggingMiddleware(logger *slog.Logger, maxBodyBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			traceID := w.Header().Get(TraceHeader)

			body := peekBody(r, maxBodyBytes)
			logger.Info("incoming request",
				"request_id", reqID,
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
				"query", filterQuery(r.URL.RawQuery),
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"headers", filterHeaders(r.Header),
				"body", body,
			)

			captured := &cappedBuffer{limit: maxLoggedBody}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(captured)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "response",
				"request_id", reqID,
				"trace_id", traceID,
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", ww.BytesWritten(),
				"body", filterBody(captured.Bytes(), captured.truncated),
			)
		})
	}
}

// peekBody buffers up to limit bytes for logging and hands the handler an equivalent stream.
func peekBody(r *http.Request, limit int64) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	original := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), original), original}

	if err != nil {
		return "[UNREADABLE]"
	}
	if int64(len(buf)) > limit {
		return fmt.Sprintf("[OMITTED - body exceeds %d bytes]", limit)
	}
	return filterBody(buf, false)
}

func filterBody(body []byte, truncated bool) string {
	if len(body) == 0 {
		return ""
	}
	if truncated {
		return fmt.Sprintf("[OMITTED - %d+ bytes]", len(body))
	}

	var data interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		// raw text could carry anything; its size is enough to debug a rejected callback
		return fmt.Sprintf("[NON-JSON - %d bytes]", len(body))
	}

	out, err := json.Marshal(filterJSON(data))
	if err != nil {
		return "[ERROR - failed to marshal filtered JSON]"
	}
	if len(out) > maxLoggedBody {
		return string(out[:maxLoggedBody]) + "...[TRUNCATED]"
	}
	return string(out)
}

func filterJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitive(key) {
				out[key] = filtered
				continue
			}
			out[key] = filterJSON(value)
		}
		// Daraja metadata items name the field in Name and carry it in Value
		if name, ok := itemName(v); ok && isSensitive(name) {
			for key := range out {
				if strings.EqualFold(key, "value") {
					out[key] = filtered
				}
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = filterJSON(item)
		}
		return out
	default:
		return v
	}
}

func itemName(m map[string]interface{}) (string, bool) {
	for key, value := range m {
		if strings.EqualFold(key, "name") {
			name, ok := value.(string)
			return name, ok
		}
	}
	return "", false
}

func isSensitive(key string) bool {
	normalized := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(key))
	for _, field := range sensitiveFields {
		if strings.Contains(normalized, field) {
			return true
		}
	}
	return false
}

func filterQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[UNPARSEABLE]"
	}
	for key := range values {
		if isSensitive(key) {
			values[key] = []string{filtered}
		}
	}
	return values.Encode()
}

func filterHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if sensitiveHeaders[strings.ToLower(name)] || isSensitive(name) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// cappedBuffer keeps the first limit bytes written to it and drops the rest.
type cappedBuffer struct {
	bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.limit - c.Len()
	if room <= 0 {
		c.truncated = len(p) > 0 || c.truncated
		return len(p), nil
	}
	if len(p) > room {
		c.truncated = true
		c.Buffer.Write(p[:room])
		return len(p), nil
	}
	c.Buffer.Write(p)
	return len(p), nil
}
