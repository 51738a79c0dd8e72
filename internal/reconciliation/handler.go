package reconciliation

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/pos-payments/internal"
	"github.com/frahmantamala/pos-payments/internal/transport"
	"github.com/frahmantamala/pos-payments/pkg/logger"
)

// MaxCallbackBytes bounds a callback body; larger bodies are answered with 413.
const MaxCallbackBytes = 1 << 20

var (
	errInvalidPayload  = internal.NewValidationError("callback body must be a JSON object", internal.ErrCodeInvalidPayload)
	errTrailingPayload = errors.New("unexpected data after JSON object")
)

type WebhookHandler struct {
	*transport.BaseHandler
	service        ServiceAPI
	defaultGateway string
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, service ServiceAPI, defaultGateway string) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		service:        service,
		defaultGateway: defaultGateway,
	}
}

// HandleCallback serves POST /payments/callback/{gateway}. Without the path parameter the
// configured default gateway is used.
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "gateway")
	if name == "" {
		name = h.defaultGateway
	}
	h.handle(w, r, name)
}

// HandleCallbackFor pins the gateway, for callback URLs registered before gateways were routed by path.
func (h *WebhookHandler) HandleCallbackFor(gatewayName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.handle(w, r, gatewayName)
	}
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, gatewayName string) {
	payload, err := decodePayload(w, r)
	if err != nil {
		h.Logger.Warn("unreadable payment callback", "gateway", gatewayName, "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = internal.ErrPayloadTooLarge.WithCause(err)
		} else {
			err = errInvalidPayload.WithCause(err)
		}
		status, ack := Acknowledge(nil, err)
		h.WriteJSON(w, status, ack)
		return
	}

	ctx := logger.With(r.Context(), "request_path", r.URL.Path)
	result, err := h.service.Reconcile(ctx, gatewayName, payload)

	status, ack := Acknowledge(result, err)
	h.WriteJSON(w, status, ack)
}

// decodePayload reads the body as a single JSON object. Query parameters fill keys the body lacks,
// since several integrations put the order reference on the callback URL.
func decodePayload(w http.ResponseWriter, r *http.Request) (map[string]interface{}, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxCallbackBytes))
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, err
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, errTrailingPayload
		}
		if payload == nil {
			payload = map[string]interface{}{}
		}
	}

	for key, values := range r.URL.Query() {
		if _, exists := payload[key]; exists || len(values) == 0 {
			continue
		}
		payload[key] = values[0]
	}

	return payload, nil
}
