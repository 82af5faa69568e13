package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/metrics"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/httputil"
)

type sendMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleSendMessage always answers 200 so callers in a payment flow never
// fail on a notification; the outcome is in the body.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		httputil.WriteJSON(w, http.StatusOK, sendMessageResponse{Error: err.Error()})
		return
	}
	to := fields["to"]
	if to == "" {
		to = fields["phone"]
	}

	id, err := h.notifier.Send(r.Context(), to, fields["message"])
	metrics.RecordWhatsApp(h.notifier.Provider(), err == nil)
	h.audit.record(r, "whatsapp_send", fields["order_id"], to, err == nil)
	if err != nil {
		httputil.WriteJSON(w, http.StatusOK, sendMessageResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sendMessageResponse{Success: true, MessageID: id})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{"status": "ok", "time": time.Now().UTC()}
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.log.WithContext(r.Context()).WithError(err).Warn("readiness check failed")
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	httputil.WriteJSON(w, status, body)
}
