package handlers

import (
	"net/http"

	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
)

// HealthHandler answers load balancer probes. It never takes the gate.
type HealthHandler struct {
	*Base
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(base *Base) *HealthHandler {
	return &HealthHandler{Base: base}
}

// ServeHTTP handles GET /health. The state is reported as loaded once a
// full load has completed; before that the service answers with empty views.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := dto.NewHealthResponse()
	if h.svc != nil {
		st := h.svc.Status(r.Context())
		response.Loaded = st.LastLoad != nil
		response.Busy = st.Busy
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// StatusHandler reports record counts and the last load.
type StatusHandler struct {
	*Base
}

func NewStatusHandler(base *Base) *StatusHandler {
	return &StatusHandler{Base: base}
}

// Get handles GET /api/status
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}
