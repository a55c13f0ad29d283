package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/state"
)

// LedgerHandler serves the read-only views.
type LedgerHandler struct {
	*Base
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *Base) *LedgerHandler {
	return &LedgerHandler{Base: base}
}

func (h *LedgerHandler) filter(w http.ResponseWriter, r *http.Request) (state.Filter, bool) {
	f, err := h.ParseFilter(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return f, false
	}
	return f, true
}

// Invoices handles GET /api/invoices
func (h *LedgerHandler) Invoices(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.NewListResponse(h.svc.InvoiceView(f), f))
}

// Bank handles GET /api/bank
func (h *LedgerHandler) Bank(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.NewListResponse(h.svc.BankView(f), f))
}

// Resolved handles GET /api/resolved - bank matches, cash settlements and exclusions.
func (h *LedgerHandler) Resolved(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.NewListResponse(h.svc.ResolvedReport(f), f))
}

// Stats handles GET /api/stats
func (h *LedgerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.StatsResponse{Stats: h.svc.Stats(f), Filter: f})
}

// Backup handles GET /api/backup - the whole state as a JSON download.
func (h *LedgerHandler) Backup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("reconcile-backup-%s.json", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	h.WriteJSON(w, http.StatusOK, h.svc.Snapshot())
}
