package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
)

// CommandsHandler serves the mutating endpoints. Each maps onto one
// service command, so a concurrent command gets 409 busy.
type CommandsHandler struct {
	*Base
}

// NewCommandsHandler creates a new commands handler.
func NewCommandsHandler(base *Base) *CommandsHandler {
	return &CommandsHandler{Base: base}
}

// Reload handles POST /api/reload - rebuilds the state from the store.
func (h *CommandsHandler) Reload(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Load(r.Context())
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, summary)
}

// AutoMatch handles POST /api/auto-match. The body is optional.
func (h *CommandsHandler) AutoMatch(w http.ResponseWriter, r *http.Request) {
	var req dto.FilterRequest
	if !h.DecodeOptionalJSON(w, r, &req) {
		return
	}

	result, err := h.svc.AutoMatch(r.Context(), req.ToFilter(h.svc.DefaultFilter().Year))
	if result == nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WritePartial(w, result, len(result.Unsaved), err)
}

// Link handles POST /api/links
func (h *CommandsHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req dto.LinkRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.Link(r.Context(), req.InvoiceHashes, req.BankHash)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, result)
}

// Unlink handles DELETE /api/links/{hash} - removes an invoice's bank match.
func (h *CommandsHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, h.svc.Unlink(r.Context(), chi.URLParam(r, "hash")))
}

// MarkCash handles PUT /api/invoices/{hash}/cash
func (h *CommandsHandler) MarkCash(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, h.svc.MarkCash(r.Context(), chi.URLParam(r, "hash")))
}

// UnmarkCash handles DELETE /api/invoices/{hash}/cash
func (h *CommandsHandler) UnmarkCash(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, h.svc.UnmarkCash(r.Context(), chi.URLParam(r, "hash")))
}

// Exclude handles PUT /api/bank/{hash}/exclusion
func (h *CommandsHandler) Exclude(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, h.svc.Exclude(r.Context(), chi.URLParam(r, "hash")))
}

// Include handles DELETE /api/bank/{hash}/exclusion
func (h *CommandsHandler) Include(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, h.svc.Include(r.Context(), chi.URLParam(r, "hash")))
}

// DeleteRecords handles POST /api/records/delete
func (h *CommandsHandler) DeleteRecords(w http.ResponseWriter, r *http.Request) {
	var req dto.DeleteRecordsRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.DeleteRecords(r.Context(), req.Hashes, req.Confirm)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *CommandsHandler) noContent(w http.ResponseWriter, err error) {
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
