package handlers

import (
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// maxUploadBody caps an uploaded export.
const maxUploadBody = 32 << 20

var errInvalidDelimiter = errors.New("delimiter must be a single character or \"tab\"")

// IngestHandler accepts exported registers and bank statements.
type IngestHandler struct {
	*Base
	invoiceCSV ingest.CSVOptions
	bankCSV    ingest.CSVOptions
}

// NewIngestHandler creates an ingest handler reading CSV uploads with the
// given per-source options.
func NewIngestHandler(base *Base, invoiceCSV, bankCSV ingest.CSVOptions) *IngestHandler {
	return &IngestHandler{Base: base, invoiceCSV: invoiceCSV, bankCSV: bankCSV}
}

// Ingest handles POST /api/ingest/{source}
//
// The body is either a CSV export (text/csv, the default) or a JSON array of
// row objects (application/json). Query parameters:
//   - period: YYYY or YYYY-Qn, the period the file covers
//   - encoding: overrides the configured CSV encoding
//   - delimiter: overrides the CSV delimiter; "tab" for tab-separated files
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	source, err := ledger.ParseSourceType(chi.URLParam(r, "source"))
	if err != nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("source"))
		return
	}

	q := r.URL.Query()
	hint, err := ingest.ParsePeriodHint(q.Get("period"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadBody)
	var batch *ingest.Batch
	if isJSON(r.Header.Get("Content-Type")) {
		batch, err = ingest.ReadJSON(body, source)
	} else {
		opts, optErr := h.csvOptions(source, q.Get("encoding"), q.Get("delimiter"))
		if optErr != nil {
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(optErr.Error()))
			return
		}
		batch, err = ingest.ReadCSV(body, source, opts)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.WriteError(w, http.StatusRequestEntityTooLarge, dto.BadRequestError("upload too large"))
			return
		}
		h.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
		return
	}
	batch.PeriodHint = hint
	batch.Name = q.Get("name")

	result, err := h.svc.Ingest(r.Context(), batch)
	if result == nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WritePartial(w, result, len(result.Unsaved), err)
}

func (h *IngestHandler) csvOptions(source ledger.SourceType, encoding, delimiter string) (ingest.CSVOptions, error) {
	opts := h.invoiceCSV
	if source == ledger.SourceBank {
		opts = h.bankCSV
	}
	if encoding != "" {
		opts.Encoding = encoding
	}
	switch delimiter {
	case "":
	case "tab", `\t`:
		opts.Delimiter = '\t'
	default:
		if len([]rune(delimiter)) != 1 {
			return opts, errInvalidDelimiter
		}
		opts.Delimiter = []rune(delimiter)[0]
	}
	return opts, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
