package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/state"
)

// maxJSONBody caps command request bodies.
const maxJSONBody = 1 << 20

// Base provides shared functionality for all handlers.
type Base struct {
	svc      *service.Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewBase creates a new base handler over the service.
func NewBase(svc *service.Service, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{svc: svc, validate: validator.New(), logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteServiceError maps a service error to its HTTP status.
func (b *Base) WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrBusy):
		b.WriteError(w, http.StatusConflict, dto.BusyError())
	case errors.Is(err, service.ErrNotFound):
		b.WriteError(w, http.StatusNotFound, dto.NewAPIError(dto.ErrCodeNotFound, err.Error()))
	case errors.Is(err, service.ErrAlreadyResolved), errors.Is(err, service.ErrBankUsed):
		b.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeConflict, err.Error()))
	case errors.Is(err, service.ErrConfirmationRequired):
		b.WriteError(w, http.StatusPreconditionRequired,
			dto.NewAPIError(dto.ErrCodeConfirmationRequired, "set confirm to true to delete records"))
	case errors.Is(err, service.ErrInvalid), errors.Is(err, ingest.ErrHeaderNotFound):
		b.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
	case errors.Is(err, service.ErrNotSaved):
		b.logger.Error("Store did not confirm write", "error", err)
		b.WriteError(w, http.StatusServiceUnavailable, dto.NewAPIError(dto.ErrCodeStoreUnavailable, err.Error()))
	default:
		b.logger.Error("Request failed", "error", err)
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

// WritePartial writes the result of a command that can stop part way.
// Unconfirmed writes, or an error returned alongside the result, give 207.
func (b *Base) WritePartial(w http.ResponseWriter, result interface{}, unsaved int, err error) {
	status := http.StatusOK
	if err != nil {
		b.logger.Warn("Command stopped before finishing", "error", err)
		status = http.StatusMultiStatus
	} else if unsaved > 0 {
		status = http.StatusMultiStatus
	}
	b.WriteJSON(w, status, result)
}

// DecodeJSON reads and validates a request body. On failure it has already
// written the error response and returns false.
func (b *Base) DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return b.decode(w, r, dst, false)
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be empty;
// an empty body leaves dst untouched.
func (b *Base) DecodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return b.decode(w, r, dst, true)
}

func (b *Base) decode(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("unreadable request body"))
		return false
	}
	if optional && len(bytes.TrimSpace(body)) == 0 {
		return true
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body: "+err.Error()))
		return false
	}
	if err := b.validate.Struct(dst); err != nil {
		b.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(describeValidation(err)))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// ParseFilter reads year, quarters, search and pending from the query.
// A missing year means the latest year on record; year=0 selects all years.
func (b *Base) ParseFilter(r *http.Request) (state.Filter, error) {
	q := r.URL.Query()
	f := state.Filter{
		Search:      q.Get("search"),
		PendingOnly: ParseBoolParam(r, "pending", false),
	}

	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 0 {
			return f, fmt.Errorf("invalid year %q", raw)
		}
		f.Year = year
	} else {
		f.Year = b.svc.DefaultFilter().Year
	}

	if raw := q.Get("quarters"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			quarter, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(part), "Q")))
			if err != nil || quarter < 1 || quarter > 4 {
				return f, fmt.Errorf("invalid quarter %q", part)
			}
			f.Quarters = append(f.Quarters, quarter)
		}
	}
	return f, nil
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}
