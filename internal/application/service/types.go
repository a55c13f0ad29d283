package service

import (
	"errors"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/lock"
)

var (
	// ErrBusy is returned when another command is still running.
	ErrBusy = lock.ErrBusy
	// ErrNotFound is returned when a hash names no record, or no link of
	// the kind the command undoes.
	ErrNotFound = errors.New("service: not found")
	// ErrAlreadyResolved is returned when linking an invoice that already
	// has a bank match.
	ErrAlreadyResolved = errors.New("service: invoice already resolved")
	// ErrBankUsed is returned when a movement is already matched or excluded.
	ErrBankUsed = errors.New("service: bank movement already used")
	// ErrConfirmationRequired is returned by destructive commands called
	// without confirmation.
	ErrConfirmationRequired = errors.New("service: confirmation required")
	// ErrInvalid is returned for malformed command input.
	ErrInvalid = errors.New("service: invalid request")
	// ErrNotSaved is returned when the store did not confirm a write. The
	// in-memory state is left as it was.
	ErrNotSaved = errors.New("service: write not confirmed by store")
)

// LoadSummary describes the last full load
type LoadSummary struct {
	Invoices      int           `json:"invoices"`
	BankMovements int           `json:"bank_movements"`
	Links         int           `json:"links"`
	Orphans       int           `json:"orphans"`
	Corrupt       int           `json:"corrupt"`
	Duration      time.Duration `json:"duration_ns"`
	LoadedAt      time.Time     `json:"loaded_at"`
}

// AutoMatchResult reports one auto-match run
type AutoMatchResult struct {
	// Considered is the number of invoices in the filter.
	Considered int           `json:"considered"`
	Proposed   int           `json:"proposed"`
	Saved      []ledger.Link `json:"saved"`
	// Unsaved are matches whose write failed; they are not applied.
	Unsaved []ledger.Link `json:"unsaved,omitempty"`
	Errors  int           `json:"errors"`
}

// LinkResult reports a manual link of one movement to several invoices
type LinkResult struct {
	Links        []ledger.Link `json:"links"`
	InvoiceTotal string        `json:"invoice_total"`
	// Difference is invoice total plus movement amount.
	Difference string `json:"difference"`
	Balanced   bool   `json:"balanced"`
}

// DeleteResult reports a bulk delete
type DeleteResult struct {
	Records int `json:"records"`
	Links   int `json:"links"`
	// Missing are requested hashes that named no record.
	Missing []string `json:"missing,omitempty"`
}

// Status is a summary for health and status displays
type Status struct {
	Busy          bool         `json:"busy"`
	Invoices      int          `json:"invoices"`
	BankMovements int          `json:"bank_movements"`
	Links         int          `json:"links"`
	LatestYear    int          `json:"latest_year"`
	Years         []int        `json:"years"`
	LastLoad      *LoadSummary `json:"last_load,omitempty"`
}
