package dto

import (
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/state"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Loaded    bool   `json:"loaded"`
	Busy      bool   `json:"busy"`
}

// NewHealthResponse creates a healthy response with the current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ListResponse wraps a filtered view.
type ListResponse[T any] struct {
	Items  []T          `json:"items"`
	Count  int          `json:"count"`
	Filter state.Filter `json:"filter"`
}

// NewListResponse builds a list response; a nil slice is sent as [].
func NewListResponse[T any](items []T, f state.Filter) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items), Filter: f}
}

// StatsResponse carries per-ledger totals for a filter.
type StatsResponse struct {
	state.Stats
	Filter state.Filter `json:"filter"`
}
