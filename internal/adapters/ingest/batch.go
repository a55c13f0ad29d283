// Package ingest turns exported spreadsheets into batches of raw rows.
//
// A row is a header-to-cell mapping exactly as exported; nothing is parsed
// here beyond locating the header and dropping rows that are not records
// (blank lines, totals, bank preamble). Identity and period derivation happen
// downstream.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalize"
)

// Batch is one ingestion event
type Batch struct {
	Source ledger.SourceType
	Rows   []map[string]string
	// PeriodHint is the period the operator said the file covers, if any.
	PeriodHint *normalize.Period
	// Name is the originating file name, for logs.
	Name string
}

var periodHintPattern = regexp.MustCompile(`^(\d{4})(?:-?[Qq]([1-4]))?$`)

// ParsePeriodHint reads "2025" or "2025-Q3". An empty string is no hint.
func ParsePeriodHint(s string) (*normalize.Period, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	m := periodHintPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid period %q, want YYYY or YYYY-Qn", s)
	}
	year, _ := strconv.Atoi(m[1])
	p := &normalize.Period{Year: year, Quarter: -1}
	if m[2] != "" {
		p.Quarter, _ = strconv.Atoi(m[2])
	}
	return p, nil
}

// ReadJSON decodes a JSON array of objects into a batch. Non-string values
// are kept in their JSON text form.
func ReadJSON(r io.Reader, source ledger.SourceType) (*Batch, error) {
	var raw []map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}

	batch := &Batch{Source: source, Rows: make([]map[string]string, 0, len(raw))}
	for _, obj := range raw {
		row := make(map[string]string, len(obj))
		for k, v := range obj {
			row[k] = jsonText(v)
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func jsonText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	if string(v) == "null" {
		return ""
	}
	return string(v)
}
