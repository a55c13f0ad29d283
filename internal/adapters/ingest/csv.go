package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// ErrHeaderNotFound is returned when no line looks like the header row.
var ErrHeaderNotFound = errors.New("ingest: header row not found")

// Bank exports list movements as d/m/y in the first column; anything else
// (balances, footers) is not a movement.
var movementDate = regexp.MustCompile(`^\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}$`)

// CSVOptions controls how an export is read
type CSVOptions struct {
	// Delimiter separates cells. 0 detects ';', ',' or tab from the content.
	Delimiter rune
	// Encoding is "utf-8" (default), "windows-1252" or "iso-8859-1".
	Encoding string
	// HeaderKeywords, when set, skips lines until one has a cell equal
	// (case-insensitively) to any keyword.
	HeaderKeywords []string
	// DateColumn, when set, keeps only rows whose value there is a d/m/y date.
	DateColumn string
}

// InvoiceCSVOptions reads invoice registers: header on the first line.
func InvoiceCSVOptions() CSVOptions {
	return CSVOptions{}
}

// BankCSVOptions reads bank exports, which carry a preamble above the header.
func BankCSVOptions(cols ledger.Columns) CSVOptions {
	return CSVOptions{
		HeaderKeywords: []string{cols.Date, cols.Description},
		DateColumn:     cols.Date,
	}
}

// ReadCSVFile opens and reads an export
func ReadCSVFile(path string, source ledger.SourceType, opts CSVOptions) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	batch, err := ReadCSV(f, source, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	batch.Name = filepath.Base(path)
	return batch, nil
}

// ReadCSV reads an export into a batch
func ReadCSV(r io.Reader, source ledger.SourceType, opts CSVOptions) (*Batch, error) {
	dec, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(transform.NewReader(r, unicode.BOMOverride(dec)))
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = opts.Delimiter
	if cr.Comma == 0 {
		cr.Comma = detectDelimiter(data)
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}

	headerAt := findHeader(records, opts.HeaderKeywords)
	if headerAt < 0 {
		return nil, ErrHeaderNotFound
	}
	header := make([]string, len(records[headerAt]))
	for i, h := range records[headerAt] {
		header[i] = strings.TrimSpace(h)
	}

	batch := &Batch{Source: source}
	for _, rec := range records[headerAt+1:] {
		if blank(rec) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" || i >= len(rec) {
				continue
			}
			if _, dup := row[name]; dup {
				continue
			}
			row[name] = strings.TrimSpace(rec[i])
		}
		if opts.DateColumn != "" {
			if v, _ := ledger.Lookup(row, opts.DateColumn); !movementDate.MatchString(v) {
				continue
			}
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func decoder(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return encoding.Nop.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder(), nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", name)
}

// detectDelimiter picks the most frequent candidate on the first non-empty line.
func detectDelimiter(data []byte) rune {
	line := ""
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}
	best, bestCount := ',', 0
	for _, c := range []rune{';', ',', '\t'} {
		if n := strings.Count(line, string(c)); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

func findHeader(records [][]string, keywords []string) int {
	for i, rec := range records {
		if blank(rec) {
			continue
		}
		if len(keywords) == 0 {
			return i
		}
		for _, cell := range rec {
			cell = strings.TrimSpace(cell)
			for _, k := range keywords {
				if k != "" && strings.EqualFold(cell, strings.TrimSpace(k)) {
					return i
				}
			}
		}
	}
	return -1
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
