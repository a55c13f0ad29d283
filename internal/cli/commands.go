package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
)

// ErrUnsaved is returned by commands that completed with writes the store
// did not confirm, so callers can exit non-zero.
var ErrUnsaved = errors.New("some writes were not saved")

// RunStatus loads the state and prints its counts
func RunStatus(ctx context.Context, app *App, w io.Writer) error {
	summary, err := app.Service.Load(ctx)
	if err != nil {
		return err
	}
	PrintLoadSummary(w, summary)
	PrintStatus(w, app.Service.Status(ctx))
	return nil
}

// RunIngest reads each file and ingests it as one batch
func RunIngest(ctx context.Context, app *App, flags *IngestFlags, w io.Writer) error {
	hint, err := ingest.ParsePeriodHint(flags.Period)
	if err != nil {
		return err
	}
	if _, err := app.Service.Load(ctx); err != nil {
		return err
	}

	opts := CSVOptions(app.Config, flags.Source)
	if flags.Encoding != "" {
		opts.Encoding = flags.Encoding
	}
	switch flags.Delimiter {
	case "":
	case "tab", `\t`:
		opts.Delimiter = '\t'
	default:
		opts.Delimiter = []rune(flags.Delimiter)[0]
	}

	unsaved := false
	for _, path := range flags.Files {
		batch, err := readBatch(path, flags, opts)
		if err != nil {
			return err
		}
		batch.PeriodHint = hint

		result, err := app.Service.Ingest(ctx, batch)
		if result != nil {
			PrintIngestSummary(w, batch.Name, result)
			unsaved = unsaved || len(result.Unsaved) > 0
		}
		if err != nil {
			return err
		}
	}
	if unsaved {
		return ErrUnsaved
	}
	return nil
}

func readBatch(path string, flags *IngestFlags, opts ingest.CSVOptions) (*ingest.Batch, error) {
	if filepath.Ext(path) != ".json" {
		return ingest.ReadCSVFile(path, flags.Source, opts)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	batch, err := ingest.ReadJSON(f, flags.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	batch.Name = filepath.Base(path)
	return batch, nil
}

// RunAutoMatch loads the state and matches the selected pending invoices
func RunAutoMatch(ctx context.Context, app *App, flags *FilterFlags, w io.Writer) error {
	if _, err := app.Service.Load(ctx); err != nil {
		return err
	}
	filter, err := flags.ToFilter(app.Service.DefaultFilter().Year)
	if err != nil {
		return err
	}

	result, err := app.Service.AutoMatch(ctx, filter)
	if result != nil {
		PrintAutoMatchSummary(w, result)
	}
	if err != nil {
		return err
	}
	if len(result.Unsaved) > 0 {
		return ErrUnsaved
	}
	return nil
}

// RunReport prints one of the views
func RunReport(ctx context.Context, app *App, flags *ReportFlags, w io.Writer) error {
	if _, err := app.Service.Load(ctx); err != nil {
		return err
	}
	filter, err := flags.ToFilter(app.Service.DefaultFilter().Year)
	if err != nil {
		return err
	}

	switch flags.View {
	case "bank":
		PrintBank(w, app.Service.BankView(filter))
	case "resolved":
		PrintResolved(w, app.Service.ResolvedReport(filter))
	case "stats":
		PrintStats(w, app.Service.Stats(filter))
	default:
		PrintInvoices(w, app.Service.InvoiceView(filter))
	}
	return nil
}

// RunBackup writes the whole state as indented JSON
func RunBackup(ctx context.Context, app *App, flags *BackupFlags, w io.Writer) error {
	if _, err := app.Service.Load(ctx); err != nil {
		return err
	}

	out := w
	if flags.Output != "-" {
		name := flags.Output
		if name == "" {
			name = fmt.Sprintf("reconcile-backup-%s.json", time.Now().Format("20060102-150405"))
		}
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
		defer fmt.Fprintf(w, "Backup written to %s\n", name)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(app.Service.Snapshot())
}

// RunDelete removes records and every link referencing them
func RunDelete(ctx context.Context, app *App, flags *DeleteFlags, w io.Writer) error {
	if !flags.Yes {
		return fmt.Errorf("%w: pass --yes to delete %d records", service.ErrConfirmationRequired, len(flags.Hashes))
	}
	if _, err := app.Service.Load(ctx); err != nil {
		return err
	}
	result, err := app.Service.DeleteRecords(ctx, flags.Hashes, true)
	if err != nil {
		return err
	}
	PrintDeleteResult(w, result)
	return nil
}
