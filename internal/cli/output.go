package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	appsync "github.com/eshaffer321/ledger-reconciler/internal/application/sync"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/state"
)

// PrintLoadSummary prints what a full load found
func PrintLoadSummary(w io.Writer, s *service.LoadSummary) {
	fmt.Fprintf(w, "Loaded: Invoices=%d Bank=%d Links=%d (%s)\n",
		s.Invoices, s.BankMovements, s.Links, s.Duration.Round(time.Millisecond))
	if s.Orphans > 0 || s.Corrupt > 0 {
		fmt.Fprintf(w, "Skipped: Orphan links=%d Corrupt rows=%d\n", s.Orphans, s.Corrupt)
	}
}

// PrintIngestSummary prints the ingest result summary
func PrintIngestSummary(w io.Writer, name string, r *appsync.IngestResult) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "%s (%s): Read=%d Saved=%d Renamed=%d Invalid=%d Errors=%d\n",
		name, r.Source, r.Read, r.Saved, r.Renamed, r.Invalid, r.Errors)
	if p := r.PeriodHint; p != nil {
		if p.Quarter >= 1 {
			fmt.Fprintf(w, "Period: %d-Q%d\n", p.Year, p.Quarter)
		} else {
			fmt.Fprintf(w, "Period: %d\n", p.Year)
		}
	}
	if len(r.Unsaved) > 0 {
		fmt.Fprintf(w, "\n%d rows were not confirmed by the store and will be missing after a reload:\n", len(r.Unsaved))
		for _, h := range r.Unsaved {
			fmt.Fprintf(w, "  - %s\n", h)
		}
	}
}

// PrintAutoMatchSummary prints the auto-match result summary
func PrintAutoMatchSummary(w io.Writer, r *service.AutoMatchResult) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Summary: Considered=%d Proposed=%d Saved=%d Unsaved=%d\n",
		r.Considered, r.Proposed, len(r.Saved), len(r.Unsaved))
	if len(r.Unsaved) > 0 {
		fmt.Fprintln(w, "\nNot saved (run again once the store is reachable):")
		for _, l := range r.Unsaved {
			fmt.Fprintf(w, "  - %s -> %s\n", l.SubjectHash, l.CounterpartHash)
		}
	}
}

// PrintStatus prints record counts and the last load
func PrintStatus(w io.Writer, st service.Status) {
	fmt.Fprintf(w, "Invoices=%d Bank=%d Links=%d\n", st.Invoices, st.BankMovements, st.Links)
	if len(st.Years) > 0 {
		years := make([]string, len(st.Years))
		for i, y := range st.Years {
			years[i] = fmt.Sprint(y)
		}
		fmt.Fprintf(w, "Years: %s (latest %d)\n", strings.Join(years, ", "), st.LatestYear)
	}
	if st.Busy {
		fmt.Fprintln(w, "Another operation is in progress.")
	}
}

// PrintInvoices prints an invoice view as a table
func PrintInvoices(w io.Writer, rows []state.InvoiceRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tAMOUNT\tCOUNTERPARTY\tPERIOD\tRESOLUTION\tHASH")
	for _, r := range rows {
		resolution := string(r.Resolution)
		if resolution == "" {
			resolution = "pending"
		}
		if r.QuarterMismatch {
			resolution += " (other quarter)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.OccurredOn, r.Amount, r.Counterparty, r.Period, resolution, r.Hash)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d invoices\n", len(rows))
}

// PrintBank prints a bank view as a table
func PrintBank(w io.Writer, rows []state.BankRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tAMOUNT\tCONCEPT\tPERIOD\tSTATUS\tHASH")
	for _, r := range rows {
		status := "pending"
		switch {
		case r.Excluded:
			status = "excluded"
		case len(r.Invoices) > 0:
			status = fmt.Sprintf("matched (%d)", len(r.Invoices))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.OccurredOn, r.Amount, r.Counterparty, r.Period, status, r.Hash)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d movements\n", len(rows))
}

// PrintResolved prints resolved items as a table
func PrintResolved(w io.Writer, items []state.ResolvedItem) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tINVOICE\tAMOUNT\tMOVEMENT\tAMOUNT\tNOTE")
	for _, it := range items {
		var invoice, invoiceAmt, bank, bankAmt, note string
		if it.Invoice != nil {
			invoice, invoiceAmt = it.Invoice.Counterparty, it.Invoice.Amount
		}
		if it.Bank != nil {
			bank, bankAmt = it.Bank.Counterparty, it.Bank.Amount
		}
		if it.QuarterMismatch {
			note = "other quarter"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", it.Kind, invoice, invoiceAmt, bank, bankAmt, note)
	}
	_ = tw.Flush()
}

// PrintStats prints per-ledger totals
func PrintStats(w io.Writer, s state.Stats) {
	fmt.Fprintf(w, "Invoices: Total=%d Resolved=%d Pending=%d Amount=%.2f Pending amount=%.2f\n",
		s.Invoices.Total, s.Invoices.Resolved, s.Invoices.Pending, s.Invoices.TotalAmount, s.Invoices.PendingAmount)
	fmt.Fprintf(w, "Bank:     Total=%d Resolved=%d Pending=%d Amount=%.2f Pending amount=%.2f\n",
		s.Bank.Total, s.Bank.Resolved, s.Bank.Pending, s.Bank.TotalAmount, s.Bank.PendingAmount)
}

// PrintDeleteResult prints what a delete removed
func PrintDeleteResult(w io.Writer, r *service.DeleteResult) {
	fmt.Fprintf(w, "Deleted: Records=%d Links=%d\n", r.Records, r.Links)
	for _, h := range r.Missing {
		fmt.Fprintf(w, "  not found: %s\n", h)
	}
}
