package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/state"
)

// GlobalFlags are accepted before the subcommand
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
}

// ParseGlobalFlags parses the global flags and returns the remaining
// arguments, starting with the subcommand.
func ParseGlobalFlags(args []string, output io.Writer) (GlobalFlags, []string, error) {
	var flags GlobalFlags
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return flags, nil, err
	}
	return flags, fs.Args(), nil
}

// FilterFlags select invoices and movements by period and text
type FilterFlags struct {
	Year     int
	Quarters string
	Search   string
	Pending  bool
}

func (f *FilterFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&f.Year, "year", -1, "Year to select (-1 = latest on record, 0 = all)")
	fs.StringVar(&f.Quarters, "quarters", "", "Comma separated quarters, e.g. 1,2 or Q3")
	fs.StringVar(&f.Search, "search", "", "Case-insensitive text to look for")
	fs.BoolVar(&f.Pending, "pending", false, "Only unresolved records")
}

// ToFilter converts the flags, using latestYear when -year was not given
func (f FilterFlags) ToFilter(latestYear int) (state.Filter, error) {
	filter := state.Filter{Year: f.Year, Search: f.Search, PendingOnly: f.Pending}
	if f.Year < 0 {
		filter.Year = latestYear
	}
	if f.Quarters == "" {
		return filter, nil
	}
	for _, part := range strings.Split(f.Quarters, ",") {
		q, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(part)), "Q"))
		if err != nil || q < 1 || q > 4 {
			return filter, fmt.Errorf("invalid quarter %q", part)
		}
		filter.Quarters = append(filter.Quarters, q)
	}
	return filter, nil
}

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Port int
}

// ParseServeFlags parses command line flags for the serve command.
func ParseServeFlags(args []string, output io.Writer) (*ServeFlags, error) {
	flags := &ServeFlags{}
	fs := newFlagSet("serve", output)
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on (0 = configured port)")
	return flags, fs.Parse(args)
}

// IngestFlags holds the flags for the ingest command
type IngestFlags struct {
	Source    ledger.SourceType
	Period    string
	Encoding  string
	Delimiter string
	Files     []string
}

// ParseIngestFlags parses "ingest <invoice|bank> [flags] file..."
func ParseIngestFlags(args []string, output io.Writer) (*IngestFlags, error) {
	if len(args) == 0 {
		return nil, errors.New("ingest: missing source (invoice or bank)")
	}
	source, err := ledger.ParseSourceType(args[0])
	if err != nil {
		return nil, err
	}

	flags := &IngestFlags{Source: source}
	fs := newFlagSet("ingest", output)
	fs.StringVar(&flags.Period, "period", "", "Period the files cover: YYYY or YYYY-Qn")
	fs.StringVar(&flags.Encoding, "encoding", "", "File encoding (default from config)")
	fs.StringVar(&flags.Delimiter, "delimiter", "", `Cell delimiter, "tab" for tabs (default: detect)`)
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	switch flags.Delimiter {
	case "", "tab", `\t`:
	default:
		if utf8.RuneCountInString(flags.Delimiter) != 1 {
			return nil, fmt.Errorf("ingest: invalid delimiter %q", flags.Delimiter)
		}
	}
	flags.Files = fs.Args()
	if len(flags.Files) == 0 {
		return nil, errors.New("ingest: no files given")
	}
	return flags, nil
}

// ParseFilterFlags parses the filter flags shared by auto-match and report
func ParseFilterFlags(name string, args []string, output io.Writer) (*FilterFlags, error) {
	flags := &FilterFlags{}
	fs := newFlagSet(name, output)
	flags.register(fs)
	return flags, fs.Parse(args)
}

// ReportFlags holds the flags for the report command
type ReportFlags struct {
	FilterFlags
	View string
}

// ParseReportFlags parses "report [invoices|bank|resolved] [flags]"
func ParseReportFlags(args []string, output io.Writer) (*ReportFlags, error) {
	flags := &ReportFlags{View: "invoices"}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		flags.View, args = args[0], args[1:]
	}
	switch flags.View {
	case "invoices", "bank", "resolved", "stats":
	default:
		return nil, fmt.Errorf("report: unknown view %q", flags.View)
	}
	fs := newFlagSet("report", output)
	flags.register(fs)
	return flags, fs.Parse(args)
}

// DeleteFlags holds the flags for the delete command
type DeleteFlags struct {
	Yes    bool
	Hashes []string
}

// ParseDeleteFlags parses "delete --yes hash..."
func ParseDeleteFlags(args []string, output io.Writer) (*DeleteFlags, error) {
	flags := &DeleteFlags{}
	fs := newFlagSet("delete", output)
	fs.BoolVar(&flags.Yes, "yes", false, "Confirm deletion of the records and their links")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	flags.Hashes = fs.Args()
	if len(flags.Hashes) == 0 {
		return nil, errors.New("delete: no hashes given")
	}
	return flags, nil
}

// BackupFlags holds the flags for the backup command
type BackupFlags struct {
	Output string
}

// ParseBackupFlags parses "backup [-o file]"; "-" writes to stdout
func ParseBackupFlags(args []string, output io.Writer) (*BackupFlags, error) {
	flags := &BackupFlags{}
	fs := newFlagSet("backup", output)
	fs.StringVar(&flags.Output, "o", "", "Output file (default reconcile-backup-<time>.json, - for stdout)")
	return flags, fs.Parse(args)
}

func newFlagSet(name string, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	return fs
}
