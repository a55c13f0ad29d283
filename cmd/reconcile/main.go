package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/ledger-reconciler/internal/cli"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global, args, err := cli.ParseGlobalFlags(args, os.Stderr)
	if err != nil {
		return 2
	}
	if len(args) == 0 {
		printUsage()
		return 2
	}
	subcommand, subArgs := args[0], args[1:]

	cfg, err := config.LoadOrEnvWithPath(global.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if global.Verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, subcommand)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// serve installs its own signal handling for graceful shutdown
	if subcommand == "serve" {
		stop()
		ctx = context.Background()
	}

	command, err := parse(subcommand, subArgs)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%v\n\n", err)
			printUsage()
		}
		return 2
	}

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return 1
	}
	defer func() { _ = app.Close() }()

	if err := command(ctx, app); err != nil {
		if errors.Is(err, cli.ErrUnsaved) {
			fmt.Fprintln(os.Stderr, err)
			return 3
		}
		logger.Error("Command failed", "command", subcommand, "error", err)
		return 1
	}
	return 0
}

type command func(context.Context, *cli.App) error

func parse(name string, args []string) (command, error) {
	out := os.Stdout
	switch name {
	case "serve":
		flags, err := cli.ParseServeFlags(args, os.Stderr)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, app *cli.App) error { return cli.RunServe(ctx, app, flags) }, nil
	case "status":
		return func(ctx context.Context, app *cli.App) error { return cli.RunStatus(ctx, app, out) }, nil
	case "ingest":
		flags, err := cli.ParseIngestFlags(args, os.Stderr)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, app *cli.App) error { return cli.RunIngest(ctx, app, flags, out) }, nil
	case "auto-match":
		flags, err := cli.ParseFilterFlags(name, args, os.Stderr)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, app *cli.App) error { return cli.RunAutoMatch(ctx, app, flags, out) }, nil
	case "report":
		flags, err := cli.ParseReportFlags(args, os.Stderr)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, app *cli.App) error { return cli.RunReport(ctx, app, flags, out) }, nil
	case "backup":
		flags, err := cli.ParseBackupFlags(args, os.Stderr)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, app *cli.App) error { return cli.RunBackup(ctx, app, flags, out) }, nil
	case "delete":
		flags, err := cli.ParseDeleteFlags(args, os.Stderr)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, app *cli.App) error { return cli.RunDelete(ctx, app, flags, out) }, nil
	default:
		return nil, fmt.Errorf("unknown subcommand: %s", name)
	}
}

func printUsage() {
	fmt.Println("Invoice and bank ledger reconciler")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  reconcile [global options] <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Run the HTTP API")
	fmt.Println("  status                         Load the store and print record counts")
	fmt.Println("  ingest <invoice|bank> file...  Ingest CSV or JSON exports")
	fmt.Println("  auto-match                     Match pending invoices with bank movements")
	fmt.Println("  report [invoices|bank|resolved|stats]")
	fmt.Println("                                 Print a filtered view")
	fmt.Println("  backup [-o file]               Write the whole state as JSON")
	fmt.Println("  delete -yes hash...            Delete records and their links")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  -config string      Configuration file path (default config.yaml)")
	fmt.Println("  -verbose            Enable verbose logging")
}
