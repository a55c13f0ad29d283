package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/ledger-reconciler/internal/api"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	appsync "github.com/eshaffer321/ledger-reconciler/internal/application/sync"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/lock"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/metrics"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

// App is the wired application: store, gate and service over one config.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   storage.Repository
	Metrics *metrics.Metrics
	Service *service.Service

	redis *redis.Client
}

// NewApp opens the configured store and gate and builds the service. The
// state is empty until Load is called.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Store: store, Metrics: metrics.New()}

	gate, err := app.openGate(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	syncer := appsync.NewSynchronizer(store, SyncOptions(cfg), logger.With("component", "sync"), app.Metrics)
	m := matcher.NewMatcher(matcher.Config{AmountTolerance: cfg.Reconciliation.AmountTolerance})
	app.Service = service.NewService(syncer, m, gate, logger, app.Metrics)
	return app, nil
}

// OpenStore opens the record store selected by cfg.Driver and migrates it.
func OpenStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Repository, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := storage.NewPostgresStorage(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite", "":
		store, err := storage.NewStorageWithLogger(cfg.DatabasePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (a *App) openGate(ctx context.Context) (lock.Gate, error) {
	if a.Config.Lock.Driver != "redis" {
		return lock.NewLocalGate(), nil
	}
	client, err := lock.DialRedis(ctx, a.Config.Lock.RedisAddr)
	if err != nil {
		return nil, err
	}
	a.redis = client
	return lock.NewRedisGate(client, a.Config.Lock.Key, a.Config.Lock.TTL), nil
}

// Close releases the store and the redis connection
func (a *App) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return a.Store.Close()
}

// SyncOptions maps the sync and column settings onto the synchronizer.
func SyncOptions(cfg *config.Config) appsync.Options {
	return appsync.Options{
		PageSize:       cfg.Sync.PageSize,
		BatchSize:      cfg.Sync.BatchSize,
		BatchDelay:     cfg.Sync.BatchDelay,
		MaxRetries:     cfg.Sync.MaxRetries,
		RetryBackoff:   cfg.Sync.RetryBackoff,
		InvoiceColumns: cfg.Columns.Invoice,
		BankColumns:    cfg.Columns.Bank,
	}
}

// CSVOptions returns the configured reader options for a source.
func CSVOptions(cfg *config.Config, source ledger.SourceType) ingest.CSVOptions {
	opts := ingest.InvoiceCSVOptions()
	if source == ledger.SourceBank {
		cols := cfg.Columns.Bank
		if cols == (ledger.Columns{}) {
			cols = ledger.DefaultBankColumns()
		}
		opts = ingest.BankCSVOptions(cols)
	}
	opts.Encoding = cfg.Ingest.Encoding
	opts.Delimiter = cfg.Ingest.DelimiterRune()
	return opts
}

// APIConfig maps the API settings onto the server.
func APIConfig(cfg *config.Config, port int) api.Config {
	apiCfg := api.Config{
		Port:           cfg.API.Port,
		AllowedOrigins: cfg.API.AllowedOrigins,
		RateLimit:      cfg.API.RateLimit,
		InvoiceCSV:     CSVOptions(cfg, ledger.SourceInvoice),
		BankCSV:        CSVOptions(cfg, ledger.SourceBank),
	}
	if port > 0 {
		apiCfg.Port = port
	}
	return apiCfg
}
