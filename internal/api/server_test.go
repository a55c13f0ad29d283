package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-reconciler/internal/api"
	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	appsync "github.com/eshaffer321/ledger-reconciler/internal/application/sync"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/state"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/lock"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/metrics"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

const invoiceCSV = "DATA;TOTAL FACTURA;PROVEEDOR\n" +
	"10/01/2025;100,00;Acme\n" +
	"20/02/2025;250,00;Globex\n" +
	"05/04/2025;75,50;Initech\n"

const bankCSV = "Cuenta;ES00 0000 0000\n" +
	"Saldo;1.000,00\n" +
	"\n" +
	"F. Operativa;Concepto;Importe\n" +
	"11/01/2025;TRANSF ACME;-100,00\n" +
	"02/04/2025;TRANSF GLOBEX;-250,00\n" +
	"06/04/2025;COMISION;-12,00\n" +
	"Total;;-362,00\n"

type testEnv struct {
	server *api.Server
	svc    *service.Service
	repo   *storage.MockRepository
}

func newTestEnv(t *testing.T, cfg api.Config, gate lock.Gate) *testEnv {
	t.Helper()
	repo := storage.NewMockRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mtr := metrics.New()
	syncer := appsync.NewSynchronizer(repo, appsync.Options{BatchSize: 2}, logger, mtr)
	svc := service.NewService(syncer, matcher.NewMatcher(matcher.DefaultConfig()), gate, logger, mtr)
	return &testEnv{
		server: api.NewServer(cfg, svc, mtr, logger),
		svc:    svc,
		repo:   repo,
	}
}

func (e *testEnv) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

// ingest uploads both fixtures and returns record hashes by counterparty.
func (e *testEnv) ingest(t *testing.T) map[string]string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/ingest/invoice", "text/csv", invoiceCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, http.MethodPost, "/api/ingest/bank?period=2025", "text/csv", bankCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	hashes := make(map[string]string)
	for _, r := range e.svc.Snapshot().Invoices {
		hashes[r.Counterparty] = r.Hash
	}
	for _, r := range e.svc.Snapshot().BankMovements {
		hashes[r.Counterparty] = r.Hash
	}
	return hashes
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestServer_HealthEndpoint(t *testing.T) {
	env := newTestEnv(t, api.DefaultConfig(), nil)

	rec := env.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	response := decode[dto.HealthResponse](t, rec)
	assert.Equal(t, "ok", response.Status)
	assert.False(t, response.Loaded)

	_, err := env.svc.Load(context.Background())
	require.NoError(t, err)
	response = decode[dto.HealthResponse](t, env.do(t, http.MethodGet, "/health", "", ""))
	assert.True(t, response.Loaded)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, api.DefaultConfig(), nil)
	env.ingest(t)

	rec := env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reconcile_rows_ingested_total")
	assert.Contains(t, rec.Body.String(), `route="/api/ingest/{source}"`)
}

func TestServer_IngestCSV(t *testing.T) {
	env := newTestEnv(t, api.DefaultConfig(), nil)

	t.Run("invoice register", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/ingest/invoice", "text/csv", invoiceCSV)
		require.Equal(t, http.StatusOK, rec.Code)
		result := decode[appsync.IngestResult](t, rec)
		assert.Equal(t, ledger.SourceInvoice, result.Source)
		assert.Equal(t, 3, result.Read)
		assert.Equal(t, 3, result.Saved)
	})

	t.Run("bank export skips preamble and totals", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/ingest/bank", "text/csv", bankCSV)
		require.Equal(t, http.StatusOK, rec.Code)
		result := decode[appsync.IngestResult](t, rec)
		assert.Equal(t, 3, result.Read)
		assert.Equal(t, 3, result.Saved)
	})

	t.Run("json rows", func(t *testing.T) {
		body := `[{"DATA":"01/07/2025","TOTAL FACTURA":"10,00","PROVEEDOR":"Hooli"}]`
		rec := env.do(t, http.MethodPost, "/api/ingest/invoice?period=2025-Q3", "application/json", body)
		require.Equal(t, http.StatusOK, rec.Code)
		result := decode[appsync.IngestResult](t, rec)
		assert.Equal(t, 1, result.Saved)
		require.NotNil(t, result.PeriodHint)
		assert.Equal(t, 3, result.PeriodHint.Quarter)
	})

	t.Run("unknown source", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/ingest/ledger", "text/csv", invoiceCSV)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad period", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/ingest/invoice?period=Q5", "text/csv", invoiceCSV)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bank file without header", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/ingest/bank", "text/csv", "a;b\n1;2\n")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	assert.Equal(t, 7, env.repo.RecordCount())
}

func TestServer_Views(t *testing.T) {
	env := newTestEnv(t, api.DefaultConfig(), nil)
	h := env.ingest(t)

	rec := env.do(t, http.MethodPost, "/api/auto-match", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	matched := decode[service.AutoMatchResult](t, rec)
	assert.Len(t, matched.Saved, 2)

	t.Run("invoices default to latest year", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/invoices", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[dto.ListResponse[state.InvoiceRow]](t, rec)
		assert.Equal(t, 3, list.Count)
		assert.Equal(t, 2025, list.Filter.Year)
	})

	t.Run("pending invoices", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/invoices?pending=true", "", "")
		list := decode[dto.ListResponse[state.InvoiceRow]](t, rec)
		require.Equal(t, 1, list.Count)
		assert.Equal(t, h["Initech"], list.Items[0].Hash)
	})

	t.Run("quarter filter", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/bank?quarters=Q2", "", "")
		list := decode[dto.ListResponse[state.BankRow]](t, rec)
		assert.Equal(t, 2, list.Count)
	})

	t.Run("empty year yields empty list", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/invoices?year=2019", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"items":[]`)
	})

	t.Run("invalid quarter", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/bank?quarters=5", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("resolved", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/resolved?year=0", "", "")
		list := decode[dto.ListResponse[state.ResolvedItem]](t, rec)
		require.Equal(t, 2, list.Count)
		assert.Equal(t, ledger.KindBankMatch, list.Items[0].Kind)
	})

	t.Run("stats", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/stats", "", "")
		stats := decode[dto.StatsResponse](t, rec)
		assert.Equal(t, 3, stats.Invoices.Total)
		assert.Equal(t, 1, stats.Invoices.Pending)
		assert.Equal(t, 1, stats.Bank.Pending)
	})

	t.Run("status", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/status", "", "")
		status := decode[service.Status](t, rec)
		assert.Equal(t, 3, status.Invoices)
		assert.Equal(t, 2, status.Links)
		assert.Equal(t, 2025, status.LatestYear)
	})

	t.Run("backup", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/backup", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "reconcile-backup-")
		snap := decode[state.Snapshot](t, rec)
		assert.Len(t, snap.Invoices, 3)
		assert.Len(t, snap.Links, 2)
	})
}

func TestServer_Commands(t *testing.T) {
	env := newTestEnv(t, api.DefaultConfig(), nil)
	h := env.ingest(t)

	t.Run("link rejects empty selection", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/links", "application/json",
			`{"invoice_hashes":[],"bank_hash":"`+h["COMISION"]+`"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("link rejects unknown fields", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/links", "application/json", `{"invoice":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("manual link", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/links", "application/json",
			`{"invoice_hashes":["`+h["Acme"]+`"],"bank_hash":"`+h["TRANSF ACME"]+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		result := decode[service.LinkResult](t, rec)
		assert.True(t, result.Balanced)
		assert.Equal(t, 1, env.repo.LinkCount())
	})

	t.Run("used movement conflicts", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/links", "application/json",
			`{"invoice_hashes":["`+h["Initech"]+`"],"bank_hash":"`+h["TRANSF ACME"]+`"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, dto.ErrCodeConflict, decode[dto.APIError](t, rec).Code)
	})

	t.Run("unlink", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/links/"+h["Acme"], "", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = env.do(t, http.MethodDelete, "/api/links/"+h["Acme"], "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cash", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/invoices/"+h["Initech"]+"/cash", "", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		link, ok := env.svc.LinkFor(h["Initech"])
		require.True(t, ok)
		assert.Equal(t, ledger.KindCash, link.Kind)

		rec = env.do(t, http.MethodDelete, "/api/invoices/"+h["Initech"]+"/cash", "", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("exclusion", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/bank/"+h["COMISION"]+"/exclusion", "", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = env.do(t, http.MethodGet, "/api/bank?pending=true&year=0", "", "")
		list := decode[dto.ListResponse[state.BankRow]](t, rec)
		assert.Equal(t, 2, list.Count)

		rec = env.do(t, http.MethodDelete, "/api/bank/"+h["COMISION"]+"/exclusion", "", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("auto-match with filter body", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auto-match", "application/json", `{"quarters":[1]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		result := decode[service.AutoMatchResult](t, rec)
		assert.Equal(t, 2, result.Considered)
		assert.Len(t, result.Saved, 2)
	})

	t.Run("auto-match rejects bad quarter", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auto-match", "application/json", `{"quarters":[7]}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("delete requires confirmation", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/records/delete", "application/json",
			`{"hashes":["`+h["Acme"]+`"]}`)
		assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
		assert.Equal(t, 6, env.repo.RecordCount())
	})

	t.Run("delete cascades to links", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/records/delete", "application/json",
			`{"hashes":["`+h["Acme"]+`","nope"],"confirm":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		result := decode[service.DeleteResult](t, rec)
		assert.Equal(t, 1, result.Records)
		assert.Equal(t, 1, result.Links)
		assert.Equal(t, []string{"nope"}, result.Missing)
		assert.Equal(t, 5, env.repo.RecordCount())
		assert.Equal(t, 1, env.repo.LinkCount())
	})

	t.Run("reload", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/reload", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		summary := decode[service.LoadSummary](t, rec)
		assert.Equal(t, 2, summary.Invoices)
		assert.Equal(t, 3, summary.BankMovements)
	})
}

func TestServer_UnsavedLinksReport207(t *testing.T) {
	env := newTestEnv(t, api.DefaultConfig(), nil)
	env.ingest(t)
	env.repo.FailUpsertLinksOn = map[int]error{1: errors.New("quota exceeded")}

	rec := env.do(t, http.MethodPost, "/api/auto-match", "", "")
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	result := decode[service.AutoMatchResult](t, rec)
	assert.Len(t, result.Unsaved, 2)
	assert.Empty(t, result.Saved)
}

func TestServer_SingleWriteFailureIs503(t *testing.T) {
	env := newTestEnv(t, api.DefaultConfig(), nil)
	h := env.ingest(t)
	env.repo.FailUpsertLinksOn = map[int]error{1: errors.New("quota exceeded")}

	rec := env.do(t, http.MethodPut, "/api/invoices/"+h["Initech"]+"/cash", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, dto.ErrCodeStoreUnavailable, decode[dto.APIError](t, rec).Code)
	_, ok := env.svc.LinkFor(h["Initech"])
	assert.False(t, ok)
}

func TestServer_BusyGate(t *testing.T) {
	gate := lock.NewLocalGate()
	env := newTestEnv(t, api.DefaultConfig(), gate)

	release, err := gate.TryAcquire(context.Background())
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/reload", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, dto.ErrCodeBusy, decode[dto.APIError](t, rec).Code)

	t.Run("views stay available", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/invoices", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		health := decode[dto.HealthResponse](t, env.do(t, http.MethodGet, "/health", "", ""))
		assert.True(t, health.Busy)
	})

	release()
	rec = env.do(t, http.MethodPost, "/api/reload", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RateLimitsCommands(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.RateLimit = 2
	env := newTestEnv(t, cfg, nil)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/reload", "", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/reload", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/api/reload", "", "").Code)

	// views are not limited
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/status", "", "").Code)
}

func TestDefaultConfig(t *testing.T) {
	cfg := api.DefaultConfig()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 60, cfg.RateLimit)
	assert.Equal(t, []string{"F. Operativa", "Concepto"}, cfg.BankCSV.HeaderKeywords)
}
