package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crosswalk/internal/blob"
	"crosswalk/internal/config"
	"crosswalk/internal/core"
	"crosswalk/internal/export"
	"crosswalk/internal/source"
	"crosswalk/pkg/domain"
)

// Source kinds accepted by --source.
const (
	sourceLive  = "live"
	sourceStore = "store"
	sourceFile  = "file"
)

// app holds what the subcommands share. setup fills it once per invocation.
type app struct {
	stdout, stderr io.Writer

	configPath string
	logFormat  string
	logLevel   string

	cfg      config.Config
	logger   *slog.Logger
	blobs    blob.Store
	registry *prometheus.Registry
	expvars  *core.ExpvarMetricsRecorder
	svc      *core.Service
	closers  []func() error
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return usageError{err}
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}
	a.cfg = cfg
	a.logger = cfg.Log.NewLogger(a.stderr)

	a.blobs, err = blob.OpenDriver(ctx, blob.Driver(cfg.Blob.Driver), cfg.Blob.FSRoot)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	opts := []core.ServiceOption{
		core.WithLogger(a.logger),
		core.WithAuditRecorder(auditLog{logger: a.logger}),
		core.WithExporter(export.New(a.blobs)),
	}
	switch cfg.Metrics.Backend {
	case "prometheus":
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(a.registry)))
	case "expvar":
		a.expvars = core.NewExpvarMetricsRecorder("")
		opts = append(opts, core.WithMetricsRecorder(a.expvars))
	}
	switch cfg.Metrics.Tracing {
	case "json":
		opts = append(opts, core.WithTracer(core.NewJSONTracer(a.stderr)))
	case "otel":
		opts = append(opts, core.WithTracer(core.NewOTelTracer(nil)))
	}
	a.svc = core.NewService(opts...)
	return nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) openRecordStore(ctx context.Context) (domain.RecordStore, error) {
	store, err := core.OpenRecordStoreWith(ctx, core.StorageConfig{
		Driver:      core.StorageDriver(a.cfg.Storage.Driver),
		SQLitePath:  a.cfg.Storage.SQLitePath,
		PostgresDSN: a.cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// sourceFlags are shared by every command that reads the register.
type sourceFlags struct {
	kind          string
	mutationsFile string
	rosterFile    string
}

func (a *app) source(ctx context.Context, f sourceFlags) (source.Source, error) {
	switch f.kind {
	case "", sourceLive:
		return a.liveSource(), nil
	case sourceStore:
		store, err := a.openRecordStore(ctx)
		if err != nil {
			return nil, err
		}
		return source.NewStoreSource(store, a.logger), nil
	case sourceFile:
		if f.mutationsFile == "" {
			return nil, usageError{errors.New("--mutations-file is required with --source file")}
		}
		return source.FileSource{MutationsPath: f.mutationsFile, RosterPath: f.rosterFile}, nil
	default:
		return nil, usageError{fmt.Errorf("unknown source %q (want live, store or file)", f.kind)}
	}
}

func (a *app) liveSource() source.Source {
	client := source.NewBFSClient(
		source.WithBaseURL(a.cfg.Source.BaseURL),
		source.WithHTTPClient(&http.Client{Timeout: a.cfg.Source.Timeout}),
	)
	if !a.cfg.Source.Archive {
		return source.NewLiveSource(client, nil, a.logger)
	}
	archive := source.NewArchive(a.blobs)
	return source.NewFallbackSource(source.NewLiveSource(client, archive, a.logger), archive, a.logger)
}

func (a *app) metricsHandler() http.Handler {
	switch {
	case a.registry != nil:
		return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
	case a.expvars != nil:
		return expvar.Handler()
	default:
		return nil
	}
}

// auditLog writes audit entries to the debug log.
type auditLog struct {
	logger *slog.Logger
}

func (l auditLog) Record(ctx context.Context, e core.AuditEntry) {
	l.logger.DebugContext(ctx, "audit",
		"id", e.ID, "operation", e.Operation, "source", e.Source, "subject", e.Subject,
		"status", string(e.Status), "rows", e.Rows, "duration", e.Duration, "error", e.Error)
}
