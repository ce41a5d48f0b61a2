package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/agentpipe/config"
	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/controller"
	"github.com/dshills/agentpipe/graph/emit"
	"github.com/dshills/agentpipe/graph/model"
	"github.com/dshills/agentpipe/graph/store"
)

// app is the wired process: store, controller and observability.
type app struct {
	settings *config.Settings
	logger   *slog.Logger
	store    store.Store
	ctrl     *controller.Controller
	registry *prometheus.Registry
	tracer   *sdktrace.TracerProvider
}

func newApp(ctx context.Context, settings *config.Settings, logOut io.Writer) (*app, error) {
	level, err := settings.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var logger *slog.Logger
	if settings.Debug {
		logger = slog.New(slog.NewTextHandler(logOut, opts))
	} else {
		logger = slog.New(slog.NewJSONHandler(logOut, opts))
	}

	st, err := openStore(settings)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := graph.NewPrometheusMetrics(registry)

	a := &app{settings: settings, logger: logger, store: st, registry: registry}

	ctrlOpts := []controller.Option{
		controller.WithLogger(logger),
		controller.WithMetrics(metrics),
		controller.WithMaxMessages(settings.MaxMessages),
		controller.WithCatalogLocation(settings.CatalogPath, settings.ModelPath),
	}
	switch settings.Trace.Format {
	case config.TraceText:
		ctrlOpts = append(ctrlOpts, controller.WithEmitter(emit.NewLogEmitter(logOut, false)))
	case config.TraceJSON:
		ctrlOpts = append(ctrlOpts, controller.WithEmitter(emit.NewLogEmitter(logOut, true)))
	}
	if settings.Trace.OTel {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(logOut))
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("otel exporter: %w", err)
		}
		// Spans are written to logOut as each one ends.
		a.tracer = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		ctrlOpts = append(ctrlOpts, controller.WithEmitter(emit.NewOTelEmitter(a.tracer.Tracer(settings.AppName))))
	}

	profiler := &model.HardwareProfiler{Profile: settings.HardwareProfile}
	selector := model.NewService(profiler, model.FileCatalog(settings.CatalogPath, settings.ModelPath))

	ctrl, err := controller.New(st, selector, ctrlOpts...)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.ctrl = ctrl
	logger.Debug("pipeline ready", "store", settings.Store.Driver, "catalog", settings.CatalogPath, "profile", selector.HardwareProfile())
	return a, nil
}

func openStore(settings *config.Settings) (store.Store, error) {
	switch settings.Store.Driver {
	case config.DriverMemory:
		return store.NewMemStore(), nil
	case config.DriverSQLite:
		if dir := filepath.Dir(settings.Store.DSN); dir != "." && settings.Store.DSN != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		return store.NewSQLiteStore(settings.Store.DSN)
	case config.DriverMySQL:
		return store.NewMySQLStore(settings.Store.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", settings.Store.Driver)
	}
}

// Serve runs the HTTP API on addr until ctx is done.
func (a *app) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newHandler(a.ctrl, a.settings.AppName, a.registry, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Close flushes the tracer and closes the store.
func (a *app) Close(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close", "error", err)
		}
	}
}
