package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"raceview/internal/adapters/races"
	"raceview/internal/blob"
	"raceview/internal/config"
	"raceview/internal/core"
	"raceview/internal/infra/source/httpsource"
	"raceview/internal/render"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    blob.Store
	service  *core.Service
	renderer *render.Renderer
	exporter *races.Worker
	handler  *races.Handler
}

func openStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return store, nil
}

func newSource(cfg *config.Config, store blob.Store) core.Source {
	if cfg.Source.Driver == config.SourceHTTP {
		return httpsource.New(cfg.Source.URL, cfg.Source.Timeout)
	}
	return core.NewBlobSource(store, cfg.Source.Key)
}

// newMetrics returns the recorder and, when the driver exposes one, the
// handler to mount at /metrics.
func newMetrics(cfg *config.Config) (core.MetricsRecorder, http.Handler, error) {
	switch cfg.Metrics.Driver {
	case config.MetricsPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, nil, err
		}
		return rec, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
	case config.MetricsExpvar:
		return core.NewExpvarMetricsRecorder(""), expvar.Handler(), nil
	default:
		return nil, nil, nil
	}
}

// newApp wires the service from cfg. withHTTP also builds the handler and
// the export worker.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, withHTTP bool) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	prefs, err := core.OpenPreferenceStore(ctx, cfg.Preferences)
	if err != nil {
		return nil, fmt.Errorf("open preference store: %w", err)
	}
	metrics, metricsHandler, err := newMetrics(cfg)
	if err != nil {
		_ = prefs.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}
	opts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMetrics(metrics),
		core.WithPreferenceStore(prefs),
		core.WithRefreshInterval(cfg.Source.Refresh),
	}
	if cfg.Log.Trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(os.Stderr)))
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		service:  core.NewService(newSource(cfg, store), opts...),
		renderer: render.MustNew(),
	}
	if !withHTTP {
		return a, nil
	}

	handlerOpts := []races.Option{
		races.WithLogger(logger.Named("http")),
		races.WithCacheSize(cfg.HTTP.CacheSize),
		races.WithSecureCookies(cfg.HTTP.SecureCookies),
	}
	if metricsHandler != nil {
		handlerOpts = append(handlerOpts, races.WithMetricsHandler(metricsHandler))
	}
	if cfg.Exports.Enabled {
		a.exporter = races.NewWorker(a.service, store, a.renderer, logger.Named("exports"), cfg.Exports.QueueSize)
		handlerOpts = append(handlerOpts, races.WithExports(a.exporter))
	}
	if a.handler, err = races.NewHandler(a.service, a.renderer, handlerOpts...); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

// Close releases the preference store.
func (a *app) Close() error {
	return a.service.Close()
}
