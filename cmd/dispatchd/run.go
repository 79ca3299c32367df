package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Swind/go-dispatch/core"
	"github.com/Swind/go-dispatch/internal/config"
	"github.com/Swind/go-dispatch/internal/demo"
	obs "github.com/Swind/go-dispatch/observability/prometheus"
)

func runDaemon(parent context.Context, cfg config.Config, once bool) error {
	if parent == nil {
		parent = context.Background()
	}
	zl, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	restore := zap.ReplaceGlobals(zl)
	defer restore()

	logger := core.NewZapLogger(zl).Named("dispatchd")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics core.Metrics
	var poller *obs.SnapshotPoller
	var server *http.Server
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		metrics = exporter

		poller, err = obs.NewSnapshotPoller(reg, cfg.Metrics.PollInterval)
		if err != nil {
			return fmt.Errorf("snapshot poller: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", core.F("error", err))
			}
		}()
		logger.Info("serving metrics", core.F("addr", ln.Addr().String()), core.F("path", cfg.Metrics.Path))
	}

	d := core.NewDispatcher(cfg.DispatcherConfig(logger.Named("core"), metrics))
	pipeline := demo.NewPipeline(d, logger.Named("demo"))
	if poller != nil {
		poller.AddDispatcher(d.Name(), d)
		for _, q := range []*core.Queue{pipeline.Parse, pipeline.Square, pipeline.Sum} {
			poller.AddQueue(q.Name(), q)
		}
		poller.Start(ctx)
	}
	ticker := demo.StartTicker(d, logger.Named("ticker"), cfg.Demo.TickEvery)

	logger.Info("dispatcher running",
		core.F("dispatcher", d.Name()),
		core.F("max_workers", cfg.Dispatcher.MaxWorkers),
		core.F("version", version))

	if _, err := pipeline.Run(ctx, cfg.Demo.Producers, cfg.Demo.Items); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("demo run failed", core.F("error", err))
	}
	if !once {
		<-ctx.Done()
	}

	logger.Info("shutting down", core.F("ticks", ticker.Ticks()))
	d.Stop()
	d.Join()
	if poller != nil {
		poller.Stop()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
	}
	return nil
}
