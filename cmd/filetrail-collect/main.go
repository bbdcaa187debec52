package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/filetrail/filetrail/pkg/config"
	"github.com/filetrail/filetrail/pkg/metrics"
	"github.com/filetrail/filetrail/pkg/pipeline"
	"github.com/filetrail/filetrail/pkg/recorder"
	"github.com/filetrail/filetrail/pkg/resolver"
)

var errPipelineInactive = errors.New("pipeline not active")

func main() {
	configPath := flag.String("config", "/etc/filetrail/config.yaml", "Path to config file")
	volume := flag.String("volume", "", "Single volume to monitor (overrides config)")
	fallback := flag.Bool("fallback", false, "Force synthetic fallback generation on every volume")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	if *volume != "" {
		cfg.Volumes = []string{*volume}
	}
	if len(cfg.Volumes) == 0 {
		slog.Error("at least one volume is required (set in config or via --volume)")
		os.Exit(1)
	}
	if *fallback {
		cfg.Capture.ForceFallback = true
	}

	var res *resolver.Resolver
	if cfg.Capture.StablePaths() {
		res = resolver.New(resolver.NewOSProvider())
	} else {
		res = resolver.New(nil)
	}

	rec, err := recorder.Open(cfg.Recorder, cfg.ProviderID)
	if err != nil {
		slog.Error("failed to open recorder store", "path", cfg.Recorder.Path, "error", err)
		os.Exit(1)
	}
	defer rec.Close()

	p := pipeline.New(cfg, res, rec)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// ── Metrics + Health Server ──────────────────────────────────
	metrics.RegisterHealthCheck("recorder_db", func() error {
		_, err := rec.Statistics()
		return err
	})
	metrics.RegisterHealthCheck("pipeline", func() error {
		if !p.Active() {
			return errPipelineInactive
		}
		return nil
	})

	metricsStop := make(chan struct{})
	if cfg.Metrics.MetricsEnabled() {
		go func() {
			if err := metrics.MetricsServer(cfg.Metrics.Addr, metricsStop); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
		slog.Info("metrics server started", "addr", cfg.Metrics.Addr)
	} else {
		slog.Info("metrics server disabled")
	}
	defer close(metricsStop)

	if err := p.Start(); err != nil {
		slog.Error("failed to start pipeline", "error", err)
		os.Exit(1)
	}
	slog.Info("collector running", "provider_id", cfg.ProviderID, "volumes", cfg.Volumes)

	<-ctx.Done()

	slog.Info("shutting down")
	if err := p.Stop(); err != nil {
		slog.Error("pipeline stop failed", "error", err)
	}
	slog.Info("collector stopped", "captured", p.Count())
}
