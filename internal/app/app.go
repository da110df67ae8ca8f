// Package app wires configuration into a ready pipeline.Runner and the
// ambient services both entry points share.
package app

import (
	"context"
	"fmt"

	"histflow/config"
	"histflow/internal/metrics"
	"histflow/internal/pipeline"
	"histflow/logger"
	"histflow/writer"
)

// Exit codes of the entry points.
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)

type App struct {
	Config *config.Config
	Runner *pipeline.Runner
	Log    *logger.Log
}

// New configures logging, starts the optional metrics endpoint and
// CloudWatch publisher, builds the optional S3 uploader and returns the
// runner. Background services stop with ctx.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.GetLogger()
	lc := cfg.Logging
	if err := log.Configure(lc.Level, lc.Format, lc.Output, lc.MaxAge); err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}

	log.WithEnv("APP_ENV", "LOG_LEVEL").WithFields(logger.Fields{
		"service":     cfg.Histflow.Name,
		"version":     cfg.Histflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting histflow")

	if cw := cfg.Metrics.CloudWatch; cw.Enabled {
		logger.InitCloudWatch(ctx, cw.Region, cw.Namespace, cw.Dashboard)
	}

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				log.WithComponent("metrics").WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}

	var uploader *writer.Uploader
	if cfg.Storage.S3.Enabled {
		var err error
		uploader, err = writer.NewUploader(ctx, cfg.Storage.S3, cfg.Histflow.Version)
		if err != nil {
			return nil, fmt.Errorf("create s3 uploader: %w", err)
		}
	} else {
		log.WithComponent("main").Debug("S3 storage disabled; artifacts stay local")
	}

	runner := pipeline.NewRunner(cfg, pipeline.NewFetchers(cfg), writer.New(cfg.Writer, uploader))
	logger.StartReport(ctx, log, cfg.Batch.ReportInterval)

	return &App{Config: cfg, Runner: runner, Log: log}, nil
}

// Close logs the final run report.
func (a *App) Close() {
	logger.LogReport(a.Log)
}
