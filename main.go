package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"histflow/config"
	"histflow/internal/app"
	"histflow/logger"
)

func main() {
	os.Exit(run())
}

// run fetches every data type for every symbol listed on all batch
// exchanges over the configured window.
func run() int {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	fs := flag.NewFlagSet("histflow", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath, "Path to configuration file")
	outputDir := fs.String("output-dir", "", "Directory for CSV artifacts (default fetch.output_dir)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return app.ExitOK
		}
		return app.ExitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return app.ExitUsage
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return app.ExitFatal
	}
	if *outputDir != "" {
		cfg.Fetch.OutputDir = *outputDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Failed to start")
		return app.ExitFatal
	}
	defer a.Close()

	batch, err := a.Runner.FetchAllCommonSymbols(ctx, cfg.Fetch.OutputDir)
	if err != nil && batch == nil {
		log.WithError(err).Error("batch aborted")
		return app.ExitFatal
	}
	if err != nil {
		log.WithError(err).Warn("batch interrupted")
	}

	fmt.Printf("processed %d of %d symbols: %d succeeded, %d partial, %d failed (%s)\n",
		len(batch.Results), len(batch.Symbols), batch.Succeeded, batch.Partial, batch.Failed, batch.Elapsed.Round(time.Millisecond))
	return app.ExitOK
}
