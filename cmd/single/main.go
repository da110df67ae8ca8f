// Command single fetches every requested exchange and data type for one
// symbol over a date range.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"histflow/config"
	"histflow/internal/app"
	"histflow/internal/pipeline"
	"histflow/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return app.ExitOK
	}
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintln(stderr, "error:", ue)
		return app.ExitUsage
	}
	if err != nil {
		return app.ExitUsage
	}

	path := opts.Config
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return app.ExitFatal
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.OutputDir != "" {
		cfg.Fetch.OutputDir = opts.OutputDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Failed to start")
		return app.ExitFatal
	}
	defer a.Close()

	_, summary, err := a.Runner.FetchSingleSymbol(ctx, pipeline.SingleRequest{
		Symbol:     opts.Symbol,
		StartDate:  opts.StartDate,
		EndDate:    opts.EndDate,
		Exchanges:  opts.Exchanges,
		DataTypes:  opts.DataTypes,
		Interval:   opts.Interval,
		OutputDir:  cfg.Fetch.OutputDir,
		MaxWorkers: opts.MaxWorkers,
	})
	if pipeline.IsInvalidInput(err) {
		fmt.Fprintln(stderr, "error:", err)
		return app.ExitFatal
	}
	if err != nil {
		log.WithError(err).Warn("run interrupted")
	}
	if summary == nil {
		return app.ExitFatal
	}

	printSummary(stdout, summary)
	return app.ExitOK
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	reqs := append([]pipeline.RequestSummary(nil), s.Requests...)
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Request.Key() < reqs[j].Request.Key() })

	fmt.Fprintf(w, "%s %s (%s)\n", s.Symbol, s.Range, s.Interval)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXCHANGE\tDATA TYPE\tOUTCOME\tROWS\tDETAIL")
	for _, r := range reqs {
		detail := r.Path
		if r.Err != nil {
			detail = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.Request.Exchange, r.Request.DataType, r.Outcome, r.Rows, detail)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d succeeded, %d cached, %d empty, %d failed in %s\n",
		s.Count(pipeline.Succeeded), s.Count(pipeline.Cached), s.Count(pipeline.Empty), s.Count(pipeline.Failed), s.Elapsed.Round(time.Millisecond))
}
