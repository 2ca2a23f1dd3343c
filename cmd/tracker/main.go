package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/rankindex/internal/adapters/roster"
	"github.com/okian/rankindex/internal/config"
	"github.com/okian/rankindex/internal/tracker"
	"github.com/okian/rankindex/pkg/logger"
	"github.com/okian/rankindex/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		os.Stderr.WriteString("rankindex-tracker: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rankindex-tracker",
		Usage: "record live server rosters and player skin changes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.BoolFlag{Name: "once", Usage: "poll a single time and exit"},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.Load(ctx, c.String("config"))
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}
	metrics.Init(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithCustomLabels(cfg.MetricsLabels),
		metrics.WithHistogramBuckets(cfg.MetricsBuckets),
	)
	log := logger.Named("tracker")

	if err := os.MkdirAll(filepath.Dir(cfg.TrackerDBPath()), 0o755); err != nil {
		return err
	}
	store, err := roster.Open(ctx, cfg.TrackerDBPath(), roster.WithHistoryLimit(cfg.Tracker.HistoryLimit))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "close store", logger.Error(err))
		}
	}()

	lister := roster.NewHTTPLister(cfg.Tracker.ServersURL, &http.Client{Timeout: cfg.HTTPTimeout})
	poller := tracker.New(lister, store, tracker.WithInterval(cfg.Tracker.Interval))

	if c.Bool("once") {
		err := poller.Poll(ctx)
		writeMetrics(ctx, log, cfg.MetricsTextfile)
		return err
	}

	go poller.Run(ctx)
	log.Info(ctx, "tracking", logger.String("db", cfg.TrackerDBPath()), logger.String("servers_url", cfg.Tracker.ServersURL))

	<-ctx.Done()
	log.Info(context.Background(), "shutting down tracker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := poller.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "tracker shutdown failed", logger.Error(err))
	}
	writeMetrics(shutdownCtx, log, cfg.MetricsTextfile)
	return nil
}

func writeMetrics(ctx context.Context, log logger.Logger, path string) {
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path); err != nil {
		log.Warn(ctx, "metrics textfile not written", logger.Error(err))
	}
}
