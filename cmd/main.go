package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sugawarayuuta/sonnet"
	"github.com/urfave/cli/v2"

	"github.com/okian/rankindex/internal/adapters/index"
	"github.com/okian/rankindex/internal/adapters/source"
	app "github.com/okian/rankindex/internal/app"
	"github.com/okian/rankindex/internal/config"
	"github.com/okian/rankindex/internal/domain/prefix"
	"github.com/okian/rankindex/internal/domain/types"
	"github.com/okian/rankindex/pkg/logger"
	"github.com/okian/rankindex/pkg/metrics"
)

const configKey = "config"

// errNotFound is returned by lookup when the requested name or prefix is absent.
var errNotFound = errors.New("not found")

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		os.Stderr.WriteString("rankindex: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "rankindex",
		Usage:     "build the ranked leaderboard index from the upstream player dataset",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.BoolFlag{Name: "force-gen", Usage: "rebuild even if the dataset is unchanged"},
			&cli.BoolFlag{Name: "force-download", Usage: "download even if the cached tag matches"},
			&cli.BoolFlag{Name: "skip-download", Usage: "use the local dataset as is; implies --force-gen"},
		},
		Before: func(c *cli.Context) error {
			return setup(c, stderr)
		},
		Action: build,
		Commands: []*cli.Command{
			lookupCommand(),
		},
	}
}

// setup loads configuration and initializes logging for every command.
func setup(c *cli.Context, stderr io.Writer) error {
	cfg, err := config.Load(c.Context, c.String("config"))
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithWriter(stderr), logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(c.Context, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	metrics.Init(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithCustomLabels(cfg.MetricsLabels),
		metrics.WithHistogramBuckets(cfg.MetricsBuckets),
	)
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	cfg, _ := c.App.Metadata[configKey].(*config.Config)
	if cfg == nil {
		cfg = config.New()
	}
	return cfg
}

func build(c *cli.Context) error {
	cfg := loadedConfig(c)
	ctx := c.Context

	fetcher := source.NewFetcher(cfg.SourceURL, cfg.DataPath(),
		source.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	)
	svc := app.New(cfg.DataPath(), cfg.OutputPath(),
		app.WithFetcher(fetcher),
		app.WithMetricsTextfile(cfg.MetricsTextfile),
		app.WithPrefixOptions(
			prefix.WithThreshold(cfg.PopularityThreshold),
			prefix.WithTopSize(cfg.TopSize),
			prefix.WithCommonPrefixes(cfg.CommonPrefixes),
			prefix.WithLiteralExtensions(cfg.LiteralExtensions),
		),
	)

	_, err := svc.Run(ctx, app.RunOptions{
		ForceGen:      c.Bool("force-gen"),
		ForceDownload: c.Bool("force-download"),
		SkipDownload:  c.Bool("skip-download"),
	})
	return err
}

func lookupCommand() *cli.Command {
	return &cli.Command{
		Name:  "lookup",
		Usage: "inspect a published index; prints JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "index file (default: configured output)"},
			&cli.StringFlag{Name: "name", Usage: "print the record for a player name (case-insensitive)"},
			&cli.StringFlag{Name: "prefix", Usage: "print the cached top list for a prefix"},
			&cli.IntFlag{Name: "index", Value: -1, Usage: "print the record at a sorted position"},
		},
		Action: lookup,
	}
}

func lookup(c *cli.Context) error {
	path := c.String("file")
	if path == "" {
		path = loadedConfig(c).OutputPath()
	}
	r, err := index.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	var out any
	switch {
	case c.IsSet("name"):
		i, ok := r.Find(c.String("name"))
		if !ok {
			return fmt.Errorf("name %q: %w", c.String("name"), errNotFound)
		}
		rec, err := r.Record(i)
		if err != nil {
			return err
		}
		out = types.FromRecord(i, rec)
	case c.IsSet("prefix"):
		top, ok := r.Top(c.String("prefix"))
		if !ok {
			return fmt.Errorf("prefix %q: %w", c.String("prefix"), errNotFound)
		}
		out = types.FromTop(c.String("prefix"), top)
	case c.Int("index") >= 0:
		rec, err := r.Record(c.Int("index"))
		if err != nil {
			return err
		}
		out = types.FromRecord(c.Int("index"), rec)
	default:
		out = types.Summary{
			Path:      path,
			Version:   r.Version(),
			Aggregate: r.Aggregate(),
			Records:   r.Len(),
			Prefixes:  len(r.Prefixes()),
		}
	}

	b, err := sonnet.Marshal(out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(b))
	return err
}
