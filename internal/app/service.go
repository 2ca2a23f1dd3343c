// Package service orchestrates one index build: fetch, decode, normalize,
// then a single pass that writes records and accumulates the prefix cache.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rankindex/internal/adapters/index"
	"github.com/okian/rankindex/internal/adapters/source"
	"github.com/okian/rankindex/internal/domain/model"
	"github.com/okian/rankindex/internal/domain/players"
	"github.com/okian/rankindex/internal/domain/prefix"
	"github.com/okian/rankindex/pkg/logger"
	"github.com/okian/rankindex/pkg/metrics"
)

// Fetcher refreshes the local dataset copy.
type Fetcher interface {
	Fetch(ctx context.Context, force bool) (source.Status, error)
}

// RunOptions mirror the command line flags.
type RunOptions struct {
	// ForceGen rebuilds even when the dataset did not change.
	ForceGen bool
	// ForceDownload ignores the cached validation tag.
	ForceDownload bool
	// SkipDownload uses the local dataset as is and implies ForceGen.
	SkipDownload bool
}

// Report describes a finished run.
type Report struct {
	RunID     string
	Skipped   bool
	Download  source.Status
	Records   int
	Aggregate uint32
	Prefixes  int
	Bytes     int64
	Prefix    prefix.Stats
	Duration  time.Duration
}

// Service builds the index from a local dataset into a published file.
type Service struct {
	fetcher    Fetcher
	dataPath   string
	outputPath string

	prefixOpts      []prefix.Option
	metricsTextfile string

	logger logger.Logger
}

// New constructs a Service reading dataPath and publishing to outputPath.
func New(dataPath, outputPath string, opts ...Option) *Service {
	s := &Service{
		dataPath:   dataPath,
		outputPath: outputPath,
		logger:     logger.Get().Named("builder"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one complete run. A failure at any stage leaves the previously
// published index untouched.
func (s *Service) Run(ctx context.Context, opts RunOptions) (Report, error) {
	rep := Report{RunID: uuid.NewString()}
	log := s.logger.With(logger.String("run_id", rep.RunID))
	defer s.dumpMetrics(ctx, log)

	force := opts.ForceGen || opts.SkipDownload
	if !opts.SkipDownload {
		if s.fetcher == nil {
			metrics.RecordBuildFailure(stageFetch)
			return rep, ErrNoFetcher
		}
		status, err := s.fetcher.Fetch(ctx, opts.ForceDownload)
		if err != nil {
			metrics.RecordBuildFailure(stageFetch)
			log.Error(ctx, "fetch failed", logger.Error(err))
			return rep, fmt.Errorf("%s: %w", stageFetch, err)
		}
		rep.Download = status
		if status == source.StatusUpToDate && !force && fileExists(s.outputPath) {
			rep.Skipped = true
			metrics.RecordBuild(metrics.ResultSkipped)
			log.Info(ctx, "dataset unchanged, skipping build", logger.String("output", s.outputPath))
			return rep, nil
		}
	}

	log.Info(ctx, "decoding dataset", logger.String("path", s.dataPath))
	ds, err := source.DecodeFile(s.dataPath)
	if err != nil {
		metrics.RecordBuildFailure(stageDecode)
		log.Error(ctx, "decode failed", logger.Error(err))
		return rep, fmt.Errorf("%s: %w", stageDecode, err)
	}

	built, err := s.build(ctx, log, ds)
	if err != nil {
		return rep, err
	}
	built.RunID = rep.RunID
	built.Download = rep.Download
	return built, nil
}

// Build normalizes ds and publishes the index. It is Run without the fetch
// and decode stages.
func (s *Service) Build(ctx context.Context, ds model.Dataset) (Report, error) {
	rep := Report{RunID: uuid.NewString()}
	built, err := s.build(ctx, s.logger.With(logger.String("run_id", rep.RunID)), ds)
	if err != nil {
		return rep, err
	}
	built.RunID = rep.RunID
	return built, nil
}

func (s *Service) build(ctx context.Context, log logger.Logger, ds model.Dataset) (Report, error) {
	start := time.Now()

	recs, err := players.Normalize(ds)
	if err != nil {
		metrics.RecordBuildFailure(stageNormalize)
		log.Error(ctx, "normalize failed", logger.Error(err))
		return Report{}, fmt.Errorf("%s: %w", stageNormalize, err)
	}
	log.Info(ctx, "records normalized", logger.Int("records", len(recs)))

	rep, err := s.publish(recs, ds.Aggregate)
	if err != nil {
		log.Error(ctx, "build failed", logger.Error(err))
		return Report{}, err
	}
	rep.Duration = time.Since(start)

	metrics.RecordBuild(metrics.ResultPublished)
	metrics.RecordBuildDuration(rep.Duration.Seconds())
	metrics.RecordPrefixPass(rep.Prefix.Evicted, rep.Prefix.PeakLive)
	metrics.UpdateIndexStats(rep.Records, rep.Aggregate, rep.Prefixes, rep.Bytes, time.Now().Unix())

	log.Info(ctx, "index published",
		logger.String("output", s.outputPath),
		logger.Int("records", rep.Records),
		logger.Uint32("aggregate", rep.Aggregate),
		logger.Int("prefixes", rep.Prefixes),
		logger.Int("evicted", rep.Prefix.Evicted),
		logger.Int("peak_live", rep.Prefix.PeakLive),
		logger.Int64("bytes", rep.Bytes),
		logger.Duration("took", rep.Duration),
	)
	return rep, nil
}

// publish streams the sorted records through the writer and the prefix
// builder together, then commits the file.
func (s *Service) publish(recs []model.PlayerRecord, aggregate uint32) (rep Report, err error) {
	f, err := index.Create(s.outputPath)
	if err != nil {
		metrics.RecordBuildFailure(stageWrite)
		return Report{}, fmt.Errorf("%s: %w", stageWrite, err)
	}
	defer func() {
		if err != nil {
			_ = f.Abort()
		}
	}()

	w, err := index.NewWriter(f, aggregate, len(recs))
	if err != nil {
		metrics.RecordBuildFailure(stageWrite)
		return Report{}, fmt.Errorf("%s: %w", stageWrite, err)
	}
	pb := prefix.New(s.prefixOpts...)
	for i := range recs {
		if err := w.WriteRecord(&recs[i]); err != nil {
			metrics.RecordBuildFailure(stageWrite)
			return Report{}, fmt.Errorf("%s: record %d: %w", stageWrite, i, err)
		}
		pb.Observe(&recs[i])
	}

	entries := pb.Finish()
	cache := make([]index.CacheEntry, len(entries))
	for i, e := range entries {
		cache[i] = index.CacheEntry{Prefix: e.Prefix, Top: e.Top}
	}
	if err := w.WriteCache(cache); err != nil {
		metrics.RecordBuildFailure(stageWrite)
		return Report{}, fmt.Errorf("%s: %w", stageWrite, err)
	}
	if err := w.Close(); err != nil {
		metrics.RecordBuildFailure(stageWrite)
		return Report{}, fmt.Errorf("%s: %w", stageWrite, err)
	}
	if err := f.Commit(); err != nil {
		metrics.RecordBuildFailure(stagePublish)
		return Report{}, fmt.Errorf("%s: %w", stagePublish, err)
	}

	return Report{
		Records:   len(recs),
		Aggregate: aggregate,
		Prefixes:  len(cache),
		Bytes:     w.Size(),
		Prefix:    pb.Stats(),
	}, nil
}

func (s *Service) dumpMetrics(ctx context.Context, log logger.Logger) {
	if s.metricsTextfile == "" {
		return
	}
	if err := metrics.WriteTextfile(s.metricsTextfile); err != nil {
		log.Warn(ctx, "metrics textfile not written", logger.Error(err))
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
