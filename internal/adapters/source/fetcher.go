// Package source downloads the upstream player dataset and decodes it into
// ranking lists.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/rankindex/pkg/logger"
	"github.com/okian/rankindex/pkg/metrics"
)

const (
	defaultTimeout = 5 * time.Minute
	tagSuffix      = ".tag"
	tempSuffix     = ".tmp"
	filePermission = 0o644
	dirPermission  = 0o755
)

// Status is the outcome of a successful Fetch.
type Status int

const (
	// StatusDownloaded means a new copy replaced the local data file.
	StatusDownloaded Status = iota + 1
	// StatusUpToDate means the cached tag matched and nothing was downloaded.
	StatusUpToDate
)

func (s Status) String() string {
	switch s {
	case StatusDownloaded:
		return metrics.ResultDownloaded
	case StatusUpToDate:
		return metrics.ResultNotModified
	default:
		return "unknown"
	}
}

// Fetcher keeps a local copy of the upstream dataset, downloading it only when
// the upstream validation tag changes.
type Fetcher struct {
	url      string
	dataPath string
	tagPath  string
	client   *http.Client
	logger   logger.Logger
}

// NewFetcher returns a Fetcher that mirrors url into dataPath. The tag is
// cached next to it as dataPath+".tag" unless overridden.
func NewFetcher(url, dataPath string, opts ...Option) *Fetcher {
	f := &Fetcher{
		url:      url,
		dataPath: dataPath,
		tagPath:  dataPath + tagSuffix,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   logger.Get().Named("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DataPath returns the local copy of the dataset.
func (f *Fetcher) DataPath() string { return f.dataPath }

// Fetch compares the upstream tag with the cached one and downloads the
// dataset when they differ or force is set. On any error the data and tag
// files are left as they were.
func (f *Fetcher) Fetch(ctx context.Context, force bool) (Status, error) {
	status, err := f.fetch(ctx, force)
	if err != nil {
		metrics.RecordDownload(metrics.ResultFailed)
		return 0, err
	}
	metrics.RecordDownload(status.String())
	return status, nil
}

func (f *Fetcher) fetch(ctx context.Context, force bool) (Status, error) {
	tag, err := f.head(ctx)
	if err != nil {
		return 0, err
	}

	if !force {
		cached, err := os.ReadFile(f.tagPath)
		switch {
		case err == nil && string(cached) == tag && fileExists(f.dataPath):
			f.logger.Info(ctx, "dataset up to date", logger.String("tag", tag))
			return StatusUpToDate, nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return 0, fmt.Errorf("read tag file: %w", err)
		}
	}

	f.logger.Info(ctx, "downloading dataset", logger.String("url", f.url), logger.String("tag", tag))
	start := time.Now()
	n, err := f.download(ctx)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(f.tagPath, []byte(tag), filePermission); err != nil {
		return 0, fmt.Errorf("write tag file: %w", err)
	}
	metrics.UpdateDownloadBytes(n)
	f.logger.Info(ctx, "dataset downloaded",
		logger.Int64("bytes", n),
		logger.Duration("took", time.Since(start)),
	)
	return StatusDownloaded, nil
}

// head returns the validation tag: ETag, or Last-Modified when absent.
func (f *Fetcher) head(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: HEAD %s: %w", ErrFetch, f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: HEAD %s: %s", ErrUpstreamStatus, f.url, resp.Status)
	}
	tag := strings.TrimSpace(resp.Header.Get("ETag"))
	if tag == "" {
		tag = strings.TrimSpace(resp.Header.Get("Last-Modified"))
	}
	if tag == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingTag, f.url)
	}
	return tag, nil
}

// download streams the body into a temp file and renames it over the data
// file once complete.
func (f *Fetcher) download(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: GET %s: %w", ErrFetch, f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: GET %s: %s", ErrUpstreamStatus, f.url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(f.dataPath), dirPermission); err != nil {
		return 0, fmt.Errorf("create cache directory: %w", err)
	}
	tmp := f.dataPath + tempSuffix
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermission)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(out, resp.Body)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: write body: %w", ErrFetch, err)
	}
	if err := os.Rename(tmp, f.dataPath); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("rename data file: %w", err)
	}
	return n, nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
