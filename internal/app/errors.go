package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNoFetcher = errors.New("download requested without a fetcher")
)

// Build stages used in failure metrics and errors.
const (
	stageFetch     = "fetch"
	stageDecode    = "decode"
	stageNormalize = "normalize"
	stageWrite     = "write"
	stagePublish   = "publish"
)
