package source

import "errors"

// Sentinel kinds for source errors.
var (
	ErrFetch          = errors.New("fetch upstream dataset")
	ErrUpstreamStatus = errors.New("unexpected upstream status")
	ErrMissingTag     = errors.New("upstream sent neither ETag nor Last-Modified")
	ErrDecode         = errors.New("decode upstream dataset")
)
