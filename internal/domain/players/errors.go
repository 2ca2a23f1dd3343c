package players

import "errors"

// Sentinel kinds for normalization errors.
var (
	ErrUnknownCategory = errors.New("unknown ranking category")
)
