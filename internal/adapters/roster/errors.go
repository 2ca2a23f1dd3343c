package roster

import "errors"

// Sentinel kinds for roster errors.
var (
	ErrDecode = errors.New("decode server list")
	ErrStore  = errors.New("roster store")
)
