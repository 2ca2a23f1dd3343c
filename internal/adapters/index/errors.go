package index

import "errors"

// Sentinel kinds for index errors.
var (
	ErrNameTooLong        = errors.New("name longer than 255 bytes")
	ErrPrefixTooLong      = errors.New("prefix longer than 255 bytes")
	ErrTopTooLong         = errors.New("top list longer than 255 entries")
	ErrOffsetOverflow     = errors.New("offset does not fit in 32 bits")
	ErrRecordCount        = errors.New("record count mismatch")
	ErrWriterState        = errors.New("writer used out of order")
	ErrCorrupt            = errors.New("corrupt index file")
	ErrUnsupportedVersion = errors.New("unsupported index version")
	ErrOutOfRange         = errors.New("record index out of range")
)
