// Package index reads and writes the ranked-leaderboard index file.
//
// Layout, little-endian throughout:
//
//	0   version            u32
//	4   aggregate          u32
//	8   record count N     u32
//	12  cache offset       u32
//	16  pointer table      N x u32, absolute record offsets
//	..  records            u8 name len, name, 12 uvarints (value, position per category)
//	..  prefix cache       u32 count, then per entry:
//	                       u8 prefix len, prefix, u8 top len,
//	                       top len x (u8 name len, name, uvarint value)
//
// Records are stored in sort key order, so the pointer table supports both
// positional access and binary search by key.
package index

import "github.com/okian/rankindex/internal/domain/model"

// Format constants.
const (
	Version       = 1
	HeaderSize    = 16
	pointerSize   = 4
	maxShortLen   = 255
	cacheOffsetAt = 12
)

// Header is the fixed-size file header.
type Header struct {
	Version     uint32
	Aggregate   uint32
	Count       uint32
	CacheOffset uint32
}

// CacheEntry is one prefix and its top list as stored in the cache section.
type CacheEntry struct {
	Prefix string
	Top    []model.TopEntry
}

// recordsStart is the offset of the first record for n records.
func recordsStart(n uint32) int64 {
	return HeaderSize + int64(n)*pointerSize
}
