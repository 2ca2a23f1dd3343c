package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/okian/rankindex/internal/domain/model"
)

// Reader gives random access to a published index. It is safe for concurrent
// use once opened.
type Reader struct {
	data   []byte
	header Header
	cache  map[string][]model.TopEntry
	keys   []string
	unmap  func() error
}

// Open maps the index at path and validates its structure.
func Open(path string) (*Reader, error) {
	data, unmap, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(data)
	if err != nil {
		_ = unmap()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.unmap = unmap
	return r, nil
}

// NewReader validates data and parses its prefix cache. data must not be
// modified while the Reader is in use.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	h := Header{
		Version:     binary.LittleEndian.Uint32(data[0:]),
		Aggregate:   binary.LittleEndian.Uint32(data[4:]),
		Count:       binary.LittleEndian.Uint32(data[8:]),
		CacheOffset: binary.LittleEndian.Uint32(data[cacheOffsetAt:]),
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	start := recordsStart(h.Count)
	if start > int64(len(data)) || int64(h.CacheOffset) < start || int64(h.CacheOffset)+4 > int64(len(data)) {
		return nil, fmt.Errorf("%w: header %+v for %d bytes", ErrCorrupt, h, len(data))
	}

	r := &Reader{data: data, header: h}
	for i := uint32(0); i < h.Count; i++ {
		p := r.pointer(int(i))
		if int64(p) < start || p >= h.CacheOffset {
			return nil, fmt.Errorf("%w: pointer %d = %d outside records", ErrCorrupt, i, p)
		}
	}
	if err := r.parseCache(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the mapping. The Reader must not be used afterwards.
func (r *Reader) Close() error {
	if r.unmap == nil {
		return nil
	}
	err := r.unmap()
	r.unmap = nil
	r.data = nil
	return err
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.header }

// Len returns the number of records.
func (r *Reader) Len() int { return int(r.header.Count) }

// Aggregate returns the dataset-wide aggregate stored in the header.
func (r *Reader) Aggregate() uint32 { return r.header.Aggregate }

// Record decodes the i-th record in sort order.
func (r *Reader) Record(i int) (model.PlayerRecord, error) {
	if i < 0 || i >= r.Len() {
		return model.PlayerRecord{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, r.Len())
	}
	off := int(r.pointer(i))
	name, off, err := r.shortString(off, int(r.header.CacheOffset))
	if err != nil {
		return model.PlayerRecord{}, fmt.Errorf("record %d: %w", i, err)
	}
	rec := model.PlayerRecord{DisplayName: name}
	for c := range rec.Ranks {
		var v, p uint32
		if v, off, err = r.uvarint32(off, int(r.header.CacheOffset)); err != nil {
			return model.PlayerRecord{}, fmt.Errorf("record %d: %w", i, err)
		}
		if p, off, err = r.uvarint32(off, int(r.header.CacheOffset)); err != nil {
			return model.PlayerRecord{}, fmt.Errorf("record %d: %w", i, err)
		}
		rec.Ranks[c] = model.RankInfo{Value: v, Position: p}
	}
	rec.SortKey = cases.Lower(language.Und).String(name)
	return rec, nil
}

// Name returns only the display name of the i-th record.
func (r *Reader) Name(i int) (string, error) {
	if i < 0 || i >= r.Len() {
		return "", fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, r.Len())
	}
	name, _, err := r.shortString(int(r.pointer(i)), int(r.header.CacheOffset))
	return name, err
}

// Find returns the position of the first record whose sort key equals the
// lowercase form of name. If there is none, it returns the insertion point
// and false.
func (r *Reader) Find(name string) (int, bool) {
	lower := cases.Lower(language.Und)
	key := lower.String(name)
	keyAt := func(i int) string {
		n, _ := r.Name(i)
		return lower.String(n)
	}
	i := sort.Search(r.Len(), func(i int) bool { return keyAt(i) >= key })
	return i, i < r.Len() && keyAt(i) == key
}

// Top returns the cached top list for prefix. The prefix is matched against
// lowercase keys, so it is lowercased first.
func (r *Reader) Top(prefix string) ([]model.TopEntry, bool) {
	top, ok := r.cache[cases.Lower(language.Und).String(prefix)]
	return top, ok
}

// Prefixes returns the cached prefixes in file order.
func (r *Reader) Prefixes() []string {
	return append([]string(nil), r.keys...)
}

func (r *Reader) pointer(i int) uint32 {
	return binary.LittleEndian.Uint32(r.data[HeaderSize+i*pointerSize:])
}

func (r *Reader) parseCache() error {
	off := int(r.header.CacheOffset)
	end := len(r.data)
	n := binary.LittleEndian.Uint32(r.data[off:])
	off += 4

	r.cache = make(map[string][]model.TopEntry, n)
	r.keys = make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		prefix, next, err := r.shortString(off, end)
		if err != nil {
			return fmt.Errorf("cache entry %d: %w", i, err)
		}
		if next >= end {
			return fmt.Errorf("%w: cache entry %d truncated", ErrCorrupt, i)
		}
		size := int(r.data[next])
		off = next + 1

		top := make([]model.TopEntry, size)
		for j := range top {
			if top[j].Name, off, err = r.shortString(off, end); err != nil {
				return fmt.Errorf("cache entry %q: %w", prefix, err)
			}
			if top[j].Value, off, err = r.uvarint32(off, end); err != nil {
				return fmt.Errorf("cache entry %q: %w", prefix, err)
			}
		}
		if _, dup := r.cache[prefix]; dup {
			return fmt.Errorf("%w: duplicate prefix %q", ErrCorrupt, prefix)
		}
		r.cache[prefix] = top
		r.keys = append(r.keys, prefix)
	}
	if off != end {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, end-off)
	}
	return nil
}

// shortString decodes a u8 length-prefixed string that must end before end.
func (r *Reader) shortString(off, end int) (string, int, error) {
	if off >= end {
		return "", off, fmt.Errorf("%w: string at %d past %d", ErrCorrupt, off, end)
	}
	n := int(r.data[off])
	off++
	if off+n > end {
		return "", off, fmt.Errorf("%w: string of %d at %d past %d", ErrCorrupt, n, off, end)
	}
	return strings.Clone(string(r.data[off : off+n])), off + n, nil
}

func (r *Reader) uvarint32(off, end int) (uint32, int, error) {
	if off >= end {
		return 0, off, fmt.Errorf("%w: varint at %d past %d", ErrCorrupt, off, end)
	}
	v, n := binary.Uvarint(r.data[off:end])
	if n <= 0 || v > math.MaxUint32 {
		return 0, off, fmt.Errorf("%w: bad varint at %d", ErrCorrupt, off)
	}
	return uint32(v), off + n, nil
}

// Version returns the format version stored in the header.
func (r *Reader) Version() uint32 { return r.header.Version }
