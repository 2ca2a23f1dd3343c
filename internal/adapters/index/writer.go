package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/okian/rankindex/internal/domain/model"
)

const writeBufferSize = 1 << 20

type writerState int

const (
	stateRecords writerState = iota
	stateCache
	stateClosed
)

// Writer emits an index in two passes over one seekable output: records and
// the cache are streamed forward, then Close seeks back to fill in the cache
// offset and the pointer table.
type Writer struct {
	out    io.WriteSeeker
	bw     *bufio.Writer
	pos    int64
	header Header

	pointers []uint32
	state    writerState
	scratch  []byte
}

// NewWriter writes the header and a zeroed pointer table for count records.
func NewWriter(out io.WriteSeeker, aggregate uint32, count int) (*Writer, error) {
	if count < 0 || uint64(count) > math.MaxUint32 || recordsStart(uint32(count)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d records", ErrOffsetOverflow, count)
	}
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek start: %w", err)
	}
	w := &Writer{
		out: out,
		bw:  bufio.NewWriterSize(out, writeBufferSize),
		header: Header{
			Version:   Version,
			Aggregate: aggregate,
			Count:     uint32(count),
		},
		pointers: make([]uint32, 0, count),
		scratch:  make([]byte, 0, 64),
	}

	hdr := binary.LittleEndian.AppendUint32(nil, w.header.Version)
	hdr = binary.LittleEndian.AppendUint32(hdr, w.header.Aggregate)
	hdr = binary.LittleEndian.AppendUint32(hdr, w.header.Count)
	hdr = binary.LittleEndian.AppendUint32(hdr, 0)
	if err := w.write(hdr); err != nil {
		return nil, err
	}

	// Placeholder pointer table, patched in Close.
	zeros := make([]byte, 4096)
	for left := int64(count) * pointerSize; left > 0; {
		n := min(left, int64(len(zeros)))
		if err := w.write(zeros[:n]); err != nil {
			return nil, err
		}
		left -= n
	}
	return w, nil
}

// WriteRecord appends one record and remembers its offset. Records must be
// written in sort key order.
func (w *Writer) WriteRecord(rec *model.PlayerRecord) error {
	if w.state != stateRecords {
		return fmt.Errorf("%w: record after cache", ErrWriterState)
	}
	if uint32(len(w.pointers)) >= w.header.Count {
		return fmt.Errorf("%w: more than %d records", ErrRecordCount, w.header.Count)
	}
	if len(rec.DisplayName) > maxShortLen {
		return fmt.Errorf("%w: %q", ErrNameTooLong, rec.DisplayName)
	}
	if w.pos > math.MaxUint32 {
		return fmt.Errorf("%w: record %d at %d", ErrOffsetOverflow, len(w.pointers), w.pos)
	}
	w.pointers = append(w.pointers, uint32(w.pos))

	b := w.scratch[:0]
	b = append(b, byte(len(rec.DisplayName)))
	b = append(b, rec.DisplayName...)
	for _, ri := range rec.Ranks {
		b = binary.AppendUvarint(b, uint64(ri.Value))
		b = binary.AppendUvarint(b, uint64(ri.Position))
	}
	w.scratch = b[:0]
	return w.write(b)
}

// WriteCache appends the prefix cache section. It must follow the last record.
func (w *Writer) WriteCache(entries []CacheEntry) error {
	if w.state != stateRecords {
		return fmt.Errorf("%w: cache written twice", ErrWriterState)
	}
	if uint32(len(w.pointers)) != w.header.Count {
		return fmt.Errorf("%w: wrote %d of %d", ErrRecordCount, len(w.pointers), w.header.Count)
	}
	if w.pos > math.MaxUint32 {
		return fmt.Errorf("%w: cache at %d", ErrOffsetOverflow, w.pos)
	}
	w.header.CacheOffset = uint32(w.pos)
	w.state = stateCache

	b := binary.LittleEndian.AppendUint32(w.scratch[:0], uint32(len(entries)))
	for _, e := range entries {
		if len(e.Prefix) > maxShortLen {
			return fmt.Errorf("%w: %q", ErrPrefixTooLong, e.Prefix)
		}
		if len(e.Top) > maxShortLen {
			return fmt.Errorf("%w: %q has %d", ErrTopTooLong, e.Prefix, len(e.Top))
		}
		b = append(b, byte(len(e.Prefix)))
		b = append(b, e.Prefix...)
		b = append(b, byte(len(e.Top)))
		for _, t := range e.Top {
			if len(t.Name) > maxShortLen {
				return fmt.Errorf("%w: %q", ErrNameTooLong, t.Name)
			}
			b = append(b, byte(len(t.Name)))
			b = append(b, t.Name...)
			b = binary.AppendUvarint(b, uint64(t.Value))
		}
		if err := w.write(b); err != nil {
			return err
		}
		b = b[:0]
	}
	w.scratch = b[:0]
	return w.write(b)
}

// Close flushes the stream and patches the cache offset and pointer table.
// It does not close the underlying output.
func (w *Writer) Close() error {
	if w.state == stateClosed {
		return nil
	}
	if w.state != stateCache {
		if err := w.WriteCache(nil); err != nil {
			return err
		}
	}
	w.state = stateClosed
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	if _, err := w.out.Seek(cacheOffsetAt, io.SeekStart); err != nil {
		return fmt.Errorf("seek header: %w", err)
	}
	patch := make([]byte, 0, pointerSize*(1+len(w.pointers)))
	patch = binary.LittleEndian.AppendUint32(patch, w.header.CacheOffset)
	for _, p := range w.pointers {
		patch = binary.LittleEndian.AppendUint32(patch, p)
	}
	if _, err := w.out.Write(patch); err != nil {
		return fmt.Errorf("patch pointers: %w", err)
	}
	if _, err := w.out.Seek(w.pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek end: %w", err)
	}
	return nil
}

// Header returns the header as it will be (or has been) patched.
func (w *Writer) Header() Header { return w.header }

// Size returns the number of bytes emitted so far.
func (w *Writer) Size() int64 { return w.pos }

func (w *Writer) write(b []byte) error {
	n, err := w.bw.Write(b)
	w.pos += int64(n)
	if err != nil {
		return fmt.Errorf("write at %d: %w", w.pos, err)
	}
	return nil
}
