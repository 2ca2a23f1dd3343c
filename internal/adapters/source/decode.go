package source

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/okian/rankindex/internal/domain/model"
)

const readBufferSize = 1 << 20

// UpstreamOrder is the order of the ranking lists after the aggregate in the
// upstream stream.
var UpstreamOrder = [model.NumCategories]model.Category{ //nolint:gochecknoglobals // fixed wire order
	model.CategoryPoints,
	model.CategoryWeekly,
	model.CategoryMonthly,
	model.CategoryYearly,
	model.CategoryTeam,
	model.CategoryRank,
}

// DecodeFile decodes the dataset stored at path.
func DecodeFile(path string) (model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Decode(bufio.NewReaderSize(f, readBufferSize))
}

// Decode reads the upstream stream: a list of map types and a map of maps,
// both skipped, then the aggregate points and six ranking lists of
// [name, value] pairs. Anything after the last list is ignored.
func Decode(r io.Reader) (model.Dataset, error) {
	dec := msgpack.NewDecoder(r)

	if err := dec.Skip(); err != nil {
		return model.Dataset{}, fmt.Errorf("%w: types: %w", ErrDecode, err)
	}
	if err := dec.Skip(); err != nil {
		return model.Dataset{}, fmt.Errorf("%w: maps: %w", ErrDecode, err)
	}
	total, err := dec.DecodeInt64()
	if err != nil {
		return model.Dataset{}, fmt.Errorf("%w: total points: %w", ErrDecode, err)
	}
	if total < math.MinInt32 || total > math.MaxUint32 {
		return model.Dataset{}, fmt.Errorf("%w: total points %d out of range", ErrDecode, total)
	}

	ds := model.Dataset{
		Aggregate: uint32(total),
		Lists:     make([]model.CategoryList, 0, len(UpstreamOrder)),
	}
	for _, cat := range UpstreamOrder {
		entries, err := decodeList(dec)
		if err != nil {
			return model.Dataset{}, fmt.Errorf("%w: %s list: %w", ErrDecode, cat, err)
		}
		ds.Lists = append(ds.Lists, model.CategoryList{Category: cat, Entries: entries})
	}
	return ds, nil
}

func decodeList(dec *msgpack.Decoder) ([]model.Entry, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	entries := make([]model.Entry, n)
	for i := range entries {
		fields, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if fields < 2 {
			return nil, fmt.Errorf("entry %d: %d fields, want 2", i, fields)
		}
		if entries[i].Name, err = dec.DecodeString(); err != nil {
			return nil, fmt.Errorf("entry %d name: %w", i, err)
		}
		v, err := dec.DecodeInt64()
		if err != nil {
			return nil, fmt.Errorf("entry %d value: %w", i, err)
		}
		if v < 0 || v > math.MaxUint32 {
			return nil, fmt.Errorf("entry %d value %d out of range", i, v)
		}
		entries[i].Value = uint32(v)
		for extra := fields - 2; extra > 0; extra-- {
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
		}
	}
	return entries, nil
}

// Encode writes ds in the layout Decode reads, with empty types and maps.
// Lists missing from ds are written empty.
func Encode(w io.Writer, ds model.Dataset) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.EncodeArrayLen(0); err != nil {
		return err
	}
	if err := enc.EncodeMapLen(0); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(int32(ds.Aggregate))); err != nil {
		return err
	}

	byCategory := make(map[model.Category][]model.Entry, len(ds.Lists))
	for _, l := range ds.Lists {
		byCategory[l.Category] = append(byCategory[l.Category], l.Entries...)
	}
	for _, cat := range UpstreamOrder {
		entries := byCategory[cat]
		if err := enc.EncodeArrayLen(len(entries)); err != nil {
			return err
		}
		for _, e := range entries {
			if err := enc.EncodeArrayLen(2); err != nil {
				return err
			}
			if err := enc.EncodeString(e.Name); err != nil {
				return err
			}
			if err := enc.EncodeUint(uint64(e.Value)); err != nil {
				return err
			}
		}
	}
	return nil
}
