// Package prefix computes per-prefix top lists over records streamed in sort
// key order.
//
// Every record contributes to the prefixes formed by its first one and two
// grapheme clusters, plus a matched literal prefix and its grapheme
// extensions. A first-grapheme group is closed when the first grapheme
// changes, and its entries below the threshold are dropped. Byte order keeps
// most groups contiguous but not all: "ea" < "e\u0301t" < "e\u4e2d" reopens
// group "e" with a fresh count. Live memory is the current group plus
// prefixes already known to be popular.
//
// Prefixes that begin with a configured literal are kept in their own bucket
// and only pruned when the pass ends, since their membership is not tied to a
// first-grapheme group. The two buckets never hold the same prefix.
package prefix

import (
	"slices"
	"sort"
	"strings"

	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/okian/rankindex/internal/domain/model"
)

// Defaults.
const (
	DefaultThreshold         = 10_000
	DefaultTopSize           = 10
	DefaultLiteralExtensions = 1
	maxTopSize               = 255
)

// DefaultCommonPrefixes are clan-style tags that otherwise hide every name
// behind the same first graphemes.
var DefaultCommonPrefixes = []string{"(1)", "[d]"} //nolint:gochecknoglobals // read-only defaults

// Entry is a surviving prefix and its top list, ordered by value descending.
type Entry struct {
	Prefix string
	Count  uint32
	Top    []model.TopEntry
}

// Stats describes one pass.
type Stats struct {
	Observed int // records offered, including empty keys
	Skipped  int // records with an empty key
	Groups   int // first-grapheme groups closed
	Evicted  int // prefixes dropped below the threshold
	PeakLive int // largest number of prefixes held at once
}

type bucket map[string]*entry

type entry struct {
	count uint32
	top   []model.TopEntry
}

// Builder accumulates prefix statistics. It is not safe for concurrent use.
type Builder struct {
	threshold         uint32
	topSize           int
	literals          []string
	literalExtensions int

	groups  bucket
	literal bucket
	current string
	seen    []string // prefixes of the record being observed

	stats Stats
}

// New returns a Builder with the default threshold, top size and literals.
func New(opts ...Option) *Builder {
	b := &Builder{
		threshold:         DefaultThreshold,
		topSize:           DefaultTopSize,
		literals:          slices.Clone(DefaultCommonPrefixes),
		literalExtensions: DefaultLiteralExtensions,
		groups:            make(bucket),
		literal:           make(bucket),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Observe adds one record. Records must arrive in non-decreasing key order.
func (b *Builder) Observe(rec *model.PlayerRecord) {
	b.stats.Observed++

	p1, rest, state := nextGrapheme(rec.SortKey, -1)
	if p1 == "" {
		b.stats.Skipped++
		return
	}
	if p1 != b.current {
		if b.current != "" {
			b.stats.Groups++
		}
		b.evict(b.groups)
		b.current = p1
	}

	b.seen = append(b.seen[:0], p1)
	if g, _, _ := nextGrapheme(rest, state); g != "" {
		b.seen = append(b.seen, p1+g)
	}
	if lit := b.matchLiteral(rec.SortKey); lit != "" {
		prefix, rest, state := lit, rec.SortKey[len(lit):], -1
		for i := 0; ; i++ {
			if !slices.Contains(b.seen, prefix) {
				b.seen = append(b.seen, prefix)
			}
			if i == b.literalExtensions {
				break
			}
			var g string
			if g, rest, state = nextGrapheme(rest, state); g == "" {
				break
			}
			prefix += g
		}
	}

	value := rec.Overall().Value
	for _, p := range b.seen {
		if b.hasLiteralPrefix(p) {
			b.add(b.literal, p, rec.DisplayName, value)
		} else {
			b.add(b.groups, p, rec.DisplayName, value)
		}
	}
}

// Finish closes the last group and returns every surviving prefix sorted by
// prefix bytes. The Builder must not be used afterwards.
func (b *Builder) Finish() []Entry {
	if b.current != "" {
		b.stats.Groups++
	}
	b.evict(b.groups)
	b.evict(b.literal)

	out := make([]Entry, 0, len(b.groups)+len(b.literal))
	for _, bk := range []bucket{b.groups, b.literal} {
		for p, e := range bk {
			out = append(out, Entry{Prefix: p, Count: e.count, Top: e.top})
		}
	}
	slices.SortFunc(out, func(x, y Entry) int { return strings.Compare(x.Prefix, y.Prefix) })
	b.groups, b.literal = nil, nil
	return out
}

// Stats returns counters for the pass so far.
func (b *Builder) Stats() Stats { return b.stats }

func (b *Builder) add(bk bucket, prefix, name string, value uint32) {
	e, ok := bk[prefix]
	if !ok {
		e = &entry{top: make([]model.TopEntry, 0, b.topSize+1)}
		bk[prefix] = e
		if live := len(b.groups) + len(b.literal); live > b.stats.PeakLive {
			b.stats.PeakLive = live
		}
	}
	e.count++

	// New members go after existing ones with the same value.
	i := sort.Search(len(e.top), func(i int) bool { return e.top[i].Value < value })
	if i >= b.topSize {
		return
	}
	e.top = slices.Insert(e.top, i, model.TopEntry{Name: name, Value: value})
	if len(e.top) > b.topSize {
		e.top = e.top[:b.topSize]
	}
}

func (b *Builder) evict(bk bucket) {
	for p, e := range bk {
		if e.count < b.threshold {
			delete(bk, p)
			b.stats.Evicted++
		}
	}
}

// hasLiteralPrefix reports whether p starts with any configured literal.
func (b *Builder) hasLiteralPrefix(p string) bool {
	return b.matchLiteral(p) != ""
}

func (b *Builder) matchLiteral(key string) string {
	for _, l := range b.literals {
		if strings.HasPrefix(key, l) {
			return l
		}
	}
	return ""
}

// lowerLiteral folds a literal the same way sort keys are folded.
func lowerLiteral(l string) string {
	return cases.Lower(language.Und).String(l)
}

// nextGrapheme returns the first extended grapheme cluster of s, the rest of
// s, and the segmenter state to continue with. cluster is empty when s is.
func nextGrapheme(s string, state int) (cluster, rest string, newState int) {
	if s == "" {
		return "", "", state
	}
	cluster, rest, _, newState = uniseg.FirstGraphemeClusterInString(s, state)
	return cluster, rest, newState
}
