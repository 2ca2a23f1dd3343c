// Package types contains presentation types shared by the CLI commands.
package types

import "github.com/okian/rankindex/internal/domain/model"

// Record is the printable form of a decoded PlayerRecord.
type Record struct {
	Index   int             `json:"index"`
	Name    string          `json:"name"`
	Ranks   map[string]Rank `json:"ranks"`
	Missing []string        `json:"missing,omitempty"`
}

// Rank is one category of a printable Record.
type Rank struct {
	Value    uint32 `json:"value"`
	Position uint32 `json:"position"`
}

// TopList is the printable prefix top list.
type TopList struct {
	Prefix  string     `json:"prefix"`
	Entries []TopEntry `json:"entries"`
}

// TopEntry is one member of a printable TopList.
type TopEntry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

// FromRecord converts a decoded record at sorted position index.
func FromRecord(index int, rec model.PlayerRecord) Record {
	out := Record{
		Index: index,
		Name:  rec.DisplayName,
		Ranks: make(map[string]Rank, model.NumCategories),
	}
	for c := model.Category(0); c < model.NumCategories; c++ {
		ri := rec.Ranks[c]
		if ri.Position == 0 {
			out.Missing = append(out.Missing, c.String())
			continue
		}
		out.Ranks[c.String()] = Rank{Value: ri.Value, Position: ri.Position}
	}
	return out
}

// FromTop converts a prefix top list, numbering members from 1.
func FromTop(prefix string, entries []model.TopEntry) TopList {
	out := TopList{Prefix: prefix, Entries: make([]TopEntry, len(entries))}
	for i, e := range entries {
		out.Entries[i] = TopEntry{Rank: i + 1, Name: e.Name, Value: e.Value}
	}
	return out
}

// Summary describes a published index file.
type Summary struct {
	Path      string `json:"path"`
	Version   uint32 `json:"version"`
	Aggregate uint32 `json:"aggregate"`
	Records   int    `json:"records"`
	Prefixes  int    `json:"prefixes"`
}
