// Package model contains domain models passed between layers.
package model

// Category identifies one upstream ranking list.
type Category int

// Categories in the order their RankInfo is laid out in a PlayerRecord.
const (
	CategoryPoints Category = iota // overall points
	CategoryRank                   // overall rank points
	CategoryTeam                   // team rank points
	CategoryWeekly
	CategoryMonthly
	CategoryYearly

	NumCategories = 6
)

// String returns the category name used in logs and metrics labels.
func (c Category) String() string {
	switch c {
	case CategoryPoints:
		return "points"
	case CategoryRank:
		return "rank"
	case CategoryTeam:
		return "team"
	case CategoryWeekly:
		return "weekly"
	case CategoryMonthly:
		return "monthly"
	case CategoryYearly:
		return "yearly"
	default:
		return "unknown"
	}
}

// RankInfo is one category's value and its 1-based position.
// The zero value means the player is absent from that category.
type RankInfo struct {
	Value    uint32
	Position uint32
}

// PlayerRecord aggregates all ranking categories for one player.
type PlayerRecord struct {
	DisplayName string
	SortKey     string // lowercase DisplayName
	Ranks       [NumCategories]RankInfo
}

// Overall returns the primary ranking used for prefix top lists.
func (p *PlayerRecord) Overall() RankInfo { return p.Ranks[CategoryPoints] }

// Entry is a single upstream (name, value) pair, best first within its list.
type Entry struct {
	Name  string
	Value uint32
}

// CategoryList is one decoded upstream ranking list.
type CategoryList struct {
	Category Category
	Entries  []Entry
}

// Dataset is the decoded upstream input handed to the builder.
type Dataset struct {
	Aggregate uint32 // total points across the dataset
	Lists     []CategoryList
}

// TopEntry is one member of a prefix's top list.
type TopEntry struct {
	Name  string
	Value uint32
}
