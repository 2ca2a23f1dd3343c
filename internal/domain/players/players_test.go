package players_test

import (
	"errors"
	"testing"

	"github.com/okian/rankindex/internal/domain/model"
	"github.com/okian/rankindex/internal/domain/players"
	. "github.com/smartystreets/goconvey/convey"
)

func list(c model.Category, entries ...model.Entry) model.CategoryList {
	return model.CategoryList{Category: c, Entries: entries}
}

func byName(recs []model.PlayerRecord) map[string]model.PlayerRecord {
	out := make(map[string]model.PlayerRecord, len(recs))
	for _, r := range recs {
		out[r.DisplayName] = r
	}
	return out
}

func TestNormalize(t *testing.T) {
	Convey("Given lists for several categories", t, func() {
		ds := model.Dataset{
			Aggregate: 225,
			Lists: []model.CategoryList{
				list(model.CategoryPoints, model.Entry{Name: "bob", Value: 100}, model.Entry{Name: "Alice", Value: 50}, model.Entry{Name: "bobby", Value: 75}),
				list(model.CategoryWeekly, model.Entry{Name: "bobby", Value: 9}, model.Entry{Name: "carol", Value: 3}),
				list(model.CategoryTeam, model.Entry{Name: "Alice", Value: 40}),
			},
		}

		Convey("When normalizing", func() {
			recs, err := players.Normalize(ds)
			So(err, ShouldBeNil)

			Convey("Then each distinct name yields exactly one record", func() {
				So(recs, ShouldHaveLength, 4)
				So(byName(recs), ShouldHaveLength, 4)
			})

			Convey("And positions follow input order per category", func() {
				m := byName(recs)
				So(m["bob"].Ranks[model.CategoryPoints], ShouldResemble, model.RankInfo{Value: 100, Position: 1})
				So(m["Alice"].Ranks[model.CategoryPoints], ShouldResemble, model.RankInfo{Value: 50, Position: 2})
				So(m["bobby"].Ranks[model.CategoryPoints], ShouldResemble, model.RankInfo{Value: 75, Position: 3})
				So(m["bobby"].Ranks[model.CategoryWeekly], ShouldResemble, model.RankInfo{Value: 9, Position: 1})
				So(m["Alice"].Ranks[model.CategoryTeam], ShouldResemble, model.RankInfo{Value: 40, Position: 1})
			})

			Convey("And absent categories stay zero", func() {
				m := byName(recs)
				carol := m["carol"]
				So(carol.Overall(), ShouldResemble, model.RankInfo{})
				So(m["carol"].Ranks[model.CategoryWeekly].Position, ShouldEqual, 2)
				So(m["bob"].Ranks[model.CategoryYearly], ShouldResemble, model.RankInfo{})
			})

			Convey("And records come out sorted by lowercase key", func() {
				names := make([]string, len(recs))
				for i, r := range recs {
					names[i] = r.DisplayName
				}
				So(names, ShouldResemble, []string{"Alice", "bob", "bobby", "carol"})
				So(recs[0].SortKey, ShouldEqual, "alice")
				So(players.IsSorted(recs), ShouldBeTrue)
			})
		})
	})

	Convey("Given a list with an unknown category", t, func() {
		_, err := players.Normalize(model.Dataset{Lists: []model.CategoryList{list(model.Category(42))}})

		Convey("Then normalization fails", func() {
			So(errors.Is(err, players.ErrUnknownCategory), ShouldBeTrue)
		})
	})

	Convey("Given no lists at all", t, func() {
		recs, err := players.Normalize(model.Dataset{})
		So(err, ShouldBeNil)
		So(recs, ShouldBeEmpty)
	})

	Convey("Given a name repeated within one list", t, func() {
		n := players.NewNormalizer(0)
		So(n.Add(list(model.CategoryRank, model.Entry{Name: "dup", Value: 5}, model.Entry{Name: "x", Value: 4}, model.Entry{Name: "dup", Value: 3})), ShouldBeNil)

		Convey("Then the last occurrence wins", func() {
			So(n.Len(), ShouldEqual, 2)
			So(byName(n.Records())["dup"].Ranks[model.CategoryRank], ShouldResemble, model.RankInfo{Value: 3, Position: 3})
		})
	})
}

func TestSort(t *testing.T) {
	Convey("Given names that differ only in case", t, func() {
		recs, err := players.Normalize(model.Dataset{Lists: []model.CategoryList{
			list(model.CategoryPoints, model.Entry{Name: "zed"}, model.Entry{Name: "bob"}, model.Entry{Name: "Bob"}, model.Entry{Name: "BOB"}),
		}})
		So(err, ShouldBeNil)

		Convey("Then equal keys are ordered by display name bytes", func() {
			So(recs[0].DisplayName, ShouldEqual, "BOB")
			So(recs[1].DisplayName, ShouldEqual, "Bob")
			So(recs[2].DisplayName, ShouldEqual, "bob")
			So(recs[3].DisplayName, ShouldEqual, "zed")
		})
	})

	Convey("Given non-ASCII names", t, func() {
		recs, err := players.Normalize(model.Dataset{Lists: []model.CategoryList{
			list(model.CategoryPoints, model.Entry{Name: "ÉCLAIR"}, model.Entry{Name: "apple"}),
		}})
		So(err, ShouldBeNil)

		Convey("Then keys use Unicode lowercasing and byte order", func() {
			So(recs[0].SortKey, ShouldEqual, "apple")
			So(recs[1].SortKey, ShouldEqual, "éclair")
		})
	})
}
