package roster_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rankindex/internal/adapters/roster"
)

const serversJSON = `{
  "servers": [
    {
      "addresses": ["tw-0.6+udp://10.0.0.1:8303", "tw-0.7+udp://10.0.0.1:8303", "tw-0.6+udp://10.0.0.2:8304"],
      "location": "eu:de",
      "info": {
        "name": "DDNet GER1",
        "clients": [
          {"name": "bob", "clan": "x", "skin": {"name": "default", "color_body": 65408, "color_feet": 12345}},
          {"name": "alice", "skin": {"name": "santa"}},
          {"name": "noskin"}
        ]
      }
    },
    {
      "addresses": ["tw-0.6+udp://10.0.0.9:8303"],
      "info": {"name": "no location"}
    }
  ]
}`

func TestFlatten(t *testing.T) {
	Convey("Given the upstream server list", t, func() {
		list, err := roster.DecodeServerList([]byte(serversJSON))
		So(err, ShouldBeNil)
		So(len(list.Servers), ShouldEqual, 2)

		snap, err := roster.Flatten(list)
		So(err, ShouldBeNil)

		Convey("Then addresses are grouped by host with their protocols", func() {
			So(len(snap.Servers), ShouldEqual, 2)
			So(snap.Servers[0].Addr, ShouldEqual, "10.0.0.1")
			So(snap.Servers[0].Info, ShouldContainSubstring, `"protocols":["tw-0.6+udp","tw-0.7+udp"]`)
			So(snap.Servers[0].Info, ShouldContainSubstring, `"name":"DDNet GER1"`)
			So(snap.Servers[1].Addr, ShouldEqual, "10.0.0.2")
			So(snap.Servers[1].Info, ShouldContainSubstring, `"protocols":["tw-0.6+udp"]`)
		})

		Convey("Then only clients with a skin are sighted, under the server location", func() {
			So(len(snap.Sightings), ShouldEqual, 2)
			So(snap.Sightings[0], ShouldResemble, roster.Sighting{
				Name:   "bob",
				Region: "eu:de",
				Skin:   `{"b":65408,"f":12345,"n":"default"}`,
			})
			So(snap.Sightings[1].Skin, ShouldEqual, `{"n":"santa"}`)
		})
	})

	Convey("Given malformed input", t, func() {
		_, err := roster.DecodeServerList([]byte(`{"servers": [`))
		So(errors.Is(err, roster.ErrDecode), ShouldBeTrue)

		loc := "eu"
		_, err = roster.Flatten(roster.ServerList{Servers: []roster.Server{{
			Addresses: []string{"::not a url"},
			Location:  &loc,
			Info:      map[string]any{},
		}}})
		So(errors.Is(err, roster.ErrDecode), ShouldBeTrue)
	})
}

func openStore(t *testing.T, opts ...roster.Option) *roster.Store {
	t.Helper()
	n := 0
	opts = append([]roster.Option{roster.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})}, opts...)
	s, err := roster.Open(context.Background(), filepath.Join(t.TempDir(), "tracker.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		s := openStore(t)

		_, ok, err := s.LastUpdate(ctx)
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)

		snap := roster.Snapshot{
			Servers:   []roster.ServerRow{{Addr: "10.0.0.1", Info: `{"protocols":["tw-0.6+udp"]}`}},
			Sightings: []roster.Sighting{{Name: "bob", Region: "eu", Skin: `{"n":"default"}`}},
		}

		Convey("When a snapshot is applied", func() {
			res, err := s.Apply(ctx, snap, 100)

			Convey("Then servers, clients and the update time are stored", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, roster.Result{Servers: 1, Sightings: 1, NewClients: 1})

				info, seen, ok, err := s.Server(ctx, "10.0.0.1")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(seen, ShouldEqual, 100)
				So(info, ShouldEqual, `{"protocols":["tw-0.6+udp"]}`)

				c, ok, err := s.Client(ctx, "bob", "eu")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(c.ID, ShouldEqual, "id-1")
				So(c.CurrentSkin, ShouldEqual, `{"n":"default"}`)
				So(c.History, ShouldResemble, []roster.HistoryEntry{{S: `{"n":"default"}`, T: 100}})

				last, ok, err := s.LastUpdate(ctx)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(last, ShouldEqual, 100)
			})

			Convey("And the same skin is seen again", func() {
				res, err := s.Apply(ctx, snap, 101)

				Convey("Then the history is unchanged but last_seen moves", func() {
					So(err, ShouldBeNil)
					So(res.NewClients, ShouldEqual, 0)
					So(res.SkinChanges, ShouldEqual, 0)
					c, _, _ := s.Client(ctx, "bob", "eu")
					So(len(c.History), ShouldEqual, 1)
					_, seen, _, _ := s.Server(ctx, "10.0.0.1")
					So(seen, ShouldEqual, 101)
				})
			})

			Convey("And the skin changes", func() {
				snap.Sightings[0].Skin = `{"n":"santa"}`
				res, err := s.Apply(ctx, snap, 102)

				Convey("Then the change is appended under the same id", func() {
					So(err, ShouldBeNil)
					So(res.SkinChanges, ShouldEqual, 1)
					c, _, _ := s.Client(ctx, "bob", "eu")
					So(c.ID, ShouldEqual, "id-1")
					So(c.CurrentSkin, ShouldEqual, `{"n":"santa"}`)
					So(c.History, ShouldResemble, []roster.HistoryEntry{
						{S: `{"n":"default"}`, T: 100},
						{S: `{"n":"santa"}`, T: 102},
					})
				})
			})

			Convey("And the same name appears in another region", func() {
				snap.Sightings[0].Region = "na"
				res, err := s.Apply(ctx, snap, 103)

				Convey("Then it is a separate client", func() {
					So(err, ShouldBeNil)
					So(res.NewClients, ShouldEqual, 1)
					c, ok, _ := s.Client(ctx, "bob", "na")
					So(ok, ShouldBeTrue)
					So(c.ID, ShouldEqual, "id-2")
				})
			})
		})
	})

	Convey("Given a store with a history limit of 3", t, func() {
		ctx := context.Background()
		s := openStore(t, roster.WithHistoryLimit(3))

		Convey("When the skin changes five times", func() {
			for i := 0; i < 5; i++ {
				snap := roster.Snapshot{Sightings: []roster.Sighting{{
					Name: "bob", Region: "eu", Skin: fmt.Sprintf(`{"n":"s%d"}`, i),
				}}}
				_, err := s.Apply(ctx, snap, int64(i))
				So(err, ShouldBeNil)
			}

			Convey("Then only the last three are kept", func() {
				c, _, err := s.Client(ctx, "bob", "eu")
				So(err, ShouldBeNil)
				So(len(c.History), ShouldEqual, 3)
				So(c.History[0].T, ShouldEqual, 2)
				So(strings.Contains(c.History[2].S, "s4"), ShouldBeTrue)
			})
		})
	})

	Convey("Given a canceled context", t, func() {
		s := openStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.Apply(ctx, roster.Snapshot{}, 1)
		So(errors.Is(err, roster.ErrStore), ShouldBeTrue)
	})
}
