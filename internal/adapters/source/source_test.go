package source_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/okian/rankindex/internal/adapters/source"
	"github.com/okian/rankindex/internal/domain/model"
	"github.com/okian/rankindex/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

type upstream struct {
	srv   *httptest.Server
	heads atomic.Int32
	gets  atomic.Int32
	etag  atomic.Value
	body  []byte
	code  int
}

func newUpstream(body []byte) *upstream {
	u := &upstream{body: body, code: http.StatusOK}
	u.etag.Store(`"v1"`)
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tag := u.etag.Load().(string); tag != "" {
			w.Header().Set("ETag", tag)
		}
		switch r.Method {
		case http.MethodHead:
			u.heads.Add(1)
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			u.gets.Add(1)
			w.WriteHeader(u.code)
			_, _ = w.Write(u.body)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	return u
}

func TestFetcher(t *testing.T) {
	Convey("Given an upstream serving the dataset with an ETag", t, func() {
		u := newUpstream([]byte("payload-1"))
		Reset(u.srv.Close)

		dir := t.TempDir()
		data := filepath.Join(dir, "cache", "players.msgpack")
		f := source.NewFetcher(u.srv.URL, data)
		ctx := context.Background()

		Convey("When fetching for the first time", func() {
			status, err := f.Fetch(ctx, false)

			Convey("Then the data and tag are written", func() {
				So(err, ShouldBeNil)
				So(status, ShouldEqual, source.StatusDownloaded)
				got, err := os.ReadFile(data)
				So(err, ShouldBeNil)
				So(string(got), ShouldEqual, "payload-1")
				tag, err := os.ReadFile(data + ".tag")
				So(err, ShouldBeNil)
				So(string(tag), ShouldEqual, `"v1"`)
				_, err = os.Stat(data + ".tmp")
				So(os.IsNotExist(err), ShouldBeTrue)
			})

			Convey("And fetching again with the same tag", func() {
				status, err := f.Fetch(ctx, false)

				Convey("Then nothing is downloaded", func() {
					So(err, ShouldBeNil)
					So(status, ShouldEqual, source.StatusUpToDate)
					So(u.gets.Load(), ShouldEqual, 1)
					So(u.heads.Load(), ShouldEqual, 2)
				})
			})

			Convey("And fetching again with force", func() {
				status, err := f.Fetch(ctx, true)

				Convey("Then the dataset is downloaded again", func() {
					So(err, ShouldBeNil)
					So(status, ShouldEqual, source.StatusDownloaded)
					So(u.gets.Load(), ShouldEqual, 2)
				})
			})

			Convey("And the upstream tag changes", func() {
				u.etag.Store(`"v2"`)
				u.body = []byte("payload-2")
				status, err := f.Fetch(ctx, false)

				Convey("Then the new copy replaces the old one", func() {
					So(err, ShouldBeNil)
					So(status, ShouldEqual, source.StatusDownloaded)
					got, _ := os.ReadFile(data)
					So(string(got), ShouldEqual, "payload-2")
					tag, _ := os.ReadFile(data + ".tag")
					So(string(tag), ShouldEqual, `"v2"`)
				})
			})

			Convey("And the GET fails with a new tag", func() {
				u.etag.Store(`"v3"`)
				u.code = http.StatusInternalServerError
				_, err := f.Fetch(ctx, false)

				Convey("Then the previous copy and tag are kept", func() {
					So(errors.Is(err, source.ErrUpstreamStatus), ShouldBeTrue)
					got, _ := os.ReadFile(data)
					So(string(got), ShouldEqual, "payload-1")
					tag, _ := os.ReadFile(data + ".tag")
					So(string(tag), ShouldEqual, `"v1"`)
				})
			})
		})

		Convey("When the upstream sends no tag", func() {
			u.etag.Store("")
			_, err := f.Fetch(ctx, false)

			Convey("Then ErrMissingTag is returned and nothing is written", func() {
				So(errors.Is(err, source.ErrMissingTag), ShouldBeTrue)
				_, err := os.Stat(data)
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When the tag file matches but the data file is gone", func() {
			So(os.MkdirAll(filepath.Dir(data), 0o755), ShouldBeNil)
			So(os.WriteFile(data+".tag", []byte(`"v1"`), 0o644), ShouldBeNil)
			status, err := f.Fetch(ctx, false)

			Convey("Then the dataset is downloaded", func() {
				So(err, ShouldBeNil)
				So(status, ShouldEqual, source.StatusDownloaded)
			})
		})
	})

	Convey("Given an upstream that only sends Last-Modified", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
			_, _ = w.Write([]byte("x"))
		}))
		Reset(srv.Close)
		data := filepath.Join(t.TempDir(), "players.msgpack")
		f := source.NewFetcher(srv.URL, data, source.WithTagPath(data+".lm"))

		_, err := f.Fetch(context.Background(), false)
		So(err, ShouldBeNil)
		tag, err := os.ReadFile(data + ".lm")
		So(err, ShouldBeNil)
		So(string(tag), ShouldEqual, "Wed, 21 Oct 2015 07:28:00 GMT")
	})

	Convey("Given an unreachable upstream", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		f := source.NewFetcher(url, filepath.Join(t.TempDir(), "players.msgpack"))

		_, err := f.Fetch(context.Background(), false)
		So(errors.Is(err, source.ErrFetch), ShouldBeTrue)
	})

	Convey("Given an upstream answering HEAD with 404", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		Reset(srv.Close)
		f := source.NewFetcher(srv.URL, filepath.Join(t.TempDir(), "players.msgpack"))

		_, err := f.Fetch(context.Background(), false)
		So(errors.Is(err, source.ErrUpstreamStatus), ShouldBeTrue)
	})
}

func pairs(kv ...any) []any {
	out := make([]any, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, []any{kv[i], kv[i+1]})
	}
	return out
}

func stream(t *testing.T, parts ...any) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		b, err := msgpack.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(b)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	Convey("Given an upstream stream with populated skipped sections", t, func() {
		raw := stream(t,
			[]string{"Novice", "Brutal"},
			map[string][]any{"Kobra": {[]any{"Novice", 5, 1}}},
			1234,
			pairs("bob", 100, "Alice", 50),     // points
			pairs("bob", 7),                    // weekly
			pairs(),                            // monthly
			pairs("Alice", 3),                  // yearly
			pairs("bobby", 2),                  // team
			pairs("bob", 300, "bobby", 200),    // rank
			map[string]any{"GER": []any{1, 2}}, // trailing, ignored
		)

		ds, err := source.Decode(bytes.NewReader(raw))

		Convey("Then the aggregate and lists are read in upstream order", func() {
			So(err, ShouldBeNil)
			So(ds.Aggregate, ShouldEqual, 1234)
			So(len(ds.Lists), ShouldEqual, model.NumCategories)
			So(ds.Lists[0].Category, ShouldEqual, model.CategoryPoints)
			So(ds.Lists[0].Entries, ShouldResemble, []model.Entry{{Name: "bob", Value: 100}, {Name: "Alice", Value: 50}})
			So(ds.Lists[1].Category, ShouldEqual, model.CategoryWeekly)
			So(ds.Lists[2].Entries, ShouldBeEmpty)
			So(ds.Lists[4].Category, ShouldEqual, model.CategoryTeam)
			So(ds.Lists[5].Category, ShouldEqual, model.CategoryRank)
			So(ds.Lists[5].Entries[1], ShouldResemble, model.Entry{Name: "bobby", Value: 200})
		})
	})

	Convey("Given a negative aggregate", t, func() {
		raw := stream(t, []string{}, map[string]any{}, -1, pairs(), pairs(), pairs(), pairs(), pairs(), pairs())
		ds, err := source.Decode(bytes.NewReader(raw))

		Convey("Then it keeps the 32-bit pattern", func() {
			So(err, ShouldBeNil)
			So(ds.Aggregate, ShouldEqual, uint32(0xFFFFFFFF))
		})
	})

	Convey("Given a stream truncated inside a list", t, func() {
		raw := stream(t, []string{}, map[string]any{}, 1, pairs("bob", 1))
		_, err := source.Decode(bytes.NewReader(raw))

		Convey("Then ErrDecode names the failing list", func() {
			So(errors.Is(err, source.ErrDecode), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "weekly")
		})
	})

	Convey("Given a list entry with a non-string name", t, func() {
		raw := stream(t, []string{}, map[string]any{}, 1, []any{[]any{5, 5}})
		_, err := source.Decode(bytes.NewReader(raw))

		So(errors.Is(err, source.ErrDecode), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "points")
	})

	Convey("Given a negative list value", t, func() {
		raw := stream(t, []string{}, map[string]any{}, 1, pairs("bob", -3))
		_, err := source.Decode(bytes.NewReader(raw))

		So(errors.Is(err, source.ErrDecode), ShouldBeTrue)
	})
}

func TestEncodeDecode(t *testing.T) {
	Convey("Given a dataset encoded to a file", t, func() {
		ds := model.Dataset{
			Aggregate: 42,
			Lists: []model.CategoryList{
				{Category: model.CategoryRank, Entries: []model.Entry{{Name: "x", Value: 1}}},
				{Category: model.CategoryPoints, Entries: []model.Entry{{Name: "y", Value: 1 << 31}}},
			},
		}
		path := filepath.Join(t.TempDir(), "players.msgpack")
		var buf bytes.Buffer
		So(source.Encode(&buf, ds), ShouldBeNil)
		So(os.WriteFile(path, buf.Bytes(), 0o644), ShouldBeNil)

		got, err := source.DecodeFile(path)

		Convey("Then DecodeFile returns every list in upstream order", func() {
			So(err, ShouldBeNil)
			So(got.Aggregate, ShouldEqual, 42)
			for i, l := range got.Lists {
				So(l.Category, ShouldEqual, source.UpstreamOrder[i])
			}
			So(got.Lists[0].Entries, ShouldResemble, []model.Entry{{Name: "y", Value: 1 << 31}})
			So(got.Lists[5].Entries, ShouldResemble, []model.Entry{{Name: "x", Value: 1}})
		})
	})

	Convey("Given a missing file", t, func() {
		_, err := source.DecodeFile(filepath.Join(t.TempDir(), "nope"))
		So(err, ShouldNotBeNil)
	})
}
