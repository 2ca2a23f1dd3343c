package metrics

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then collectors are registered on that registry", func() {
				So(manager, ShouldNotBeNil)
				manager.records.Set(1)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldNotBeEmpty)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.customLabels["env"], ShouldEqual, "test")
			})
		})

		Convey("When options carry empty values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithCustomLabels(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "rankindex")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.customLabels, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording build, download and tracker metrics", func() {
			So(func() {
				RecordBuildDuration(1.5)
				RecordBuild(ResultPublished)
				RecordBuild(ResultSkipped)
				RecordBuildFailure("decode")
				UpdateIndexStats(3, 225, 2, 1024, 1700000000)
				RecordPrefixPass(4, 12)
				RecordDownload(ResultDownloaded)
				RecordDownload(ResultNotModified)
				UpdateDownloadBytes(2048)
				RecordPoll(ResultOK)
				RecordPollDuration(0.2)
				UpdateRoster(10, 250)
				RecordSkinChanges(3)
			}, ShouldNotPanic)

			Convey("Then WriteTextfile exposes them", func() {
				path := filepath.Join(t.TempDir(), "rankindex.prom")
				So(WriteTextfile(path), ShouldBeNil)

				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				text := string(data)
				So(text, ShouldContainSubstring, "rankindex_build_records 3")
				So(text, ShouldContainSubstring, "rankindex_build_aggregate_points 225")
				So(text, ShouldContainSubstring, `rankindex_build_failures_total{stage="decode"}`)
				So(text, ShouldContainSubstring, `rankindex_source_downloads_total{result="not_modified"}`)
				So(text, ShouldContainSubstring, "rankindex_tracker_clients 250")
				So(text, ShouldContainSubstring, "rankindex_build_prefix_peak_live 12")
			})
		})

		Convey("When the textfile directory does not exist", func() {
			err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))

			Convey("Then an error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordPoll(ResultOK)
					RecordSkinChanges(1)
					RecordDownload(ResultFailed)
				}
			}()
		}
		wg.Wait()

		So(GetRegistry(), ShouldNotBeNil)
	})
}

func TestMetricsInit(t *testing.T) {
	Convey("Given the global metrics reconfigured from settings", t, func() {
		Init(
			WithNamespace("ddnet"),
			WithCustomLabels(map[string]string{"host": "builder-1"}),
			WithHistogramBuckets([]float64{0.25, 1}),
		)
		Reset(func() { Init() })

		Convey("When metrics are recorded", func() {
			UpdateIndexStats(7, 1, 0, 64, 1700000000)
			RecordPollDuration(0.2)
			path := filepath.Join(t.TempDir(), "custom.prom")
			So(WriteTextfile(path), ShouldBeNil)
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			text := string(data)

			Convey("Then names, constant labels and buckets follow the settings", func() {
				So(text, ShouldContainSubstring, `ddnet_build_records{host="builder-1"} 7`)
				So(text, ShouldContainSubstring, `ddnet_tracker_poll_duration_seconds_bucket{host="builder-1",le="0.25"} 1`)
				So(text, ShouldNotContainSubstring, "rankindex_")
			})
		})
	})
}
