package manifest_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"slicestack/internal/models"
	"slicestack/pkg/ingest"
	"slicestack/pkg/manifest"
	"slicestack/pkg/stats"
)

func testBatch() *ingest.Batch {
	a := &models.DecodedSlice{
		SourceName:     "img2.dcm",
		ImagePositionZ: models.Some(-2.5),
		SliceLocation:  models.Some(-2.5),
		InstanceNumber: models.Some(int64(1)),
		Rows:           4,
		Columns:        4,
	}
	b := &models.DecodedSlice{
		SourceName:     "img1.dcm",
		InstanceNumber: models.Some(int64(2)),
		Rows:           4,
		Columns:        4,
	}
	slices := []*models.DecodedSlice{a, b}
	return &ingest.Batch{
		ID:       "2f1c3b9e-8a42-4d0e-9a57-1f5b3c7d9e01",
		Stack:    &models.Stack{Slices: slices, Rejected: 3},
		Summary:  stats.Summarize(slices),
		Duration: 1500 * time.Millisecond,
	}
}

func TestManifest(t *testing.T) {
	Convey("Given a batch", t, func() {
		m := manifest.FromBatch(testBatch())

		Convey("Then the manifest carries counts and order", func() {
			So(m.BatchID, ShouldEqual, "2f1c3b9e-8a42-4d0e-9a57-1f5b3c7d9e01")
			So(m.Total, ShouldEqual, 5)
			So(m.Loaded, ShouldEqual, 2)
			So(m.Rejected, ShouldEqual, 3)
			So(m.OrderedBy, ShouldEqual, "image_position")
			So(m.Sources(), ShouldResemble, []string{"img2.dcm", "img1.dcm"})
		})

		Convey("Then absent metadata stays absent", func() {
			So(*m.Slices[0].PositionZ, ShouldEqual, -2.5)
			So(m.Slices[1].PositionZ, ShouldBeNil)
			So(m.Slices[1].SliceLocation, ShouldBeNil)
			So(*m.Slices[1].InstanceNumber, ShouldEqual, 2)
		})

		Convey("When written to disk", func() {
			path := filepath.Join(t.TempDir(), "out", "manifest.yaml")
			So(manifest.Write(path, m), ShouldBeNil)

			raw, err := os.ReadFile(path)
			So(err, ShouldBeNil)

			Convey("Then the YAML omits absent keys", func() {
				So(string(raw), ShouldContainSubstring, "batch_id: 2f1c3b9e-8a42-4d0e-9a57-1f5b3c7d9e01")
				So(strings.Count(string(raw), "position_z:"), ShouldEqual, 1)
			})

			Convey("Then reading it back yields the same manifest", func() {
				back, err := manifest.Read(path)
				So(err, ShouldBeNil)
				So(back.BatchID, ShouldEqual, m.BatchID)
				So(back.Duration, ShouldEqual, m.Duration)
				So(back.CreatedAt.Equal(m.CreatedAt), ShouldBeTrue)
				So(back.Sources(), ShouldResemble, m.Sources())
				So(*back.Slices[0].SliceLocation, ShouldEqual, -2.5)
				So(back.Slices[1].SliceLocation, ShouldBeNil)
			})
		})

		Convey("When reading a missing file", func() {
			_, err := manifest.Read(filepath.Join(t.TempDir(), "missing.yaml"))

			Convey("Then an error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
