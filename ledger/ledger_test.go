package ledger

import (
	"io"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-billy.v4/memfs"

	"github.com/bazpack/baz/api"
)

func TestLedger(t *testing.T) {
	Convey("Tag ledger:", t, func() {
		fs := memfs.New()
		So(fs.MkdirAll("/ds", 0755), ShouldBeNil)

		Convey("initialize writes the single entry 1", func() {
			So(Initialize(fs, "/ds"), ShouldBeNil)
			tags, err := Entries(fs, "/ds")
			So(err, ShouldBeNil)
			So(tags, ShouldResemble, []api.Tag{"1"})
		})
		Convey("the next auto tag is the entry count plus one", func() {
			So(Initialize(fs, "/ds"), ShouldBeNil)
			tag, err := NextAutoTag(fs, "/ds")
			So(err, ShouldBeNil)
			So(tag, ShouldEqual, api.Tag("2"))

			So(Append(fs, "/ds", "2"), ShouldBeNil)
			So(Append(fs, "/ds", "experiment"), ShouldBeNil)
			tag, err = NextAutoTag(fs, "/ds")
			So(err, ShouldBeNil)
			So(tag, ShouldEqual, api.Tag("4"))
		})
		Convey("append preserves order and never rewrites prior entries", func() {
			So(Initialize(fs, "/ds"), ShouldBeNil)
			So(Append(fs, "/ds", "2"), ShouldBeNil)
			So(Append(fs, "/ds", "3"), ShouldBeNil)
			tags, err := Entries(fs, "/ds")
			So(err, ShouldBeNil)
			So(tags, ShouldResemble, []api.Tag{"1", "2", "3"})

			raw, err := fs.Open("/ds/" + LedgerName)
			So(err, ShouldBeNil)
			defer raw.Close()
			body, err := io.ReadAll(raw)
			So(err, ShouldBeNil)
			So(string(body), ShouldEqual, "1\n2\n3\n")
		})
		Convey("reading a never-initialized ledger is a ledger error", func() {
			_, err := Entries(fs, "/ds")
			So(err, errcat.ErrorShouldHaveCategory, api.ErrLedger)
		})
		Convey("initialize overwrites a stale ledger from an earlier container", func() {
			So(Initialize(fs, "/ds"), ShouldBeNil)
			So(Append(fs, "/ds", "2"), ShouldBeNil)
			So(Initialize(fs, "/ds"), ShouldBeNil)
			tags, err := Entries(fs, "/ds")
			So(err, ShouldBeNil)
			So(tags, ShouldResemble, []api.Tag{"1"})
		})
	})
}
