package ops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"

	"github.com/bazpack/baz/api"
	"github.com/bazpack/baz/ledger"
	"github.com/bazpack/baz/testutil"
)

func TestContainerLifecycle(t *testing.T) {
	Convey("Container lifecycle against a fake repository tool:", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			os.Setenv("BAZ_WORKDIR", tmpDir)
			defer os.Unsetenv("BAZ_WORKDIR")
			ctx := context.Background()
			repo := newFakeRepo()
			tc := repo.toolchain()
			container := filepath.Join(tmpDir, "data.baz")
			ds := filepath.Join(tmpDir, "ds")
			So(os.Mkdir(ds, 0755), ShouldBeNil)
			testutil.PlaceFixture(ds, []testutil.FixtureNode{
				{Name: "readme.txt", Body: "hello\n"},
				{Name: "sub/", Perms: 0755},
				{Name: "sub/data.bin", Body: "\x00\x01\x02"},
			})

			Convey("create writes a container and seeds the tag ledger", func() {
				So(Create(ctx, tc, container, ds, api.Encryption_None, nil), ShouldBeNil)
				_, err := os.Stat(container)
				So(err, ShouldBeNil)
				tags, err := ledger.Entries(tc.Fs, ds)
				So(err, ShouldBeNil)
				So(tags, ShouldResemble, []api.Tag{"1"})

				Convey("list walks the single snapshot", func() {
					So(collectTags(ctx, tc, container), ShouldResemble, []api.Tag{"1"})
				})
				Convey("listing twice gives the same answer", func() {
					first := collectTags(ctx, tc, container)
					So(collectTags(ctx, tc, container), ShouldResemble, first)
				})

				Convey("update without a tag picks the next from the ledger", func() {
					stateAtCreate := testutil.SnapshotTree(ds)
					So(os.WriteFile(filepath.Join(ds, "new.txt"), []byte("later\n"), 0644), ShouldBeNil)

					tag, err := Update(ctx, tc, container, ds, "")
					So(err, ShouldBeNil)
					So(tag, ShouldEqual, api.Tag("2"))
					tags, err := ledger.Entries(tc.Fs, ds)
					So(err, ShouldBeNil)
					So(tags, ShouldResemble, []api.Tag{"1", "2"})
					So(collectTags(ctx, tc, container), ShouldResemble, []api.Tag{"1", "2"})

					Convey("snapshot times come back in creation order", func() {
						var infos []api.SnapshotInfo
						So(List(ctx, tc, container, func(info api.SnapshotInfo) error {
							infos = append(infos, info)
							return nil
						}), ShouldBeNil)
						So(len(infos), ShouldEqual, 2)
						So(infos[0].Time.Before(infos[1].Time), ShouldBeTrue)
					})

					Convey("extract with no tag materializes the latest snapshot", func() {
						out := filepath.Join(tmpDir, "out")
						proceeded, err := Extract(ctx, tc, container, out, "", nil)
						So(err, ShouldBeNil)
						So(proceeded, ShouldBeTrue)
						So(testutil.SnapshotTree(out), ShouldResemble, testutil.SnapshotTree(ds))
					})
					Convey("extract with an explicit tag reaches back in time", func() {
						out := filepath.Join(tmpDir, "out")
						proceeded, err := Extract(ctx, tc, container, out, "1", nil)
						So(err, ShouldBeNil)
						So(proceeded, ShouldBeTrue)
						So(testutil.SnapshotTree(out), ShouldResemble, stateAtCreate)
					})
				})

				Convey("auto tags stay monotonic across many updates", func() {
					for _, want := range []api.Tag{"2", "3", "4"} {
						tag, err := Update(ctx, tc, container, ds, "")
						So(err, ShouldBeNil)
						So(tag, ShouldEqual, want)
					}
					So(collectTags(ctx, tc, container), ShouldResemble, []api.Tag{"1", "2", "3", "4"})
				})

				Convey("a failed update leaves the container byte-identical", func() {
					before, err := os.ReadFile(container)
					So(err, ShouldBeNil)
					repo.snapshotErr = errors.New("disk on fire")
					_, err = Update(ctx, tc, container, ds, "")
					So(err, ShouldNotBeNil)
					after, readErr := os.ReadFile(container)
					So(readErr, ShouldBeNil)
					So(len(after), ShouldEqual, len(before))
					So(string(after), ShouldEqual, string(before))
					// The consumed ledger entry stays: tag sequences may
					// have gaps, never reuse.
					tags, err := ledger.Entries(tc.Fs, ds)
					So(err, ShouldBeNil)
					So(tags, ShouldResemble, []api.Tag{"1", "2"})
				})

				Convey("an explicit tag that already exists is refused", func() {
					_, err := Update(ctx, tc, container, ds, "1")
					So(err, errcat.ErrorShouldHaveCategory, api.ErrUsage)
					So(collectTags(ctx, tc, container), ShouldResemble, []api.Tag{"1"})
				})

				Convey("extract declines gracefully when the destination exists and confirm says no", func() {
					out := filepath.Join(tmpDir, "out")
					So(os.Mkdir(out, 0755), ShouldBeNil)
					So(os.WriteFile(filepath.Join(out, "precious"), []byte("keep me"), 0644), ShouldBeNil)
					proceeded, err := Extract(ctx, tc, container, out, "", func(string) bool { return false })
					So(err, ShouldBeNil)
					So(proceeded, ShouldBeFalse)
					body, err := os.ReadFile(filepath.Join(out, "precious"))
					So(err, ShouldBeNil)
					So(string(body), ShouldEqual, "keep me")
				})
				Convey("a nil confirm func is treated as a decline", func() {
					out := filepath.Join(tmpDir, "out")
					So(os.Mkdir(out, 0755), ShouldBeNil)
					proceeded, err := Extract(ctx, tc, container, out, "", nil)
					So(err, ShouldBeNil)
					So(proceeded, ShouldBeFalse)
				})
				Convey("confirming proceeds over the existing destination", func() {
					out := filepath.Join(tmpDir, "out")
					So(os.Mkdir(out, 0755), ShouldBeNil)
					proceeded, err := Extract(ctx, tc, container, out, "", func(string) bool { return true })
					So(err, ShouldBeNil)
					So(proceeded, ShouldBeTrue)
					So(testutil.SnapshotTree(out), ShouldResemble, testutil.SnapshotTree(ds))
				})
			})

			Convey("relative paths resolve against the working directory", func() {
				wd, err := os.Getwd()
				So(err, ShouldBeNil)
				So(os.Chdir(tmpDir), ShouldBeNil)
				defer os.Chdir(wd)

				So(Create(ctx, tc, "data.baz", "ds", api.Encryption_None, nil), ShouldBeNil)
				// The ledger lands beside the source dir, not at "/ds".
				_, err = os.Stat(filepath.Join(ds, ledger.LedgerName))
				So(err, ShouldBeNil)
				tags, err := ledger.Entries(tc.Fs, ds)
				So(err, ShouldBeNil)
				So(tags, ShouldResemble, []api.Tag{"1"})

				tag, err := Update(ctx, tc, "data.baz", "ds", "")
				So(err, ShouldBeNil)
				So(tag, ShouldEqual, api.Tag("2"))
				So(collectTags(ctx, tc, "data.baz"), ShouldResemble, []api.Tag{"1", "2"})
			})

			Convey("argument validation maps to the right categories", func() {
				err := Create(ctx, tc, "", ds, api.Encryption_None, nil)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrNoContainer)
				err = Create(ctx, tc, container, "", api.Encryption_None, nil)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrNoPath)
				_, err = Update(ctx, tc, "", ds, "")
				So(err, errcat.ErrorShouldHaveCategory, api.ErrNoContainer)
				err = List(ctx, tc, "", func(api.SnapshotInfo) error { return nil })
				So(err, errcat.ErrorShouldHaveCategory, api.ErrNoContainer)
				_, err = Extract(ctx, tc, container, "", "", nil)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrNoPath)
			})

			Convey("list on a path with no container decodes to a codec failure", func() {
				err := List(ctx, tc, filepath.Join(tmpDir, "no-such.baz"), func(api.SnapshotInfo) error { return nil })
				So(err, errcat.ErrorShouldHaveCategory, api.ErrCodecFailed)
			})
		})
	})
}

func collectTags(ctx context.Context, tc Toolchain, container string) []api.Tag {
	var tags []api.Tag
	So(List(ctx, tc, container, func(info api.SnapshotInfo) error {
		tags = append(tags, info.Tag)
		return nil
	}), ShouldBeNil)
	return tags
}
