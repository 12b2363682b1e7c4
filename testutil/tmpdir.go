package testutil

import (
	"os"
	"path/filepath"

	"github.com/smartystreets/goconvey/convey"
)

/*
	Run the given function with a freshly created scratch dir,
	and remove the dir again when it returns.

	The dir is created under BAZ_TEST_TMPDIR if that's set (handy for
	pointing tests at a filesystem that supports all the features under
	test), or the host temp dir otherwise.
*/
func WithTmpdir(fn func(tmpDir string)) {
	base := os.Getenv("BAZ_TEST_TMPDIR")
	if base == "" {
		base = os.TempDir()
	}
	tmpDir, err := os.MkdirTemp(base, "baz-test-")
	convey.So(err, convey.ShouldBeNil)
	tmpDir, err = filepath.EvalSymlinks(tmpDir)
	convey.So(err, convey.ShouldBeNil)
	defer os.RemoveAll(tmpDir)
	fn(tmpDir)
}
