package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/smartystreets/goconvey/convey"
)

/*
	Declarative fixture node for building little directory trees in tests.
	Leave Body nil for a dir; set Linkname for a symlink.
*/
type FixtureNode struct {
	Name     string // slash-separated path relative to the tree base
	Body     string
	Linkname string
	Perms    os.FileMode
}

// A fixed mtime keeps tree snapshots comparable across encode/decode.
var FixtureTime = time.Date(2017, 9, 15, 12, 0, 0, 0, time.UTC)

func PlaceFixture(base string, nodes []FixtureNode) {
	for _, n := range nodes {
		pth := filepath.Join(base, filepath.FromSlash(n.Name))
		switch {
		case n.Linkname != "":
			convey.So(os.Symlink(n.Linkname, pth), convey.ShouldBeNil)
		case strings.HasSuffix(n.Name, "/"):
			convey.So(os.MkdirAll(pth, n.permsOrDefault(0755)), convey.ShouldBeNil)
		default:
			convey.So(os.MkdirAll(filepath.Dir(pth), 0755), convey.ShouldBeNil)
			convey.So(os.WriteFile(pth, []byte(n.Body), n.permsOrDefault(0644)), convey.ShouldBeNil)
		}
	}
	// Times go on in a second pass, children before parents: placing a
	// child would bump the parent dir's mtime right back off again.
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if n.Linkname != "" {
			continue
		}
		pth := filepath.Join(base, filepath.FromSlash(n.Name))
		convey.So(os.Chtimes(pth, FixtureTime, FixtureTime), convey.ShouldBeNil)
	}
	convey.So(os.Chtimes(base, FixtureTime, FixtureTime), convey.ShouldBeNil)
}

func (n FixtureNode) permsOrDefault(dflt os.FileMode) os.FileMode {
	if n.Perms == 0 {
		return dflt
	}
	return n.Perms
}

/*
	Flatten a directory tree into comparable "path kind mode body" lines,
	sorted.  Two trees with equal snapshots are byte-for-byte equal in
	everything we promise to round-trip.
*/
func SnapshotTree(base string) []string {
	var lines []string
	err := filepath.WalkDir(base, func(pth string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, pth)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(pth)
			if err != nil {
				return err
			}
			lines = append(lines, rel+" symlink -> "+target)
		case d.IsDir():
			lines = append(lines, rel+" dir "+info.Mode().Perm().String())
		default:
			body, err := os.ReadFile(pth)
			if err != nil {
				return err
			}
			lines = append(lines, rel+" file "+info.Mode().Perm().String()+" "+string(body))
		}
		return nil
	})
	convey.So(err, convey.ShouldBeNil)
	sort.Strings(lines)
	return lines
}
