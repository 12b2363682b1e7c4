/*
	The tag ledger is a hidden, append-only log beside a source directory,
	one tag per line, used only to auto-generate the next default tag as
	an incrementing counter.

	It is deliberately independent of the repository's own snapshot list:
	the ledger is never rewritten or compacted, and an aborted update may
	leave a consumed entry with no matching snapshot -- a harmless gap in
	the sequence, not data loss.
*/
package ledger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/util"

	"github.com/bazpack/baz/api"
)

const LedgerName = ".baz-tags"

/*
	Write a fresh ledger containing the single entry "1", the first
	snapshot's tag.  Called exactly once, at create time; a stale ledger
	from an earlier container of the same source dir is overwritten.
*/
func Initialize(fs billy.Filesystem, sourceDir string) error {
	if err := util.WriteFile(fs, filepath.Join(sourceDir, LedgerName), []byte("1\n"), 0644); err != nil {
		return Errorf(api.ErrLedger, "cannot initialize tag ledger: %s", err)
	}
	return nil
}

/*
	All recorded tags, in append order.
*/
func Entries(fs billy.Filesystem, sourceDir string) ([]api.Tag, error) {
	f, err := fs.Open(filepath.Join(sourceDir, LedgerName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Errorf(api.ErrLedger, "no tag ledger in %q (was this dir ever archived with create?)", sourceDir)
		}
		return nil, Errorf(api.ErrLedger, "cannot read tag ledger: %s", err)
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, Errorf(api.ErrLedger, "cannot read tag ledger: %s", err)
	}
	var tags []api.Tag
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tags = append(tags, api.Tag(line))
	}
	return tags, nil
}

/*
	The default tag for the next update: the ledger's entry count plus one.
*/
func NextAutoTag(fs billy.Filesystem, sourceDir string) (api.Tag, error) {
	tags, err := Entries(fs, sourceDir)
	if err != nil {
		return "", err
	}
	return api.Tag(strconv.Itoa(len(tags) + 1)), nil
}

/*
	Record one more tag (explicit or auto-generated).  Append-only.
*/
func Append(fs billy.Filesystem, sourceDir string, tag api.Tag) error {
	f, err := fs.OpenFile(filepath.Join(sourceDir, LedgerName), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return Errorf(api.ErrLedger, "cannot append to tag ledger: %s", err)
	}
	defer f.Close()
	if _, err := f.Write([]byte(string(tag) + "\n")); err != nil {
		return Errorf(api.ErrLedger, "cannot append to tag ledger: %s", err)
	}
	return nil
}
