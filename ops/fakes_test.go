package ops

import (
	"context"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/bazpack/baz/api"
)

/*
	A stand-in for the external repository tool, faithful to the contract
	the orchestrator relies on: init makes an empty repository layout in
	the workspace, snapshot copies the source tree under archives/<tag>
	and records it in an index, list streams the index in creation order,
	restore copies an archive back out.  All of it lives in plain files
	inside the workspace, so it survives the real codec round-trip the
	orchestrator drives between operations.
*/
type fakeRepo struct {
	clock        time.Time
	snapshotErr  error // injected failure for the next snapshot call
	restoreCalls []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeRepo) toolchain() Toolchain {
	return Toolchain{
		Repo:     api.RepoConfig{ToolPath: "fake", AllowRelocated: true},
		Init:     f.init,
		Snapshot: f.snapshot,
		List:     f.list,
		Restore:  f.restore,
		Unmount:  func(string) error { return nil },
		Fs:       osfs.New("/"),
	}
}

func (f *fakeRepo) init(ctx context.Context, cfg api.RepoConfig, ws string, enc api.EncryptionMode, extraOpts []string) error {
	if err := os.WriteFile(filepath.Join(ws, "config"), []byte(fmt.Sprintf("encryption = %s\n", enc)), 0644); err != nil {
		return err
	}
	if err := os.Mkdir(filepath.Join(ws, "archives"), 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(ws, "index"), nil, 0644)
}

func (f *fakeRepo) snapshot(ctx context.Context, cfg api.RepoConfig, ws string, tag api.Tag, sourceDir string) error {
	if f.snapshotErr != nil {
		err := f.snapshotErr
		f.snapshotErr = nil
		return err
	}
	archiveDir := filepath.Join(ws, "archives", string(tag))
	if _, err := os.Stat(archiveDir); err == nil {
		return fmt.Errorf("fake: archive %s already exists", tag)
	}
	if err := copyTree(sourceDir, archiveDir); err != nil {
		return err
	}
	f.clock = f.clock.Add(time.Minute)
	index, err := os.OpenFile(filepath.Join(ws, "index"), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer index.Close()
	_, err = fmt.Fprintf(index, "%s\t%s\n", tag, f.clock.Format(time.RFC3339))
	return err
}

func (f *fakeRepo) list(ctx context.Context, cfg api.RepoConfig, ws string) (api.SnapshotCursor, error) {
	raw, err := os.ReadFile(filepath.Join(ws, "index"))
	if err != nil {
		return nil, err
	}
	cursor := &sliceCursor{}
	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		stamp, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, err
		}
		cursor.infos = append(cursor.infos, api.SnapshotInfo{Tag: api.Tag(parts[0]), Time: stamp})
	}
	return cursor, nil
}

func (f *fakeRepo) restore(ctx context.Context, cfg api.RepoConfig, ws string, tag api.Tag, destination string, mode api.RestoreMode) error {
	f.restoreCalls = append(f.restoreCalls, fmt.Sprintf("%s:%s", mode, tag))
	if mode == api.Restore_Mount {
		return nil // a real mount would overlay destination; nothing to fake
	}
	if tag == "" {
		cursor, err := f.list(ctx, cfg, ws)
		if err != nil {
			return err
		}
		for {
			info, err := cursor.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			tag = info.Tag
		}
	}
	if tag == "" {
		return fmt.Errorf("fake: repository has no snapshots")
	}
	return copyTree(filepath.Join(ws, "archives", string(tag)), destination)
}

type sliceCursor struct {
	infos []api.SnapshotInfo
	at    int
}

func (c *sliceCursor) Next() (api.SnapshotInfo, error) {
	if c.at >= len(c.infos) {
		return api.SnapshotInfo{}, io.EOF
	}
	c.at++
	return c.infos[c.at-1], nil
}

func (c *sliceCursor) Close() error { return nil }

func copyTree(srcDir, destDir string) error {
	return filepath.WalkDir(srcDir, func(pth string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, pth)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.Type()&os.ModeSymlink != 0:
			linkname, err := os.Readlink(pth)
			if err != nil {
				return err
			}
			return os.Symlink(linkname, target)
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		default:
			body, err := os.ReadFile(pth)
			if err != nil {
				return err
			}
			return os.WriteFile(target, body, info.Mode().Perm())
		}
	})
}
