package workspace

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/util"

	"github.com/bazpack/baz/api"
)

/*
	The mount breadcrumb records which workspace backs a mounted
	read-only view, so a later unmount invocation -- a separate process
	with none of our in-memory state -- can reclaim it.

	It lives inside the mount dir and therefore gets masked by the
	overlaid filesystem while the mount is live; it becomes readable
	again only once the view is torn down.  That ordering (unmount
	first, read second) is load-bearing, not incidental.
*/
const BreadcrumbName = ".baz-workspace"

// ReadAll-sized cap; a breadcrumb holds one path.
const breadcrumbMax = 4096

func WriteBreadcrumb(fs billy.Filesystem, mountDir string, workspacePath string) error {
	pth := filepath.Join(mountDir, BreadcrumbName)
	if err := util.WriteFile(fs, pth, []byte(workspacePath+"\n"), 0644); err != nil {
		return Errorf(api.ErrMountFailed, "cannot write mount breadcrumb: %s", err)
	}
	return nil
}

/*
	Recover the workspace path for a mount dir.
	Returns ErrUnmountStray if no breadcrumb exists: the dir was never
	mounted by baz (or the breadcrumb is still masked by a live mount).
*/
func ReadBreadcrumb(fs billy.Filesystem, mountDir string) (string, error) {
	pth := filepath.Join(mountDir, BreadcrumbName)
	f, err := fs.Open(pth)
	if err != nil {
		if os.IsNotExist(err) {
			return "", Errorf(api.ErrUnmountStray, "%q carries no baz mount breadcrumb", mountDir)
		}
		return "", Errorf(api.ErrMountFailed, "cannot read mount breadcrumb: %s", err)
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, breadcrumbMax))
	if err != nil {
		return "", Errorf(api.ErrMountFailed, "cannot read mount breadcrumb: %s", err)
	}
	wsPath := strings.TrimSpace(string(raw))
	if wsPath == "" {
		return "", Errorf(api.ErrMountFailed, "mount breadcrumb in %q is empty", mountDir)
	}
	return wsPath, nil
}

func DropBreadcrumb(fs billy.Filesystem, mountDir string) error {
	if err := fs.Remove(filepath.Join(mountDir, BreadcrumbName)); err != nil {
		return Errorf(api.ErrMountFailed, "cannot remove mount breadcrumb: %s", err)
	}
	return nil
}
