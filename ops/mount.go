package ops

import (
	"context"
	"os"

	. "github.com/warpfork/go-errcat"

	"github.com/bazpack/baz/api"
	"github.com/bazpack/baz/codec"
	"github.com/bazpack/baz/workspace"
)

/*
	Expose a snapshot (blank tag means the most recent) as a live
	read-only filesystem view at mountDir.

	On success, ownership of the scratch workspace transfers to the mount
	point: the expanded repository must stay alive for as long as the
	view is mounted, and the breadcrumb written into mountDir records
	which workspace a later unmount invocation has to reclaim.

	On a restore failure the workspace is also retained -- the failure
	reason lives only in there, so it is left for manual inspection and
	its path is reported rather than silently discarded.
*/
func Mount(ctx context.Context, tc Toolchain, containerPath, mountDir string, tag api.Tag) (wsPath string, err error) {
	if containerPath == "" {
		return "", Errorf(api.ErrNoContainer, "mount requires a container path")
	}
	if mountDir == "" {
		return "", Errorf(api.ErrNoMountpoint, "mount requires a mount directory")
	}
	mountDir, err = absPath(mountDir, api.ErrNoMountpoint)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(mountDir, 0755); err != nil {
		return "", Errorf(api.ErrMountFailed, "cannot create mount dir: %s", err)
	}
	ws, err := workspace.Acquire()
	if err != nil {
		return "", err
	}
	defer ws.Release()
	if err := workspace.WriteBreadcrumb(tc.Fs, mountDir, ws.Path); err != nil {
		return "", err
	}
	if err := codec.Decode(containerPath, ws.Path); err != nil {
		workspace.DropBreadcrumb(tc.Fs, mountDir)
		return "", err
	}
	if err := tc.Restore(ctx, tc.Repo, ws.Path, tag, mountDir, api.Restore_Mount); err != nil {
		ws.Retain()
		workspace.DropBreadcrumb(tc.Fs, mountDir)
		return ws.Path, Errorf(api.ErrMountFailed, "mount failed: %s (workspace retained at %q for inspection)", err, ws.Path)
	}
	ws.Retain()
	return ws.Path, nil
}

/*
	Tear down a view made by Mount and reclaim its workspace.

	This is an explicit two-step protocol: the unmount MUST come first,
	because the breadcrumb file is hidden underneath the live mount
	overlay and only becomes visible once the overlay is removed.
	A dir with no breadcrumb after teardown was never mounted by baz.
*/
func Unmount(ctx context.Context, tc Toolchain, mountDir string) error {
	if mountDir == "" {
		return Errorf(api.ErrNoMountpoint, "unmount requires a mount directory")
	}
	mountDir, err := absPath(mountDir, api.ErrNoMountpoint)
	if err != nil {
		return err
	}
	unmountErr := tc.Unmount(mountDir)
	wsPath, readErr := workspace.ReadBreadcrumb(tc.Fs, mountDir)
	if readErr != nil {
		// Stray-dir classification wins: an unmount failure on a dir we
		// never mounted is the user pointing us at the wrong place.
		if Category(readErr) == api.ErrUnmountStray {
			return readErr
		}
		if unmountErr != nil {
			return unmountErr
		}
		return readErr
	}
	if unmountErr != nil {
		return unmountErr
	}
	if err := workspace.DropBreadcrumb(tc.Fs, mountDir); err != nil {
		return err
	}
	return workspace.Reclaim(wsPath)
}
