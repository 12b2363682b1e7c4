/*
	Teardown for read-only filesystem views.

	The mounting itself is the repository tool's business (it runs a
	user-space FUSE driver); tearing the view down again is ours.  The
	user-space `fusermount` helper is always preferred because it needs
	no privileges; the raw umount syscall is a fallback for hosts without
	the helper, gated on actually holding CAP_SYS_ADMIN so we fail with a
	useful message instead of a bare EPERM.
*/
package mountctl

import (
	"bytes"
	"os/exec"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sys/unix"

	"github.com/bazpack/baz/api"
	"github.com/bazpack/baz/caps"
)

var fusermountNames = []string{"fusermount3", "fusermount"}

func Unmount(mountDir string) error {
	if mountDir == "" {
		return Errorf(api.ErrNoMountpoint, "unmount requires a mount directory")
	}
	for _, name := range fusermountNames {
		pth, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		cmd := exec.Command(pth, "-u", mountDir)
		var stderrBuf bytes.Buffer
		cmd.Stderr = &stderrBuf
		if err := cmd.Run(); err != nil {
			return Errorf(api.ErrMountFailed, "%s -u %s: %s:\n%s", name, mountDir, err, stderrBuf.String())
		}
		return nil
	}
	if !caps.Scan().CanUnmountDirect() {
		return Errorf(api.ErrMountFailed, "cannot unmount %q: no fusermount helper on PATH and no CAP_SYS_ADMIN for a direct umount", mountDir)
	}
	if err := unix.Unmount(mountDir, 0); err != nil {
		return Errorf(api.ErrMountFailed, "error tearing down mount at %q: %s", mountDir, err)
	}
	return nil
}
