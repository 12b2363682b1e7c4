/*
	The scratch workspace manager allocates one ephemeral directory per
	invocation to hold the expanded form of a container, and guarantees
	exactly one release per acquire across all exit paths.

	Release is wired with `defer` at the acquire site; operations that
	hand the directory onward (mount does -- the mounted view is backed
	by the expanded repository until unmount) call Retain to suppress the
	removal, making the ownership transfer explicit rather than a hidden
	exemption.
*/
package workspace

import (
	"os"

	. "github.com/warpfork/go-errcat"

	"github.com/bazpack/baz/api"
	"github.com/bazpack/baz/config"
)

type Workspace struct {
	Path     string
	retained bool
	released bool
}

/*
	Create a fresh, uniquely named, empty scratch dir.
	Uniqueness against concurrent invocations is delegated to the host's
	secure temp-name facility.
*/
func Acquire() (*Workspace, error) {
	pth, err := os.MkdirTemp(config.GetWorkBasePath(), "baz-work-")
	if err != nil {
		return nil, Errorf(api.ErrWorkspace, "cannot allocate scratch workspace: %s", err)
	}
	return &Workspace{Path: pth}, nil
}

/*
	Suppress removal: ownership of the directory is being transferred
	(to a mount point for later reclamation, or to the operator for
	inspection after a mount failure).
*/
func (ws *Workspace) Retain() {
	ws.retained = true
}

/*
	Recursively remove the workspace unless retained.
	Safe to call more than once; only the first call acts.
*/
func (ws *Workspace) Release() error {
	if ws.released || ws.retained {
		return nil
	}
	ws.released = true
	if err := os.RemoveAll(ws.Path); err != nil {
		return Errorf(api.ErrWorkspace, "cannot release scratch workspace: %s", err)
	}
	return nil
}

/*
	Remove a workspace dir recorded earlier by a mount breadcrumb.
	The acquiring process is long gone, so this works from the bare path.
*/
func Reclaim(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return Errorf(api.ErrWorkspace, "cannot reclaim workspace %q: %s", path, err)
	}
	return nil
}
