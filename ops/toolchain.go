package ops

import (
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/bazpack/baz/api"
	"github.com/bazpack/baz/borg"
	"github.com/bazpack/baz/config"
	"github.com/bazpack/baz/mountctl"
)

/*
	Everything an operation needs is racked up in a Toolchain: the
	repository tool funcs, the mount teardown, the filesystem the ledger
	and breadcrumbs live on, and codec tuning.  Tests swap in fakes for
	any of it; production callers take Default().
*/
type Toolchain struct {
	Repo            api.RepoConfig
	Init            api.InitFunc
	Snapshot        api.SnapshotFunc
	List            api.ListFunc
	Restore         api.RestoreFunc
	Unmount         func(mountDir string) error
	Fs              billy.Filesystem // ledger + breadcrumb storage
	CodecPreference []string         // nil means the codec default
}

func Default() Toolchain {
	return Toolchain{
		Repo:     config.GetRepoConfig(),
		Init:     borg.Init,
		Snapshot: borg.Snapshot,
		List:     borg.List,
		Restore:  borg.Restore,
		Unmount:  mountctl.Unmount,
		Fs:       osfs.New("/"),
	}
}
