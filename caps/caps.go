/*
	Provides helper functions for checking if we have some functional sets of capabilities.
*/
package caps

import (
	"os"
	"runtime"

	"github.com/syndtr/gocapability/capability"
)

func Scan() *Fulcrum {
	var err error
	f := &Fulcrum{}
	f.onLinux = runtime.GOOS == "linux"
	f.ourUID = os.Getuid()
	if f.onLinux {
		f.ourCaps, err = capability.NewPid(0) // zero means self
		if err != nil {
			panic(err)
		}
	}
	return f
}

type Fulcrum struct {
	onLinux bool
	ourUID  int
	ourCaps capability.Capabilities // valid on linux; nil on mac (causing completely different logic).
}

// Whether we have enough caps to tear down a mount with the raw umount
// syscall.  This requires "have CAP_SYS_ADMIN", because mounts are
// typically considered a very powerful operation on linux,
// or, on mac, is uid==0.
// (The user-space fusermount helper needs no caps at all, which is why
// it is always tried first; this check only gates the fallback.)
func (f Fulcrum) CanUnmountDirect() bool {
	if !f.onLinux {
		return f.ourUID == 0
	}
	return f.ourCaps.Get(capability.EFFECTIVE, capability.CAP_SYS_ADMIN)
}

// Whether we have enough caps to expect a FUSE mount to work at all:
// we need access to /dev/fuse.  Root always qualifies; otherwise we
// peek at the device node's accessibility.
func (f Fulcrum) CanMountFuse() bool {
	if f.ourUID == 0 {
		return true
	}
	fi, err := os.Stat("/dev/fuse")
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeDevice != 0
}
