package api

import (
	"github.com/warpfork/go-errcat"
)

type ErrorCategory string
type ExitCode int

const (
	ExitSuccess                           = ExitCode(0)
	ExitUsage, ErrUsage                   = ExitCode(1), ErrorCategory("baz-usage-error")    // Some piece of user input to a command was invalid and unrunnable.
	ExitPanic                             = ExitCode(2)                                      // Placeholder.  We don't use this.  '2' happens when golang exits due to panic.
	ExitNoContainer, ErrNoContainer       = ExitCode(3), ErrorCategory("baz-no-container")   // The container path argument is missing.
	ExitNoPath, ErrNoPath                 = ExitCode(4), ErrorCategory("baz-no-path")        // The source or destination path argument is missing.
	ExitNoMountpoint, ErrNoMountpoint     = ExitCode(5), ErrorCategory("baz-no-mountpoint")  // The mount directory argument is missing.
	ExitCodecFailed, ErrCodecFailed       = ExitCode(6), ErrorCategory("baz-codec-failed")   // Container encode or decode failed (bad stream, no usable filter, io error).
	ExitMountFailed, ErrMountFailed       = ExitCode(7), ErrorCategory("baz-mount-failed")   // Mounting or unmounting the read-only view failed.
	ExitUnmountStray, ErrUnmountStray     = ExitCode(8), ErrorCategory("baz-unmount-stray")  // Unmount target carries no breadcrumb; it was never mounted by baz.
	ExitUnknownAction, ErrUnknownAction   = ExitCode(9), ErrorCategory("baz-unknown-action") // The action word is not one of ours.
	ExitRepoToolFailed, ErrRepoToolFailed = ExitCode(10), ErrorCategory("baz-repo-tool")     // The external repository tool exited abnormally; its diagnostics are re-emitted.
	ExitCancelled, ErrCancelled           = ExitCode(11), ErrorCategory("baz-cancelled")     // The operation timed out or was cancelled.
	ExitWorkspace, ErrWorkspace           = ExitCode(12), ErrorCategory("baz-workspace")     // A scratch workspace could not be allocated or reclaimed.
	ExitLedger, ErrLedger                 = ExitCode(13), ErrorCategory("baz-ledger")        // The tag ledger beside the source dir could not be read or written.
)

/*
	Map an error's category onto the process exit code for it.

	Uncategorized errors land on the usage code: the only errors allowed
	to leave an operation uncategorized are argument contract violations,
	and everything else is wrapped at the subsystem boundary.
*/
func ExitCodeForError(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	switch errcat.Category(err) {
	case ErrUsage:
		return ExitUsage
	case ErrNoContainer:
		return ExitNoContainer
	case ErrNoPath:
		return ExitNoPath
	case ErrNoMountpoint:
		return ExitNoMountpoint
	case ErrCodecFailed:
		return ExitCodecFailed
	case ErrMountFailed:
		return ExitMountFailed
	case ErrUnmountStray:
		return ExitUnmountStray
	case ErrUnknownAction:
		return ExitUnknownAction
	case ErrRepoToolFailed:
		return ExitRepoToolFailed
	case ErrCancelled:
		return ExitCancelled
	case ErrWorkspace:
		return ExitWorkspace
	case ErrLedger:
		return ExitLedger
	default:
		return ExitUsage
	}
}
