/*
	Serializable core types shared by all baz packages,
	and the function contracts for the external repository tool.

	The heuristic for these contracts is that all information must be
	racked up in the call already: the adapter process does not share
	config loading with the caller, so anything the tool invocation
	needs -- the workspace path, the tag, the relocation allowance --
	arrives as a parameter, never as ambient process state.
*/
package api

import (
	"context"
	"time"

	"github.com/polydawn/refmt/obj/atlas"
)

/*
	Tags are short identifiers for one immutable snapshot within a repository.

	They are either human-chosen, or auto-generated as an incrementing
	counter from the tag ledger kept beside the source directory.
*/
type Tag string

/*
	Encryption modes accepted by repository initialization.

	"none" and "repokey" (the repository-local key file mode) are the two
	modes baz knows by name; any other string is handed to the repository
	tool verbatim, so future tool modes need no changes here.
*/
type EncryptionMode string

const (
	Encryption_None    = EncryptionMode("none")
	Encryption_RepoKey = EncryptionMode("repokey")
)

/*
	One entry of a repository's snapshot listing: the tag, and the
	creation timestamp as reported by the repository tool.
*/
type SnapshotInfo struct {
	Tag  Tag
	Time time.Time
}

var SnapshotInfo_AtlasEntry = atlas.BuildEntry(SnapshotInfo{}).StructMap().
	AddField("Tag", atlas.StructMapEntry{SerialName: "tag"}).
	AddField("Time", atlas.StructMapEntry{SerialName: "time"}).
	Complete()

// Timestamps serialize as RFC3339 strings; refmt has no native notion
// of time.Time, so every atlas carrying SnapshotInfo needs this too.
var Time_AtlasEntry = atlas.BuildEntry(time.Time{}).Transform().
	TransformMarshal(atlas.MakeMarshalTransformFunc(
		func(t time.Time) (string, error) {
			return t.Format(time.RFC3339), nil
		})).
	TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
		func(s string) (time.Time, error) {
			return time.Parse(time.RFC3339, s)
		})).
	Complete()

/*
	RepoConfig carries host-level toggles that every repository tool
	invocation needs.

	AllowRelocated must effectively always be true: every container decode
	reconstructs the repository at a fresh, previously-unseen path, so the
	repository's recorded original location will never match.  It is still
	an explicit field (not process-wide env mutation) so the policy is
	visible at every call site.
*/
type RepoConfig struct {
	ToolPath       string // Path or name of the repository tool binary.
	AllowRelocated bool   // Permit repository access after relocation.
}

// Restore modes: materialize a snapshot's files, or expose them
// as a live read-only filesystem view until unmounted.
type RestoreMode string

const (
	Restore_Extract = RestoreMode("extract")
	Restore_Mount   = RestoreMode("mount")
)

type InitFunc func(
	ctx context.Context, // Long-running call.  Cancellable.
	cfg RepoConfig, // Tool location and relocation policy.
	workspace string, // Absolute path the new repository shall live at.
	encryption EncryptionMode, // Encryption mode for the new repository.
	extraOpts []string, // Opaque pass-through options for tool tuning.
) error

type SnapshotFunc func(
	ctx context.Context, // Long-running call.  Cancellable.
	cfg RepoConfig, // Tool location and relocation policy.
	workspace string, // Absolute path of the expanded repository.
	tag Tag, // Name for the new snapshot; must not already exist.
	sourceDir string, // Directory whose current contents become the snapshot.
) error

type ListFunc func(
	ctx context.Context, // Long-running call.  Cancellable.
	cfg RepoConfig, // Tool location and relocation policy.
	workspace string, // Absolute path of the expanded repository.
) (SnapshotCursor, error)

type RestoreFunc func(
	ctx context.Context, // Long-running call.  Cancellable.
	cfg RepoConfig, // Tool location and relocation policy.
	workspace string, // Absolute path of the expanded repository.
	tag Tag, // Snapshot to restore; blank means most recent.
	destination string, // Dir to extract into, or dir to mount over.
	mode RestoreMode, // Extract or mount.
) error

/*
	A lazy, finite, non-restartable walk over a repository's snapshots
	in creation order.  Next returns io.EOF when the listing is exhausted.
	Close must be called regardless of how iteration ended.
*/
type SnapshotCursor interface {
	Next() (SnapshotInfo, error)
	Close() error
}
