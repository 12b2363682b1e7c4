/*
	The lifecycle orchestrator: sequences codec, workspace, ledger, and
	repository-tool calls into the user-facing operations, with the
	ordering and atomicity guarantees the container format promises.

	Every operation is one strictly sequential pipeline inside one
	invocation; the only suspension points are the blocking external tool
	calls.  Concurrent updates against one container are the caller's
	problem to serialize; reads are naturally safe since each invocation
	works in its own scratch workspace.
*/
package ops

import (
	"context"
	"io"
	"os"
	"path/filepath"

	. "github.com/warpfork/go-errcat"

	"github.com/bazpack/baz/api"
	"github.com/bazpack/baz/codec"
	"github.com/bazpack/baz/ledger"
	"github.com/bazpack/baz/lib/guid"
	"github.com/bazpack/baz/workspace"
)

// The first snapshot of every container is tagged "1".
const firstTag = api.Tag("1")

/*
	Resolve a user-supplied path to absolute form before any billy-side
	access.  The ledger/breadcrumb filesystem is rooted at "/", so a
	relative path handed to it would silently resolve against the root
	while the codec and tool calls in the same operation resolve against
	the cwd.
*/
func absPath(pth string, category api.ErrorCategory) (string, error) {
	abs, err := filepath.Abs(pth)
	if err != nil {
		return "", Errorf(category, "cannot resolve path %q: %s", pth, err)
	}
	return abs, nil
}

/*
	Create a new container at containerPath holding one snapshot of
	sourceDir.

	A failure before the final encode leaves no container written (none
	existed before), though the initialized tag ledger remains beside the
	source dir -- a benign side effect.
*/
func Create(ctx context.Context, tc Toolchain, containerPath, sourceDir string, encryption api.EncryptionMode, extraOpts []string) error {
	if containerPath == "" {
		return Errorf(api.ErrNoContainer, "create requires a container path")
	}
	if sourceDir == "" {
		return Errorf(api.ErrNoPath, "create requires a source directory")
	}
	sourceDir, err := absPath(sourceDir, api.ErrNoPath)
	if err != nil {
		return err
	}
	if err := ledger.Initialize(tc.Fs, sourceDir); err != nil {
		return err
	}
	ws, err := workspace.Acquire()
	if err != nil {
		return err
	}
	defer ws.Release()
	if err := tc.Init(ctx, tc.Repo, ws.Path, encryption, extraOpts); err != nil {
		return err
	}
	if err := tc.Snapshot(ctx, tc.Repo, ws.Path, firstTag, sourceDir); err != nil {
		return err
	}
	return codec.Encode(ws.Path, containerPath, tc.CodecPreference)
}

/*
	Add one snapshot of sourceDir to an existing container.

	The commit point is the final rename: the previous container stays
	fully valid and untouched at its path until the new one is completely
	written under a temp name, so a failure at any earlier step costs at
	most one consumed ledger entry (a harmless gap in the tag sequence).
*/
func Update(ctx context.Context, tc Toolchain, containerPath, sourceDir string, explicitTag api.Tag) (api.Tag, error) {
	if containerPath == "" {
		return "", Errorf(api.ErrNoContainer, "update requires a container path")
	}
	if sourceDir == "" {
		return "", Errorf(api.ErrNoPath, "update requires a source directory")
	}
	sourceDir, err := absPath(sourceDir, api.ErrNoPath)
	if err != nil {
		return "", err
	}
	tag := explicitTag
	if tag == "" {
		var err error
		if tag, err = ledger.NextAutoTag(tc.Fs, sourceDir); err != nil {
			return "", err
		}
	}
	if err := ledger.Append(tc.Fs, sourceDir, tag); err != nil {
		return "", err
	}
	ws, err := workspace.Acquire()
	if err != nil {
		return "", err
	}
	defer ws.Release()
	if err := codec.Decode(containerPath, ws.Path); err != nil {
		return "", err
	}
	// Explicit tags can collide with snapshots from before a ledger gap;
	// the repository is already expanded, so check while it's cheap.
	// (Auto-tags can't collide: the ledger count only ever outruns the
	// snapshot set.)
	if explicitTag != "" {
		if err := guardDuplicateTag(ctx, tc, ws.Path, explicitTag); err != nil {
			return "", err
		}
	}
	if err := tc.Snapshot(ctx, tc.Repo, ws.Path, tag, sourceDir); err != nil {
		return "", err
	}
	tmpPath := containerPath + ".tmp." + guid.New()
	if err := codec.Encode(ws.Path, tmpPath, tc.CodecPreference); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, containerPath); err != nil {
		os.Remove(tmpPath)
		return "", Errorf(api.ErrCodecFailed, "cannot commit new container: %s", err)
	}
	return tag, nil
}

func guardDuplicateTag(ctx context.Context, tc Toolchain, wsPath string, tag api.Tag) error {
	cursor, err := tc.List(ctx, tc.Repo, wsPath)
	if err != nil {
		return err
	}
	defer cursor.Close()
	for {
		info, err := cursor.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Tag == tag {
			return Errorf(api.ErrUsage, "tag %q already exists in this container", tag)
		}
	}
}

/*
	Walk the container's snapshots in creation order, calling visit for
	each (tag, timestamp) pair.
*/
func List(ctx context.Context, tc Toolchain, containerPath string, visit func(api.SnapshotInfo) error) error {
	if containerPath == "" {
		return Errorf(api.ErrNoContainer, "list requires a container path")
	}
	ws, err := workspace.Acquire()
	if err != nil {
		return err
	}
	defer ws.Release()
	if err := codec.Decode(containerPath, ws.Path); err != nil {
		return err
	}
	cursor, err := tc.List(ctx, tc.Repo, ws.Path)
	if err != nil {
		return err
	}
	defer cursor.Close()
	for {
		info, err := cursor.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := visit(info); err != nil {
			return err
		}
	}
}

/*
	Materialize a snapshot (blank tag means the most recent) into destDir.

	If destDir already exists this is a destructive overlay, so the
	injected confirm func is consulted first; a decline is a graceful
	no-op, reported via proceeded=false with a nil error.  Unattended
	callers bypass by passing an always-true confirm.
*/
func Extract(ctx context.Context, tc Toolchain, containerPath, destDir string, tag api.Tag, confirm func(prompt string) bool) (proceeded bool, err error) {
	if containerPath == "" {
		return false, Errorf(api.ErrNoContainer, "extract requires a container path")
	}
	if destDir == "" {
		return false, Errorf(api.ErrNoPath, "extract requires a destination directory")
	}
	if _, statErr := os.Stat(destDir); statErr == nil {
		if confirm == nil || !confirm("destination "+destDir+" already exists; extracting may overwrite its contents") {
			return false, nil
		}
	}
	ws, err := workspace.Acquire()
	if err != nil {
		return false, err
	}
	defer ws.Release()
	if err := codec.Decode(containerPath, ws.Path); err != nil {
		return false, err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return false, Errorf(api.ErrNoPath, "cannot create destination: %s", err)
	}
	if err := tc.Restore(ctx, tc.Repo, ws.Path, tag, destDir, api.Restore_Extract); err != nil {
		return false, err
	}
	return true, nil
}
