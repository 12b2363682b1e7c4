/*
	The repository operations adapter: a thin contract over the external
	`borg` tool's four operations (init, create, list, extract/mount),
	always driven against a repository expanded inside a scratch
	workspace.

	The adapter interprets nothing about snapshot contents -- content
	addressing, chunking, dedup, and encryption of snapshot data are the
	tool's business.  It also performs no retries: tool errors carry the
	captured diagnostics up and out.
*/
package borg

import (
	"context"
	"fmt"
	"io"

	. "github.com/warpfork/go-errcat"

	"github.com/bazpack/baz/api"
)

var (
	_ api.InitFunc     = Init
	_ api.SnapshotFunc = Snapshot
	_ api.ListFunc     = List
	_ api.RestoreFunc  = Restore
)

func Init(ctx context.Context, cfg api.RepoConfig, ws string, encryption api.EncryptionMode, extraOpts []string) error {
	return runTool(ctx, cfg, "", initArgs(ws, encryption, extraOpts)...)
}

/*
	Create one immutable snapshot named `tag` from the current contents
	of sourceDir.  Fails if the tag already exists in the repository.
*/
func Snapshot(ctx context.Context, cfg api.RepoConfig, ws string, tag api.Tag, sourceDir string) error {
	if tag == "" {
		return Errorf(api.ErrUsage, "snapshot requires a tag")
	}
	// Run from inside sourceDir so archived paths are relative:
	// extraction then lands files directly in the destination.
	return runTool(ctx, cfg, sourceDir, snapshotArgs(ws, tag)...)
}

func Restore(ctx context.Context, cfg api.RepoConfig, ws string, tag api.Tag, destination string, mode api.RestoreMode) error {
	if tag == "" {
		latest, err := latestTag(ctx, cfg, ws)
		if err != nil {
			return err
		}
		tag = latest
	}
	switch mode {
	case api.Restore_Extract:
		// Destination must already exist; extraction happens relative to it.
		return runTool(ctx, cfg, destination, extractArgs(ws, tag)...)
	case api.Restore_Mount:
		// The tool's FUSE process daemonizes: this call returns once the
		// view is up, and the mount outlives us.  The workspace must stay
		// alive until unmount.
		return runTool(ctx, cfg, "", mountArgs(ws, tag, destination)...)
	default:
		return Errorf(api.ErrUsage, "unknown restore mode %q", mode)
	}
}

func latestTag(ctx context.Context, cfg api.RepoConfig, ws string) (api.Tag, error) {
	cursor, err := List(ctx, cfg, ws)
	if err != nil {
		return "", err
	}
	defer cursor.Close()
	var last api.Tag
	for {
		info, err := cursor.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		last = info.Tag
	}
	if last == "" {
		return "", Errorf(api.ErrRepoToolFailed, "repository in %q has no snapshots", ws)
	}
	return last, nil
}

func initArgs(ws string, encryption api.EncryptionMode, extraOpts []string) []string {
	if encryption == "" {
		encryption = api.Encryption_None
	}
	args := []string{"init", fmt.Sprintf("--encryption=%s", encryption)}
	args = append(args, extraOpts...)
	return append(args, ws)
}

func snapshotArgs(ws string, tag api.Tag) []string {
	return []string{"create", ws + "::" + string(tag), "."}
}

func extractArgs(ws string, tag api.Tag) []string {
	return []string{"extract", ws + "::" + string(tag)}
}

func mountArgs(ws string, tag api.Tag, destination string) []string {
	return []string{"mount", ws + "::" + string(tag), destination}
}
