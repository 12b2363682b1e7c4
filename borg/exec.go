package borg

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"syscall"

	. "github.com/warpfork/go-errcat"

	"github.com/bazpack/baz/api"
)

/*
	Build the environment for one tool invocation.

	The relocation allowance is translated to env here, at the exec
	boundary, and nowhere else: every decode lands the repository at a
	fresh path, so the tool's recorded-location check must be waived on
	every call, and we want that policy visible as a config field rather
	than smeared across the process env.
*/
func toolEnv(cfg api.RepoConfig) []string {
	env := os.Environ()
	if cfg.AllowRelocated {
		env = append(env,
			"BORG_RELOCATED_REPO_ACCESS_IS_OK=yes",
			"BORG_UNKNOWN_UNENCRYPTED_REPO_ACCESS_IS_OK=yes",
		)
	}
	return env
}

/*
	Run one tool command to completion, capturing stderr.
	Tool failures re-emit the captured diagnostics -- that output is the
	only record of what went wrong inside the tool, so it is never
	swallowed.  No retries, ever.
*/
func runTool(ctx context.Context, cfg api.RepoConfig, workDir string, args ...string) error {
	cmd := exec.CommandContext(ctx, cfg.ToolPath, args...)
	cmd.Dir = workDir
	cmd.Env = toolEnv(cfg)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return Errorf(api.ErrCancelled, "cancelled")
		}
		return Errorf(api.ErrRepoToolFailed, "fork %s: failed to start: %s", cfg.ToolPath, err)
	}
	code, err := waitFor(cmd)
	// Cancellation is checked before the wait status is interpreted:
	// a killed tool is our doing, not a tool failure.
	if ctx.Err() != nil {
		return Errorf(api.ErrCancelled, "cancelled")
	}
	if err != nil {
		return err
	}
	if code != 0 {
		return Errorf(api.ErrRepoToolFailed, "%s %s: exit code %d:\n%s", cfg.ToolPath, args[0], code, stderrBuf.String())
	}
	return nil
}

func waitFor(cmd *exec.Cmd) (int, error) {
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return -1, Errorf(api.ErrRepoToolFailed, "fork %s: unknown wait error: %s", cmd.Path, err)
	}
	waitStatus, ok := exitErr.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		return -1, Errorf(api.ErrRepoToolFailed, "fork %s: unknown process state implementation %T", cmd.Path, exitErr.ProcessState.Sys())
	}
	if waitStatus.Exited() {
		return waitStatus.ExitStatus(), nil
	} else if waitStatus.Signaled() {
		return int(waitStatus.Signal()) + 128, Errorf(api.ErrRepoToolFailed, "fork %s: process killed with signal %d", cmd.Path, waitStatus.Signal())
	} else {
		return -1, Errorf(api.ErrRepoToolFailed, "fork %s: unknown process wait status (%#v)", cmd.Path, waitStatus)
	}
}
