package borg

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	. "github.com/warpfork/go-errcat"

	"github.com/bazpack/baz/api"
)

const listFormat = "{archive}{TAB}{time}{NL}"

// Timestamp layouts the tool is known to emit for `{time}`.
var timeLayouts = []string{
	"Mon, 2006-01-02 15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func listArgs(ws string) []string {
	return []string{"list", "--format=" + listFormat, ws}
}

/*
	Stream the repository's snapshot listing, in creation order.

	The cursor is lazy and non-restartable: lines are parsed straight off
	the tool's stdout pipe, and the subprocess is reaped when the cursor
	reaches the end (or is closed early).
*/
func List(ctx context.Context, cfg api.RepoConfig, ws string) (api.SnapshotCursor, error) {
	cmd := exec.CommandContext(ctx, cfg.ToolPath, listArgs(ws)...)
	cmd.Env = toolEnv(cfg)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, Errorf(api.ErrRepoToolFailed, "fork %s: failed to start: %s", cfg.ToolPath, err)
	}
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return nil, Errorf(api.ErrCancelled, "cancelled")
		}
		return nil, Errorf(api.ErrRepoToolFailed, "fork %s: failed to start: %s", cfg.ToolPath, err)
	}
	return &listCursor{
		ctx:    ctx,
		scan:   bufio.NewScanner(stdout),
		cmd:    cmd,
		stderr: &stderrBuf,
		tool:   cfg.ToolPath,
	}, nil
}

type listCursor struct {
	ctx    context.Context
	scan   *bufio.Scanner
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	tool   string
	reaped bool
}

func (c *listCursor) Next() (api.SnapshotInfo, error) {
	if c.reaped {
		return api.SnapshotInfo{}, io.EOF
	}
	if c.scan.Scan() {
		return parseListLine(c.scan.Text())
	}
	if err := c.scan.Err(); err != nil {
		c.reap()
		if c.ctx.Err() != nil {
			return api.SnapshotInfo{}, Errorf(api.ErrCancelled, "cancelled")
		}
		return api.SnapshotInfo{}, Errorf(api.ErrRepoToolFailed, "%s list: reading output: %s", c.tool, err)
	}
	// Stream done; now the exit code decides whether it was a clean end.
	code, err := waitFor(c.cmd)
	c.reaped = true
	// Cancellation is checked before the wait status is interpreted:
	// a killed tool is our doing, not a tool failure.
	if c.ctx.Err() != nil {
		return api.SnapshotInfo{}, Errorf(api.ErrCancelled, "cancelled")
	}
	if err != nil {
		return api.SnapshotInfo{}, err
	}
	if code != 0 {
		return api.SnapshotInfo{}, Errorf(api.ErrRepoToolFailed, "%s list: exit code %d:\n%s", c.tool, code, c.stderr.String())
	}
	return api.SnapshotInfo{}, io.EOF
}

func (c *listCursor) Close() error {
	c.reap()
	return nil
}

func (c *listCursor) reap() {
	if c.reaped {
		return
	}
	c.reaped = true
	c.cmd.Process.Kill()
	c.cmd.Wait()
}

func parseListLine(line string) (api.SnapshotInfo, error) {
	parts := strings.SplitN(line, "\t", 2)
	if len(parts) != 2 || parts[0] == "" {
		return api.SnapshotInfo{}, Errorf(api.ErrRepoToolFailed, "unparsable listing line %q", line)
	}
	info := api.SnapshotInfo{Tag: api.Tag(parts[0])}
	stamp := strings.TrimSpace(parts[1])
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, stamp); err == nil {
			info.Time = t
			return info, nil
		}
	}
	return api.SnapshotInfo{}, Errorf(api.ErrRepoToolFailed, "unparsable timestamp %q in listing", stamp)
}
