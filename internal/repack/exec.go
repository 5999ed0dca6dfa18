package repack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner runs one external command given as an argument vector.
type Runner interface {
	Run(ctx context.Context, argv []string) error
}

// ExecRunner runs commands as child processes. Stdin is empty so a tool that
// asks a question fails instead of hanging. Stderr is captured for the error
// message and, with Verbose, also streamed to Stderr.
type ExecRunner struct {
	Verbose bool
	Stdout  io.Writer // discarded when nil
	Stderr  io.Writer // defaults to os.Stderr when Verbose
}

var _ Runner = (*ExecRunner)(nil)

// Run starts argv[0] with the remaining arguments, never through a shell, and
// waits for it. A non-zero exit status is an error carrying the tail of the
// tool's stderr.
func (r *ExecRunner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf
	if r.Verbose {
		sink := r.Stderr
		if sink == nil {
			sink = os.Stderr
		}
		cmd.Stderr = io.MultiWriter(&stderrBuf, sink)
	}
	if r.Stdout != nil {
		cmd.Stdout = r.Stdout
	}

	if err := cmd.Run(); err != nil {
		if tail := lastLines(stderrBuf.String(), 5); tail != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, tail)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// lastLines returns the last n non-blank lines of s joined with "; ".
func lastLines(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
