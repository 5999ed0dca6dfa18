// Package repack turns one group of release files at a time into a single
// archive, driving an external compressor through a scratch workspace.
//
// A Repackager moves through Idle → Prepared* → Compressed → Idle for each
// group: Prepare stages every member into the workspace (extracting archives,
// copying anything else), and Compress packs the workspace into
// <destination>/<key>.<extension>. Source files are only removed once the new
// archive has been verified on disk, so a failure part-way through a group
// never loses data.
package repack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"goodmerge/internal/matcher"
)

// DefaultExtension is the archive extension used when Options.Extension is empty.
const DefaultExtension = "7z"

// Options configures Open.
type Options struct {
	SourceFolder string
	// DestinationFolder defaults to SourceFolder.
	DestinationFolder string
	// Workspace is an existing empty directory to stage members in. When empty
	// an ephemeral directory is created and removed by Close.
	Workspace string
	// Extension of the produced archives, without the dot.
	Extension string
	// Commands defaults to DefaultCommands.
	Commands *Commands
	// ToolTimeout bounds each external invocation; zero means no limit.
	ToolTimeout time.Duration
	// FS defaults to OSFS.
	FS FS
	// Runner defaults to an ExecRunner.
	Runner Runner
	Logger *slog.Logger
}

type state int

const (
	stateIdle state = iota
	statePrepared
	stateClosed
)

// Repackager owns one workspace and processes groups strictly one at a time.
// It is not safe for concurrent use.
type Repackager struct {
	source      string
	destination string
	workspace   string
	ephemeral   bool
	extension   string
	commands    Commands
	toolTimeout time.Duration
	fs          FS
	runner      Runner
	log         *slog.Logger

	state    state
	pending  []string // sources staged for the current group
	poisoned error
}

// Open validates the folders and acquires the workspace. Callers must Close
// the Repackager, typically with defer, whatever happens afterwards.
func Open(ctx context.Context, opts Options) (*Repackager, error) {
	r := &Repackager{
		source:      opts.SourceFolder,
		destination: opts.DestinationFolder,
		extension:   opts.Extension,
		commands:    DefaultCommands(),
		toolTimeout: opts.ToolTimeout,
		fs:          opts.FS,
		runner:      opts.Runner,
		log:         opts.Logger,
	}
	if r.destination == "" {
		r.destination = r.source
	}
	if r.extension == "" {
		r.extension = DefaultExtension
	}
	if opts.Commands != nil {
		r.commands = *opts.Commands
	}
	if r.fs == nil {
		r.fs = OSFS{}
	}
	if r.runner == nil {
		r.runner = &ExecRunner{}
	}
	if r.log == nil {
		r.log = slog.Default()
	}

	if r.source == "" {
		return nil, &Error{Type: ValidationError, Op: "open", Message: "source folder is required"}
	}
	for _, dir := range []string{r.source, r.destination} {
		if err := r.requireDir(dir); err != nil {
			return nil, err
		}
	}
	if len(r.commands.Decompress) == 0 || len(r.commands.Compress) == 0 {
		return nil, &Error{Type: ValidationError, Op: "open", Message: "decompress and compress commands are required"}
	}

	if opts.Workspace != "" {
		if err := r.requireDir(opts.Workspace); err != nil {
			return nil, err
		}
		names, err := r.fs.ReadDir(opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("open: list workspace: %w", err)
		}
		if len(names) > 0 {
			return nil, &Error{Type: ValidationError, Op: "open", Path: opts.Workspace,
				Message: fmt.Sprintf("workspace is not empty (%d entries)", len(names))}
		}
		r.workspace = opts.Workspace
	} else {
		dir, err := r.fs.MkdirTemp("", "goodmerge-")
		if err != nil {
			return nil, fmt.Errorf("open: create workspace: %w", err)
		}
		r.workspace = dir
		r.ephemeral = true
	}

	r.log.Debug("workspace acquired", "workspace", r.workspace, "ephemeral", r.ephemeral)
	return r, nil
}

// Workspace returns the workspace directory.
func (r *Repackager) Workspace() string {
	return r.workspace
}

// Prepare stages filename, relative to the source folder, into the workspace.
// Archives with a compressed extension are extracted with the decompress
// command; other files are copied. The workspace must gain at least one entry.
// The source file stays in place until Compress has written the archive.
func (r *Repackager) Prepare(ctx context.Context, filename string) error {
	if err := r.usable("prepare"); err != nil {
		return err
	}

	src := filepath.Join(r.source, filename)
	info, err := r.fs.Stat(src)
	if err != nil {
		return &Error{Type: ValidationError, Op: "prepare", Path: src, Message: "source file does not exist", Err: err}
	}
	if info.IsDir() {
		return &Error{Type: ValidationError, Op: "prepare", Path: src, Message: "source is a directory"}
	}

	before, err := r.memberCount()
	if err != nil {
		return err
	}

	if matcher.IsCompressed(filename) {
		argv, err := r.commands.DecompressArgs(src, r.workspace)
		if err != nil {
			return &Error{Type: ValidationError, Op: "prepare", Path: src, Message: "decompress command", Err: err}
		}
		r.log.Debug("extracting", "file", filename)
		if err := r.run(ctx, argv); err != nil {
			return &Error{Type: ExternalToolError, Op: "prepare", Path: src, Message: "decompress failed", Err: err}
		}
	} else {
		r.log.Debug("copying", "file", filename)
		if err := r.fs.Copy(src, filepath.Join(r.workspace, filepath.Base(filename))); err != nil {
			return &Error{Type: IntegrityError, Op: "prepare", Path: src, Message: "copy into workspace failed", Err: err}
		}
	}

	after, err := r.memberCount()
	if err != nil {
		return err
	}
	if after <= before {
		return &Error{Type: IntegrityError, Op: "prepare", Path: src,
			Message: fmt.Sprintf("workspace did not grow (%d entries before, %d after)", before, after)}
	}

	r.pending = append(r.pending, src)
	r.state = statePrepared
	return nil
}

// Compress packs every workspace member into <destination>/<key>.<extension>
// and returns that path. key must be a plain file name. The archive must not
// exist beforehand and must exist afterwards. It is first written to a staging
// directory in the destination and renamed into place; only a staged source
// with the target's own name is removed before the rename, every other source
// after it. If anything fails once a source is gone the staging directory is
// kept. Finally the workspace is emptied; a workspace that cannot be emptied
// makes every later call fail.
func (r *Repackager) Compress(ctx context.Context, key string) (string, error) {
	if err := r.usable("compress"); err != nil {
		return "", err
	}
	if !validKey(key) {
		return "", &Error{Type: ValidationError, Op: "compress", Path: key, Message: "group key is not a plain file name"}
	}

	name := key + "." + r.extension
	target := filepath.Join(r.destination, name)
	if _, err := r.fs.Stat(target); err == nil && !r.isPending(target) {
		return "", &Error{Type: IntegrityError, Op: "compress", Path: target, Message: "archive already exists"}
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("compress: stat %s: %w", target, err)
	}

	members, err := r.fs.ReadDir(r.workspace)
	if err != nil {
		return "", fmt.Errorf("compress: list workspace: %w", err)
	}
	if len(members) == 0 {
		return "", &Error{Type: ValidationError, Op: "compress", Path: target, Message: "workspace is empty"}
	}
	paths := make([]string, len(members))
	for i, member := range members {
		paths[i] = filepath.Join(r.workspace, member)
	}

	staging, err := r.fs.MkdirTemp(r.destination, ".goodmerge-")
	if err != nil {
		return "", fmt.Errorf("compress: create staging directory: %w", err)
	}
	// Once a source is removed and until the rename succeeds, the staged
	// archive may be the only copy of the group.
	var removed, placed bool
	defer func() {
		if removed && !placed {
			r.log.Warn("keeping staging directory, it holds the only copy of the group", "path", staging)
			return
		}
		if err := r.fs.RemoveAll(staging); err != nil {
			r.log.Warn("could not remove staging directory", "path", staging, "error", err)
		}
	}()
	staged := filepath.Join(staging, name)

	argv, err := r.commands.CompressArgs(staged, paths)
	if err != nil {
		return "", &Error{Type: ValidationError, Op: "compress", Path: target, Message: "compress command", Err: err}
	}
	r.log.Debug("compressing", "archive", target, "members", len(paths))
	if err := r.run(ctx, argv); err != nil {
		return "", &Error{Type: ExternalToolError, Op: "compress", Path: target, Message: "compress failed", Err: err}
	}
	if _, err := r.fs.Stat(staged); err != nil {
		return "", &Error{Type: IntegrityError, Op: "compress", Path: target, Message: "compressor produced no archive", Err: err}
	}

	// A source with the target's name makes way for the archive.
	if r.isPending(target) {
		removed = true
		if err := r.removeVerified(target); err != nil {
			return "", r.poison(&Error{Type: IntegrityError, Op: "compress", Path: target, Message: "source file could not be removed", Err: err})
		}
		r.dropPending(target)
	}
	if _, err := r.fs.Stat(target); err == nil {
		return "", r.poison(&Error{Type: IntegrityError, Op: "compress", Path: target, Message: "archive appeared while compressing"})
	}
	if err := r.fs.Rename(staged, target); err != nil {
		return "", r.poison(&Error{Type: IntegrityError, Op: "compress", Path: staged, Message: "could not move archive into place", Err: err})
	}
	placed = true

	for len(r.pending) > 0 {
		src := r.pending[0]
		if err := r.removeVerified(src); err != nil {
			return "", r.poison(&Error{Type: IntegrityError, Op: "compress", Path: src, Message: "source file could not be removed", Err: err})
		}
		r.pending = r.pending[1:]
	}
	r.pending = nil

	for _, path := range paths {
		if err := r.removeVerified(path); err != nil {
			return "", r.poison(&Error{Type: IntegrityError, Op: "compress", Path: path, Message: "workspace member could not be removed", Err: err})
		}
	}

	r.state = stateIdle
	return target, nil
}

// Close releases the workspace: an ephemeral workspace is deleted with its
// contents, a supplied one is left in place. Close is idempotent.
func (r *Repackager) Close() error {
	if r.state == stateClosed {
		return nil
	}
	if len(r.pending) > 0 {
		r.log.Warn("closing with staged sources that were never removed; they are untouched",
			"files", len(r.pending))
	}
	r.state = stateClosed
	r.pending = nil

	if !r.ephemeral {
		return nil
	}
	if err := r.fs.RemoveAll(r.workspace); err != nil {
		return &Error{Type: IntegrityError, Op: "close", Path: r.workspace, Message: "could not remove workspace", Err: err}
	}
	r.log.Debug("workspace released", "workspace", r.workspace)
	return nil
}

func (r *Repackager) usable(op string) error {
	if r.state == stateClosed {
		return &Error{Type: ValidationError, Op: op, Path: r.workspace, Message: "repackager is closed"}
	}
	if r.poisoned != nil {
		return fmt.Errorf("%s: workspace unusable after earlier failure: %w", op, r.poisoned)
	}
	return nil
}

func (r *Repackager) poison(err *Error) error {
	r.poisoned = err
	return err
}

func (r *Repackager) run(ctx context.Context, argv []string) error {
	if r.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.toolTimeout)
		defer cancel()
	}
	return r.runner.Run(ctx, argv)
}

func (r *Repackager) requireDir(dir string) error {
	info, err := r.fs.Stat(dir)
	if err != nil {
		return &Error{Type: ValidationError, Op: "open", Path: dir, Message: "folder does not exist", Err: err}
	}
	if !info.IsDir() {
		return &Error{Type: ValidationError, Op: "open", Path: dir, Message: "not a directory"}
	}
	return nil
}

func (r *Repackager) memberCount() (int, error) {
	names, err := r.fs.ReadDir(r.workspace)
	if err != nil {
		return 0, fmt.Errorf("list workspace: %w", err)
	}
	return len(names), nil
}

func (r *Repackager) isPending(path string) bool {
	for _, src := range r.pending {
		if src == path {
			return true
		}
	}
	return false
}

func (r *Repackager) dropPending(path string) {
	kept := r.pending[:0]
	for _, src := range r.pending {
		if src != path {
			kept = append(kept, src)
		}
	}
	r.pending = kept
}

// validKey rejects keys that would name a file outside the destination.
func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.ContainsRune(key, filepath.Separator)
}

// removeVerified removes path and confirms it is gone.
func (r *Repackager) removeVerified(path string) error {
	if err := r.fs.RemoveAll(path); err != nil {
		return err
	}
	if _, err := r.fs.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s still present after removal", path)
	}
	return nil
}
