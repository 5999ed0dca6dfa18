package repack

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// memFS is an in-memory FS. Paths are slash separated; directories are
// tracked explicitly so Stat distinguishes them from files.
type memFS struct {
	mu    sync.Mutex
	files map[string]string
	dirs  map[string]bool
	temp  int

	// failRemove makes RemoveAll a silent no-op for the named path.
	failRemove map[string]bool
}

func newMemFS(dirs ...string) *memFS {
	m := &memFS{
		files:      make(map[string]string),
		dirs:       map[string]bool{"/": true, "/tmp": true},
		failRemove: make(map[string]bool),
	}
	for _, d := range dirs {
		m.dirs[d] = true
	}
	return m
}

func (m *memFS) write(name, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = content
}

func (m *memFS) exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, f := m.files[name]
	return f || m.dirs[name]
}

func (m *memFS) content(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[name]
}

type memInfo struct {
	name string
	dir  bool
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return 0 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return i.dir }
func (i memInfo) Sys() any           { return nil }

func (i memInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

func (m *memFS) Stat(name string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[name] {
		return memInfo{name: path.Base(name), dir: true}, nil
	}
	if _, ok := m.files[name]; ok {
		return memInfo{name: path.Base(name)}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

func (m *memFS) ReadDir(dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[dir] {
		return nil, &fs.PathError{Op: "readdir", Path: dir, Err: fs.ErrNotExist}
	}
	var names []string
	for name := range m.files {
		if path.Dir(name) == dir {
			names = append(names, path.Base(name))
		}
	}
	for name := range m.dirs {
		if name != dir && path.Dir(name) == dir {
			names = append(names, path.Base(name))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memFS) Copy(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[src]
	if !ok {
		return &fs.PathError{Op: "open", Path: src, Err: fs.ErrNotExist}
	}
	if _, ok := m.files[dst]; ok {
		return &fs.PathError{Op: "open", Path: dst, Err: fs.ErrExist}
	}
	m.files[dst] = data
	return nil
}

func (m *memFS) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[oldpath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrNotExist}
	}
	delete(m.files, oldpath)
	m.files[newpath] = data
	return nil
}

// renameFailFS is a memFS whose renames always fail.
type renameFailFS struct {
	*memFS
}

func (renameFailFS) Rename(oldpath, newpath string) error {
	return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrPermission}
}

func (m *memFS) RemoveAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRemove[p] {
		return nil
	}
	prefix := p + "/"
	for name := range m.files {
		if name == p || strings.HasPrefix(name, prefix) {
			delete(m.files, name)
		}
	}
	for name := range m.dirs {
		if name == p || strings.HasPrefix(name, prefix) {
			delete(m.dirs, name)
		}
	}
	return nil
}

func (m *memFS) MkdirTemp(dir, pattern string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dir == "" {
		dir = "/tmp"
	}
	if !m.dirs[dir] {
		return "", &fs.PathError{Op: "mkdirtemp", Path: dir, Err: fs.ErrNotExist}
	}
	m.temp++
	name := path.Join(dir, fmt.Sprintf("%s%d", pattern, m.temp))
	m.dirs[name] = true
	return name, nil
}

// archiveRunner fakes a 7z-like tool over memFS. Archives are files whose
// content is a newline separated list of member names; "e" writes each
// member into the -o folder, "a" writes the archive listing the members.
type archiveRunner struct {
	fs    *memFS
	calls [][]string
	fail  map[string]error // keyed by subcommand
	// noOutput makes "a" succeed without writing the archive.
	noOutput bool
}

func (r *archiveRunner) Run(ctx context.Context, argv []string) error {
	r.calls = append(r.calls, argv)
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(argv) < 2 {
		return fmt.Errorf("usage")
	}
	if err := r.fail[argv[1]]; err != nil {
		return err
	}
	switch argv[1] {
	case "e":
		folder := strings.TrimPrefix(argv[2], "-o")
		archive := argv[3]
		listing := r.fs.content(archive)
		for _, member := range strings.Split(listing, "\n") {
			if member != "" {
				r.fs.write(path.Join(folder, member), "data:"+member)
			}
		}
		return nil
	case "a":
		if r.noOutput {
			return nil
		}
		var names []string
		for _, member := range argv[3:] {
			names = append(names, path.Base(member))
		}
		r.fs.write(argv[2], strings.Join(names, "\n"))
		return nil
	}
	return fmt.Errorf("unknown subcommand %q", argv[1])
}
