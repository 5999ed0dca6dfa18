package repack

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
)

// FS is the set of filesystem operations the Repackager performs. OSFS is the
// real implementation; tests substitute an in-memory one.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	// ReadDir returns the names of the entries in dir, sorted.
	ReadDir(dir string) ([]string, error)
	// Copy copies the regular file src to dst, which must not exist.
	Copy(src, dst string) error
	Rename(oldpath, newpath string) error
	RemoveAll(path string) error
	MkdirTemp(dir, pattern string) (string, error)
}

// OSFS implements FS on the local filesystem.
type OSFS struct{}

var _ FS = OSFS{}

func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (OSFS) ReadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	sort.Strings(names)
	return names, nil
}

// Copy streams src into a newly created dst with the source permissions. A
// partially written dst is removed when the copy fails.
func (OSFS) Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

func (OSFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (OSFS) RemoveAll(path string) error { return os.RemoveAll(path) }

func (OSFS) MkdirTemp(dir, pattern string) (string, error) { return os.MkdirTemp(dir, pattern) }
