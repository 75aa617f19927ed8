// Package posix implements the storage driver abstraction (spec.md §4.8)
// over the local filesystem, so higher layers never call os.* directly and
// get a uniform FileXxx/PathXxx error taxonomy instead of raw *PathError
// values.
package posix

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"pgbr/errkit"
)

// Driver is the POSIX storage backend. It carries no state beyond what the
// OS itself tracks; a zero value is ready to use.
type Driver struct{}

func New() *Driver { return &Driver{} }

// Exists reports whether path is present. A missing path is not an error
// (returns false, nil); any other stat failure is FileOpenError.
func (d *Driver) Exists(path string) (bool, *errkit.Error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errkit.Errno(errkit.KindFileOpen, "stat", path, err)
}

// StorageInfo mirrors the subset of file metadata higher layers need:
// symlinks are reported as such rather than resolved.
type StorageInfo struct {
	Exists bool
	Size   int64
	Mode   fs.FileMode
	IsDir  bool
	Link   string // symlink target, empty if not a symlink
}

// Info stats path. When ignoreMissing is true, a missing path yields a
// zero-value, Exists=false StorageInfo instead of an error.
func (d *Driver) Info(path string, ignoreMissing bool) (StorageInfo, *errkit.Error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) && ignoreMissing {
			return StorageInfo{}, nil
		}
		if os.IsNotExist(err) {
			return StorageInfo{}, errkit.Errno(errkit.KindFileMissing, "stat", path, err)
		}
		return StorageInfo{}, errkit.Errno(errkit.KindFileInfo, "stat", path, err)
	}

	info := StorageInfo{Exists: true, Size: fi.Size(), Mode: fi.Mode(), IsDir: fi.IsDir()}
	if fi.Mode()&os.ModeSymlink != 0 {
		target, lerr := os.Readlink(path)
		if lerr != nil {
			return StorageInfo{}, errkit.Errno(errkit.KindFileInfo, "readlink", path, lerr)
		}
		info.Link = target
	}
	return info, nil
}

// List returns the entries of a directory, excluding "." and "..". Ordering
// is the readdir order, not guaranteed stable; callers that need a
// deterministic order must sort, which List does for convenience here
// (spec.md §4.8: "callers sort").
func (d *Driver) List(path string, errorOnMissing bool, filterRegex *regexp.Regexp) ([]string, *errkit.Error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) && !errorOnMissing {
			return nil, nil
		}
		return nil, errkit.Errno(errkit.KindPathOpen, "opendir", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." {
			continue
		}
		if filterRegex != nil && !filterRegex.MatchString(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// PathCreate creates path as a directory. If the parent is missing and
// parentCreate is true, the full chain is created (MkdirAll); otherwise a
// missing parent is PathCreateError.
func (d *Driver) PathCreate(path string, errorOnExists bool, parentCreate bool, mode os.FileMode) *errkit.Error {
	mkdir := os.Mkdir
	if parentCreate {
		mkdir = os.MkdirAll
	}
	err := mkdir(path, mode)
	if err == nil {
		return nil
	}
	if os.IsExist(err) {
		if errorOnExists {
			return errkit.Errno(errkit.KindPathCreate, "mkdir", path, err)
		}
		return nil
	}
	return errkit.Errno(errkit.KindPathCreate, "mkdir", path, err)
}

// PathRemove removes path. recurse removes non-empty directories
// (RemoveAll); otherwise a non-empty directory fails PathNotEmptyError.
func (d *Driver) PathRemove(path string, errorOnMissing bool, recurse bool) *errkit.Error {
	var err error
	if recurse {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		if errorOnMissing {
			return errkit.Errno(errkit.KindPathMissing, "rmdir", path, err)
		}
		return nil
	}
	if !recurse && isDirNotEmpty(err) {
		return errkit.Errno(errkit.KindPathNotEmpty, "rmdir", path, err)
	}
	return errkit.Errno(errkit.KindPathRemove, "rmdir", path, err)
}

func isDirNotEmpty(err error) bool {
	var perr *fs.PathError
	if pe, ok := err.(*fs.PathError); ok {
		perr = pe
	}
	if perr == nil {
		return false
	}
	return perr.Err.Error() == "directory not empty"
}

// PathSync opens the directory read-only and fsyncs it, forcing its entry
// metadata (renames, creations) to stable storage. ignoreMissing suppresses
// the error for a directory that no longer exists.
func (d *Driver) PathSync(path string, ignoreMissing bool) *errkit.Error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && ignoreMissing {
			return nil
		}
		return errkit.Errno(errkit.KindPathOpen, "open", path, err)
	}
	defer f.Close()

	if err := f.Sync(); err != nil {
		return errkit.Errno(errkit.KindPathSync, "fsync", path, err)
	}
	return nil
}

// Remove deletes a single file (not a directory).
func (d *Driver) Remove(path string, errorOnMissing bool) *errkit.Error {
	err := os.Remove(path)
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) && !errorOnMissing {
		return nil
	}
	return errkit.Errno(errkit.KindFileRemove, "unlink", path, err)
}

// Move renames src to dst atomically. If the parent of dst is missing and
// parentCreate is true, the parent is created and the rename retried once.
// copyRequired is true when src and dst straddle different filesystems
// (EXDEV); the driver never falls back to a copy itself (spec.md §4.8).
func (d *Driver) Move(src, dst string, parentCreate bool) (copyRequired bool, err *errkit.Error) {
	rerr := os.Rename(src, dst)
	if rerr == nil {
		return false, nil
	}

	if os.IsNotExist(rerr) && parentCreate {
		if merr := os.MkdirAll(filepath.Dir(dst), 0o750); merr != nil {
			return false, errkit.Errno(errkit.KindFileMove, "rename", dst, merr)
		}
		rerr = os.Rename(src, dst)
		if rerr == nil {
			return false, nil
		}
	}

	if isCrossDevice(rerr) {
		return true, nil
	}
	return false, errkit.Errno(errkit.KindFileMove, "rename", dst, rerr)
}

func isCrossDevice(err error) bool {
	var perr *fs.PathError
	if pe, ok := err.(*fs.PathError); ok {
		perr = pe
	}
	if perr == nil {
		return false
	}
	return perr.Err.Error() == "invalid cross-device link"
}

// WriteHandle is the atomic-publish write lifecycle: writes land in a
// "name.<tmp>" sibling file and are only made visible under the final name
// on Commit. Any failure prior to Commit leaves only the temp file behind.
type WriteHandle struct {
	final    string
	tmp      string
	file     *os.File
	syncFile bool
	syncDir  bool
}

// OpenWrite begins the write lifecycle for path. If the parent directory is
// missing, it is created once and the open retried.
func (d *Driver) OpenWrite(path string, syncFile, syncDir bool) (*WriteHandle, *errkit.Error) {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		if os.IsNotExist(err) {
			if merr := os.MkdirAll(filepath.Dir(path), 0o750); merr != nil {
				return nil, errkit.Errno(errkit.KindFileOpen, "open", tmp, merr)
			}
			f, err = os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
		}
		if err != nil {
			return nil, errkit.Errno(errkit.KindFileOpen, "open", tmp, err)
		}
	}
	return &WriteHandle{final: path, tmp: tmp, file: f, syncFile: syncFile, syncDir: syncDir}, nil
}

func (w *WriteHandle) Write(p []byte) (int, *errkit.Error) {
	n, err := w.file.Write(p)
	if err != nil {
		return n, errkit.Errno(errkit.KindFileWrite, "write", w.tmp, err)
	}
	return n, nil
}

// Commit closes the temp file (optionally fsyncing it first), renames it
// into place, and optionally fsyncs the parent directory so the rename
// itself is durable.
func (w *WriteHandle) Commit(d *Driver) *errkit.Error {
	if w.syncFile {
		if err := w.file.Sync(); err != nil {
			w.file.Close()
			return errkit.Errno(errkit.KindFileSync, "fsync", w.tmp, err)
		}
	}
	if err := w.file.Close(); err != nil {
		return errkit.Errno(errkit.KindFileClose, "close", w.tmp, err)
	}
	if err := os.Rename(w.tmp, w.final); err != nil {
		return errkit.Errno(errkit.KindFileMove, "rename", w.final, err)
	}
	if w.syncDir {
		return d.PathSync(filepath.Dir(w.final), false)
	}
	return nil
}

// Abandon closes and removes the temp file, leaving no trace of a failed
// write. Safe to call after a failed Write; callers otherwise leave the
// temp file for external garbage collection per spec.md §4.8.
func (w *WriteHandle) Abandon() {
	w.file.Close()
	os.Remove(w.tmp)
}

// ReadHandle is the read lifecycle: Read signals end of file with a
// zero-byte read and a nil error (os.File's io.EOF is not passed on), so
// callers built against the spec's "short read of zero signals EOF"
// contract work unmodified.
type ReadHandle struct {
	file *os.File
}

func (d *Driver) OpenRead(path string) (*ReadHandle, *errkit.Error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkit.Errno(errkit.KindFileMissing, "open", path, err)
		}
		return nil, errkit.Errno(errkit.KindFileOpen, "open", path, err)
	}
	return &ReadHandle{file: f}, nil
}

func (r *ReadHandle) Read(p []byte) (int, *errkit.Error) {
	n, err := r.file.Read(p)
	if err != nil && err != io.EOF {
		return n, errkit.Errno(errkit.KindFileRead, "read", r.file.Name(), err)
	}
	return n, nil
}

func (r *ReadHandle) Close() *errkit.Error {
	if err := r.file.Close(); err != nil {
		return errkit.Errno(errkit.KindFileClose, "close", r.file.Name(), err)
	}
	return nil
}
