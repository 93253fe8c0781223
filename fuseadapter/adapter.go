// Package fuseadapter translates github.com/hanwen/go-fuse/v2's
// path-based callbacks into calls against the core filesystem in package
// fs. This is the "host adapter" spec §1 calls an external collaborator:
// everything interesting lives in package fs; this package is thin
// plumbing plus the single mutex spec §5 requires once a real adapter
// starts dispatching callbacks from multiple goroutines.
package fuseadapter

import (
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"

	corefs "github.com/nufs-project/nufs/fs"
)

// FileSystem adapts a *corefs.FS to pathfs.FileSystem. Operations this
// spec marks no-support (link, chmod, utimens, ioctl) are left to the
// embedded default implementation, which returns ENOSYS for anything it
// doesn't override.
type FileSystem struct {
	pathfs.FileSystem
	core *corefs.FS
	mu   sync.Mutex
}

// New wraps core for mounting via pathfs.
func New(core *corefs.FS) *FileSystem {
	return &FileSystem{FileSystem: pathfs.NewDefaultFileSystem(), core: core}
}

func toPath(name string) string {
	if name == "" {
		return "/"
	}
	return "/" + name
}

func errnoStatus(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	if withErrno, ok := err.(interface{ Errno() syscall.Errno }); ok {
		return fuse.Status(withErrno.Errno())
	}
	return fuse.EIO
}

// GetAttr implements "man 2 stat" over the core's Getattr.
func (fsys *FileSystem) GetAttr(name string, _ *fuse.Context) (*fuse.Attr, fuse.Status) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	attr, err := fsys.core.Getattr(toPath(name))
	if err != nil {
		return nil, errnoStatus(err)
	}
	return &fuse.Attr{
		Mode:  attr.Mode,
		Size:  uint64(attr.Size),
		Nlink: attr.Nlink,
	}, fuse.OK
}

// Access implements "man 2 access".
func (fsys *FileSystem) Access(name string, _ uint32, _ *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return errnoStatus(fsys.core.Access(toPath(name)))
}

// Mknod creates a non-directory filesystem object.
func (fsys *FileSystem) Mknod(name string, mode uint32, _ uint32, _ *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return errnoStatus(fsys.core.Mknod(toPath(name), mode))
}

// Mkdir creates a directory.
func (fsys *FileSystem) Mkdir(name string, mode uint32, _ *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return errnoStatus(fsys.core.Mkdir(toPath(name), mode))
}

// Unlink removes a regular file.
func (fsys *FileSystem) Unlink(name string, _ *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return errnoStatus(fsys.core.Unlink(toPath(name)))
}

// Rmdir removes a directory.
func (fsys *FileSystem) Rmdir(name string, _ *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return errnoStatus(fsys.core.Rmdir(toPath(name)))
}

// Rename moves oldName to newName within the same filesystem.
func (fsys *FileSystem) Rename(oldName, newName string, _ *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return errnoStatus(fsys.core.Rename(toPath(oldName), toPath(newName)))
}

// Truncate changes a file's size.
func (fsys *FileSystem) Truncate(name string, size uint64, _ *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return errnoStatus(fsys.core.Truncate(toPath(name), int64(size)))
}

// OpenDir lists a directory's entries.
func (fsys *FileSystem) OpenDir(name string, _ *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	names, err := fsys.core.Readdir(toPath(name))
	if err != nil {
		return nil, errnoStatus(err)
	}

	entries := make([]fuse.DirEntry, 0, len(names))
	for _, childName := range names {
		mode := uint32(fuse.S_IFREG)
		childPath := toPath(name) + "/" + childName
		if childName == "." {
			childPath = toPath(name)
		}
		if attr, err := fsys.core.Getattr(childPath); err == nil {
			mode = attr.Mode
		}
		entries = append(entries, fuse.DirEntry{Name: childName, Mode: mode})
	}
	return entries, fuse.OK
}

// Open returns a file handle backed by the core's Read/Write.
func (fsys *FileSystem) Open(name string, _ uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if err := fsys.core.Access(toPath(name)); err != nil {
		return nil, errnoStatus(err)
	}
	return &file{File: nodefs.NewDefaultFile(), path: toPath(name), core: fsys.core, mu: &fsys.mu}, fuse.OK
}

// Create makes a new file and returns a handle to it in one step.
func (fsys *FileSystem) Create(name string, _ uint32, mode uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if err := fsys.core.Mknod(toPath(name), mode); err != nil {
		return nil, errnoStatus(err)
	}
	return &file{File: nodefs.NewDefaultFile(), path: toPath(name), core: fsys.core, mu: &fsys.mu}, fuse.OK
}

// file is the nodefs.File handle returned from Open/Create. Reads and
// writes go straight through to the core; there is no per-handle buffer.
type file struct {
	nodefs.File
	path string
	core *corefs.FS
	mu   *sync.Mutex
}

func (f *file) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.core.Read(f.path, len(dest), off)
	if err != nil {
		return nil, errnoStatus(err)
	}
	return fuse.ReadResultData(data), fuse.OK
}

func (f *file) Write(data []byte, off int64) (uint32, fuse.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.core.Write(f.path, data, off)
	if err != nil {
		return 0, errnoStatus(err)
	}
	return uint32(n), fuse.OK
}
