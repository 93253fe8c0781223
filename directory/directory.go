// Package directory implements the directory representation (spec §3.4,
// §4.5) — a packed array of fixed-width (name, inode) entries living in a
// single data block — and the whole-path resolver built on top of it
// (spec §4.6).
package directory

import (
	"strings"

	"github.com/nufs-project/nufs/errors"
	"github.com/nufs-project/nufs/image"
	"github.com/nufs-project/nufs/inode"
)

// Entry is a view onto one fixed-width directory entry: a null-padded
// name buffer followed by a 4-byte inode index.
type Entry struct {
	data []byte
}

// Name returns the entry's name, stopping at the first null byte.
func (e Entry) Name() string {
	nul := 0
	for nul < image.DirNameLength && e.data[nul] != 0 {
		nul++
	}
	return string(e.data[:nul])
}

func (e Entry) setName(name string) {
	for i := range e.data[:image.DirNameLength] {
		e.data[i] = 0
	}
	copy(e.data[:image.DirNameLength], name)
}

// Inumber returns the inode number this entry points to.
func (e Entry) Inumber() inode.Number {
	n := uint32(e.data[image.DirNameLength]) |
		uint32(e.data[image.DirNameLength+1])<<8 |
		uint32(e.data[image.DirNameLength+2])<<16 |
		uint32(e.data[image.DirNameLength+3])<<24
	return inode.Number(n)
}

func (e Entry) setInumber(n inode.Number) {
	off := image.DirNameLength
	e.data[off] = byte(n)
	e.data[off+1] = byte(n >> 8)
	e.data[off+2] = byte(n >> 16)
	e.data[off+3] = byte(n >> 24)
}

// Directory operates on the entries stored in a directory inode's data
// block. It is stateless: every call takes the owning inode record.
type Directory struct {
	img *image.Image
}

// New returns a Directory bound to img's data blocks.
func New(img *image.Image) *Directory {
	return &Directory{img: img}
}

func (d *Directory) entries(dd inode.Record) []Entry {
	count := int(dd.Size()) / image.DirentSize
	block := d.img.Block(int(dd.Block()))
	out := make([]Entry, count)
	for i := 0; i < count; i++ {
		start := i * image.DirentSize
		out[i] = Entry{data: block[start : start+image.DirentSize]}
	}
	return out
}

// Lookup does a linear scan for name and returns its inode number, or -1
// if there's no match (spec §4.5).
func (d *Directory) Lookup(dd inode.Record, name string) int {
	for _, entry := range d.entries(dd) {
		if entry.Name() == name {
			return int(entry.Inumber())
		}
	}
	return -1
}

// Put appends a new (name, inum) entry. It fails with ErrAlreadyExists if
// name is already present, or ErrNameTooLong if name doesn't fit in the
// entry's name buffer including its terminator. Put never grows the
// inode; directories are capped at one block (spec §4.5, §9).
func (d *Directory) Put(dd inode.Record, name string, inum inode.Number) error {
	if d.Lookup(dd, name) >= 0 {
		return errors.ErrAlreadyExists
	}
	if len(name) >= image.DirNameLength {
		return errors.ErrNameTooLong
	}
	if int(dd.Size())+image.DirentSize > image.BlockSize {
		return errors.ErrNoSpace
	}

	count := int(dd.Size()) / image.DirentSize
	block := d.img.Block(int(dd.Block()))
	start := count * image.DirentSize
	entry := Entry{data: block[start : start+image.DirentSize]}
	entry.setName(name)
	entry.setInumber(inum)
	dd.SetSize(dd.Size() + image.DirentSize)
	return nil
}

// Delete removes the entry named name by swapping the last entry into its
// slot and shrinking the directory by one entry (spec §4.5: order within
// the array is not significant). Returns ErrNoSuchEntry if name isn't
// present.
func (d *Directory) Delete(dd inode.Record, name string) error {
	entries := d.entries(dd)
	for _, entry := range entries {
		if entry.Name() != name {
			continue
		}
		last := entries[len(entries)-1]
		copy(entry.data, last.data)
		dd.SetSize(dd.Size() - image.DirentSize)
		return nil
	}
	return errors.ErrNoSuchEntry
}

// Names returns every entry's name, in storage order (which is not
// meaningful after any Delete).
func (d *Directory) Names(dd inode.Record) []string {
	entries := d.entries(dd)
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	return names
}

// FindPath resolves a slash-separated path to an inode number, starting
// from the root (spec §4.6). It does not dereference symlinks (none
// exist) and does not verify that intermediate components are
// directories — callers that need that guarantee check it themselves.
func (d *Directory) FindPath(inodes *inode.Store, path string) int {
	if path == "/" || path == "" {
		return image.RootInode
	}

	current := image.RootInode
	trimmed := strings.TrimPrefix(path, "/")
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == "" {
			continue
		}
		if len(segment) >= image.DirNameLength {
			return -1
		}
		rec := inodes.Get(inode.Number(current))
		next := d.Lookup(rec, segment)
		if next == -1 {
			return -1
		}
		current = next
	}
	return current
}
