// Package fs wires the image, allocator, inode, and directory layers
// together into the adapter surface spec §6.2 describes: the operations a
// host filesystem adapter calls to implement access, getattr, mknod,
// mkdir, unlink, rmdir, rename, truncate, read, write, and readdir.
//
// Nothing in this package does its own locking (spec §5): callers must
// serialize access, which is exactly what fuseadapter's mutex is for.
package fs

import (
	"path"

	"github.com/nufs-project/nufs/allocator"
	"github.com/nufs-project/nufs/directory"
	"github.com/nufs-project/nufs/errors"
	"github.com/nufs-project/nufs/image"
	"github.com/nufs-project/nufs/inode"
	"github.com/nufs-project/nufs/slist"
)

// FS is a mounted filesystem backed by one image file.
type FS struct {
	img    *image.Image
	blocks allocator.Allocator
	inodes *inode.Store
	dir    *directory.Directory
}

// Attr is the subset of inode fields the adapter surface exposes for
// getattr.
type Attr struct {
	Mode  uint32
	Size  int64
	Nlink uint32
}

// Open opens (or creates and formats) the image at path and mounts it.
func Open(path string) (*FS, error) {
	img, err := image.Open(path)
	if err != nil {
		return nil, err
	}

	blockBitmap := img.Region(image.BlockBitmapBlock*image.BlockSize, image.NBlocks/8)
	blocks := allocator.New(blockBitmap, image.NBlocks)
	inodes := inode.NewStore(img, &blocks)
	dir := directory.New(img)

	fsys := &FS{img: img, blocks: blocks, inodes: inodes, dir: dir}
	if err := fsys.ensureRoot(); err != nil {
		return nil, err
	}
	return fsys, nil
}

// Close flushes and unmaps the backing image.
func (fs *FS) Close() error {
	return fs.img.Close()
}

// ensureRoot initializes inode 0 as the root directory the first time the
// image is mounted (spec §3.3: "Inode 0 is the root directory, created at
// mount time").
func (fs *FS) ensureRoot() error {
	root := fs.inodes.Get(image.RootInode)
	if root.IsAllocated() {
		return nil
	}

	i, err := fs.inodes.Alloc()
	if err != nil {
		return err
	}
	if i != image.RootInode {
		// A fresh image's inode bitmap has no bits set, so the first
		// allocation is always inode 0. Anything else means the image
		// is corrupt.
		return errors.ErrIO.WithMessage("root inode slot was not free on a fresh image")
	}

	blk, err := fs.blocks.Allocate()
	if err != nil {
		return err
	}

	root.SetRefs(1)
	root.SetMode(image.DefaultDirMode)
	root.SetSize(0)
	root.SetBlock(uint32(blk))
	return nil
}

func (fs *FS) resolve(p string) int {
	return fs.dir.FindPath(fs.inodes, p)
}

func splitPath(p string) (dir, name string) {
	return path.Dir(p), path.Base(p)
}

// freeData releases every data block owned by rec, direct or indirect,
// including the indirect block itself if present.
func (fs *FS) freeData(rec inode.Record) {
	if rec.Size() <= image.BlockSize {
		fs.blocks.Free(uint(rec.Block()))
		return
	}
	blocksUsed := (rec.Size() + image.BlockSize - 1) / image.BlockSize
	for logical := uint32(0); logical < blocksUsed; logical++ {
		phys := fs.inodes.BlockNumber(rec, logical)
		if phys >= 0 {
			fs.blocks.Free(uint(phys))
		}
	}
	fs.blocks.Free(uint(rec.Block()))
}

// Access resolves path and succeeds iff it exists (spec §6.2).
func (fs *FS) Access(path string) error {
	if fs.resolve(path) == -1 {
		return errors.ErrNoSuchEntry
	}
	return nil
}

// Getattr resolves path and fills an Attr from the inode it names.
func (fs *FS) Getattr(path string) (Attr, error) {
	i := fs.resolve(path)
	if i == -1 {
		return Attr{}, errors.ErrNoSuchEntry
	}
	rec := fs.inodes.Get(inode.Number(i))
	return Attr{Mode: rec.Mode(), Size: int64(rec.Size()), Nlink: rec.Refs()}, nil
}

// Mknod creates a filesystem object with the given mode at path; Mkdir
// calls it with the directory bit set. It
// resolves the parent before allocating anything, so a missing parent or
// a name collision doesn't leak an inode or block the way the reference
// implementation's mknod does when directory_put fails after allocation
// (see DESIGN.md).
func (fs *FS) Mknod(p string, mode uint32) error {
	parentPath, name := splitPath(p)
	parentInum := fs.resolve(parentPath)
	if parentInum == -1 {
		return errors.ErrNoSuchEntry
	}
	if len(name) >= image.DirNameLength {
		return errors.ErrNameTooLong
	}
	parentRec := fs.inodes.Get(inode.Number(parentInum))
	if fs.dir.Lookup(parentRec, name) >= 0 {
		return errors.ErrAlreadyExists
	}

	inum, err := fs.inodes.Alloc()
	if err != nil {
		return err
	}
	blk, err := fs.blocks.Allocate()
	if err != nil {
		fs.inodes.Free(inum)
		return err
	}

	rec := fs.inodes.Get(inum)
	rec.SetRefs(1)
	rec.SetMode(mode)
	rec.SetSize(0)
	rec.SetBlock(uint32(blk))

	if err := fs.dir.Put(parentRec, name, inum); err != nil {
		fs.blocks.Free(uint(blk))
		fs.inodes.Free(inum)
		return err
	}
	return nil
}

// Mkdir creates a directory at path, OR-ing the directory bit into mode
// (spec §6.2).
func (fs *FS) Mkdir(path string, mode uint32) error {
	return fs.Mknod(path, mode|0o040000)
}

// Unlink removes a regular file: its data blocks and inode are freed and
// its entry is removed from its actual parent directory (spec §6.2; see
// DESIGN.md for why this resolves the parent rather than hardcoding root
// the way the reference implementation does).
func (fs *FS) Unlink(p string) error {
	inum := fs.resolve(p)
	if inum == -1 {
		return errors.ErrNoSuchEntry
	}
	parentPath, name := splitPath(p)
	parentInum := fs.resolve(parentPath)
	if parentInum == -1 {
		return errors.ErrNoSuchEntry
	}

	rec := fs.inodes.Get(inode.Number(inum))
	fs.freeData(rec)
	fs.inodes.Free(inode.Number(inum))

	parentRec := fs.inodes.Get(inode.Number(parentInum))
	return fs.dir.Delete(parentRec, name)
}

// Rmdir removes a directory's inode and its entry from its actual parent.
// It does not check the directory is empty (spec §6.2, §9 — this spec
// does not require that check) and, matching spec §6.2's description
// literally, does not free the directory's own data block, only its
// inode.
func (fs *FS) Rmdir(p string) error {
	inum := fs.resolve(p)
	if inum == -1 {
		return errors.ErrNoSuchEntry
	}
	parentPath, name := splitPath(p)
	parentInum := fs.resolve(parentPath)
	if parentInum == -1 {
		return errors.ErrNoSuchEntry
	}

	fs.inodes.Free(inode.Number(inum))
	parentRec := fs.inodes.Get(inode.Number(parentInum))
	return fs.dir.Delete(parentRec, name)
}

// Rename moves src to dst. If dst already exists it's first unlinked from
// its parent directory (without freeing its inode or blocks, matching
// spec §6.2's literal description), then src's inode number is
// re-inserted under dst's name, then removed from src's parent.
func (fs *FS) Rename(src, dst string) error {
	inum := fs.resolve(src)
	if inum == -1 {
		return errors.ErrNoSuchEntry
	}

	srcParentPath, srcName := splitPath(src)
	dstParentPath, dstName := splitPath(dst)
	srcParentInum := fs.resolve(srcParentPath)
	dstParentInum := fs.resolve(dstParentPath)
	if srcParentInum == -1 || dstParentInum == -1 {
		return errors.ErrNoSuchEntry
	}
	if len(dstName) >= image.DirNameLength {
		return errors.ErrNameTooLong
	}

	dstParentRec := fs.inodes.Get(inode.Number(dstParentInum))
	if existing := fs.resolve(dst); existing >= 0 {
		if err := fs.dir.Delete(dstParentRec, dstName); err != nil {
			return err
		}
	}

	if err := fs.dir.Put(dstParentRec, dstName, inode.Number(inum)); err != nil {
		return err
	}

	srcParentRec := fs.inodes.Get(inode.Number(srcParentInum))
	return fs.dir.Delete(srcParentRec, srcName)
}

// Truncate grows or shrinks path's inode to exactly n bytes (spec §6.2,
// §4.4). Growth does not zero the newly reachable bytes, matching the
// reference implementation: freshly allocated blocks can contain
// leftover data from a prior occupant.
func (fs *FS) Truncate(p string, n int64) error {
	inum := fs.resolve(p)
	if inum == -1 {
		return errors.ErrNoSuchEntry
	}
	rec := fs.inodes.Get(inode.Number(inum))

	target := (uint32(n) + image.BlockSize - 1) / image.BlockSize
	if n > int64(rec.Size()) {
		if err := fs.inodes.Grow(rec, target); err != nil {
			return err
		}
	} else if n < int64(rec.Size()) {
		fs.inodes.Shrink(rec, target)
	}
	rec.SetSize(uint32(n))
	return nil
}

// Read copies up to n bytes starting at off from path's data into a
// freshly allocated buffer, clamped at EOF (spec §6.2, §8.3).
func (fs *FS) Read(p string, n int, off int64) ([]byte, error) {
	inum := fs.resolve(p)
	if inum == -1 {
		return nil, errors.ErrNoSuchEntry
	}
	rec := fs.inodes.Get(inode.Number(inum))

	if off >= int64(rec.Size()) {
		return nil, nil
	}
	readable := int64(rec.Size()) - off
	if int64(n) > readable {
		n = int(readable)
	}

	buf := make([]byte, 0, n)
	remaining := n
	cursor := off
	for remaining > 0 {
		logical := uint32(cursor / image.BlockSize)
		blockOff := int(cursor % image.BlockSize)

		physical := fs.inodes.BlockNumber(rec, logical)
		if physical < 0 {
			break
		}
		block := fs.img.Block(physical)
		space := image.BlockSize - blockOff
		chunk := remaining
		if chunk > space {
			chunk = space
		}
		buf = append(buf, block[blockOff:blockOff+chunk]...)
		cursor += int64(chunk)
		remaining -= chunk
	}
	return buf, nil
}

// Write copies data into path's data blocks starting at off, growing the
// file first if the write extends past the current size (spec §6.2).
func (fs *FS) Write(p string, data []byte, off int64) (int, error) {
	inum := fs.resolve(p)
	if inum == -1 {
		return 0, errors.ErrNoSuchEntry
	}

	finalSize := off + int64(len(data))
	if finalSize > int64(fs.inodes.Get(inode.Number(inum)).Size()) {
		if err := fs.Truncate(p, finalSize); err != nil {
			return 0, err
		}
	}
	rec := fs.inodes.Get(inode.Number(inum))

	written := 0
	remaining := len(data)
	cursor := off
	for remaining > 0 {
		logical := uint32(cursor / image.BlockSize)
		blockOff := int(cursor % image.BlockSize)

		physical := fs.inodes.BlockNumber(rec, logical)
		if physical < 0 {
			break
		}
		block := fs.img.Block(physical)
		space := image.BlockSize - blockOff
		chunk := remaining
		if chunk > space {
			chunk = space
		}
		copy(block[blockOff:blockOff+chunk], data[written:written+chunk])
		cursor += int64(chunk)
		written += chunk
		remaining -= chunk
	}
	return written, nil
}

// Readdir lists the names of path's directory entries, plus a synthesized
// "." (spec §6.2).
func (fs *FS) Readdir(p string) ([]string, error) {
	inum := fs.resolve(p)
	if inum == -1 {
		return nil, errors.ErrNoSuchEntry
	}
	rec := fs.inodes.Get(inode.Number(inum))

	list := slist.Cons(".", nil)
	for _, name := range fs.dir.Names(rec) {
		list = slist.Cons(name, list)
	}
	names := list.ToSlice()
	slist.Free(list)
	return names, nil
}
