// Package image implements the lowest layer of the filesystem: a
// fixed-size disk image file memory-mapped for the life of the mount, and
// the block-addressing constants the rest of the core builds on.
package image

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/nufs-project/nufs/errors"
)

const (
	// BlockSize is the size of one block, in bytes.
	BlockSize = 4096
	// NBlocks is the total number of blocks in the image.
	NBlocks = 256

	// BlockBitmapBlock is the block holding the block-allocation bitmap.
	BlockBitmapBlock = 0
	// InodeBitmapBlock is the block where the inode bitmap begins; the
	// inode table immediately follows it in the same and next block.
	InodeBitmapBlock = 1
	// NumInodeTableBlocks is the number of blocks (including the one the
	// inode bitmap shares) given over to the inode bitmap + inode table.
	NumInodeTableBlocks = 2
	// FirstDataBlock is the first block index available for file and
	// directory data.
	FirstDataBlock = 1 + NumInodeTableBlocks

	// DirNameLength is the fixed capacity, in bytes, of a directory entry's
	// name field, including the null terminator.
	DirNameLength = 48
	// DirentSize is the on-disk size of one directory entry: DirNameLength
	// bytes of name plus a 4-byte inode index.
	DirentSize = DirNameLength + 4

	// InodeRecordSize is the on-disk size of one inode record: four
	// little-endian uint32 fields (refs, mode, size, block).
	InodeRecordSize = 16
	// InodeBitmapSize is the number of bytes reserved for the inode bitmap.
	// It's sized for a round 512-inode capacity; the inode table itself
	// only has room for InodeCount of those (see below), so the last few
	// bits are never set. This keeps the whole inode bitmap + inode table
	// region inside exactly NumInodeTableBlocks blocks, matching the
	// layout table in spec §6.1 (table continuation ends at block 2, data
	// starts at block 3) instead of spilling into the data region.
	InodeBitmapSize = 64
	// InodeCount is the number of inode records that fit in the space left
	// over in NumInodeTableBlocks blocks after the inode bitmap.
	InodeCount = (NumInodeTableBlocks*BlockSize - InodeBitmapSize) / InodeRecordSize

	// RootInode is the inode number of the filesystem root directory.
	RootInode = 0

	// DefaultDirMode is the mode stored for the root directory at format
	// time: a directory (high nibble 0o04) with rwxr-xr-x permissions.
	DefaultDirMode = 0o040755
)

// Image is a fixed-size disk image file, memory-mapped read/write for the
// duration of the mount. Blocks are addressed by 0-based index; Block
// returns a slice that aliases the mapping, so writes through it are
// writes to the image.
type Image struct {
	file    *os.File
	mapping []byte
}

// Open opens or creates the image file at path, ensures it's exactly
// NBlocks*BlockSize bytes (zero-filling a newly created file), memory-maps
// it, and formats it if it was just created.
func Open(path string) (*Image, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	const wantSize = int64(NBlocks) * BlockSize
	freshlyCreated := info.Size() == 0
	if info.Size() != wantSize {
		if err := file.Truncate(wantSize); err != nil {
			file.Close()
			return nil, err
		}
	}

	mapping, err := unix.Mmap(
		int(file.Fd()), 0, int(wantSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED,
	)
	if err != nil {
		file.Close()
		return nil, err
	}

	img := &Image{file: file, mapping: mapping}
	if freshlyCreated {
		img.format()
	}
	return img, nil
}

// Block returns the BlockSize-byte slice of the mapping for block i. The
// slice aliases the mapping directly; modifying it modifies the image.
func (img *Image) Block(i int) []byte {
	if i < 0 || i >= NBlocks {
		panic("image: block index out of range")
	}
	start := i * BlockSize
	return img.mapping[start : start+BlockSize]
}

// Region returns a byte-granular slice of the mapping starting at byte
// offset and running for length bytes. Unlike Block, the range need not be
// block-aligned; it's used for structures like the inode table that are
// sized and placed independently of block boundaries within the reserved
// region.
func (img *Image) Region(offset, length int) []byte {
	return img.mapping[offset : offset+length]
}

// format clears the bitmaps and marks the reserved blocks (both bitmap
// blocks and the first inode-table block) as allocated, per spec §4.1.
func (img *Image) format() {
	for i := range img.Block(BlockBitmapBlock) {
		img.Block(BlockBitmapBlock)[i] = 0
	}
	for i := range img.Block(InodeBitmapBlock) {
		img.Block(InodeBitmapBlock)[i] = 0
	}

	blockBitmap := img.Block(BlockBitmapBlock)
	for _, reserved := range []int{BlockBitmapBlock, InodeBitmapBlock, InodeBitmapBlock + 1} {
		blockBitmap[reserved/8] |= 1 << uint(reserved%8)
	}
}

// Close flushes the mapping to the backing file and unmaps it.
func (img *Image) Close() error {
	if err := unix.Msync(img.mapping, unix.MS_SYNC); err != nil {
		img.unmapAndClose()
		return errors.ErrIO.WithMessage(err.Error())
	}
	return img.unmapAndClose()
}

func (img *Image) unmapAndClose() error {
	unmapErr := unix.Munmap(img.mapping)
	closeErr := img.file.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}
