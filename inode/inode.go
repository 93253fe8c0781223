// Package inode implements the inode table and inode allocator (spec
// §3.3, §4.4): a bitmap-backed table of fixed-size records plus the
// extent map that transitions a file between a direct and a
// single-indirect representation as it grows and shrinks.
package inode

import (
	"encoding/binary"

	"github.com/nufs-project/nufs/allocator"
	"github.com/nufs-project/nufs/errors"
	"github.com/nufs-project/nufs/image"
)

// Number identifies an inode by its slot in the inode table.
type Number uint32

// entriesPerIndirectBlock is how many uint32 block indices fit in one
// indirect block.
const entriesPerIndirectBlock = image.BlockSize / 4

// Record is a view onto one fixed-size inode record inside the mapped
// image. Field accesses read and write through to the mapping directly,
// matching spec §4.1's "pointer-into-mapping" contract for get_inode.
type Record struct {
	data []byte
}

func recordOffset(i Number) int {
	return image.InodeBitmapBlock*image.BlockSize + image.InodeBitmapSize +
		int(i)*image.InodeRecordSize
}

// Refs is 0 if the inode slot is free, 1 if it's in use (spec §3.3: there
// is no cross-directory sharing, so refs is effectively a boolean).
func (r Record) Refs() uint32 { return binary.LittleEndian.Uint32(r.data[0:4]) }
func (r Record) SetRefs(v uint32) {
	binary.LittleEndian.PutUint32(r.data[0:4], v)
}

// Mode holds the POSIX mode bits; the high nibble encodes the object type.
func (r Record) Mode() uint32 { return binary.LittleEndian.Uint32(r.data[4:8]) }
func (r Record) SetMode(v uint32) {
	binary.LittleEndian.PutUint32(r.data[4:8], v)
}

// Size is the number of bytes of valid user data (or, for directories,
// the byte length of the packed entry array).
func (r Record) Size() uint32 { return binary.LittleEndian.Uint32(r.data[8:12]) }
func (r Record) SetSize(v uint32) {
	binary.LittleEndian.PutUint32(r.data[8:12], v)
}

// Block is the direct data block if Size <= BlockSize, or the indirect
// block if Size > BlockSize.
func (r Record) Block() uint32 { return binary.LittleEndian.Uint32(r.data[12:16]) }
func (r Record) SetBlock(v uint32) {
	binary.LittleEndian.PutUint32(r.data[12:16], v)
}

// IsDirectory reports whether the high mode nibble marks this a directory.
func (r Record) IsDirectory() bool {
	return r.Mode()&0o040000 != 0
}

// IsAllocated reports whether this inode slot is currently in use.
func (r Record) IsAllocated() bool { return r.Refs() > 0 }

// Store is the inode table: get/allocate/free inode records and maintain
// each inode's extent map.
type Store struct {
	img    *image.Image
	inodes allocator.Allocator
	blocks *allocator.Allocator
}

// NewStore builds an inode store over img, using blocks as the block
// allocator for growing and shrinking file extents (spec §4.4 depends on
// the block allocator from spec §4.3).
func NewStore(img *image.Image, blocks *allocator.Allocator) *Store {
	bitmapBytes := img.Region(image.InodeBitmapBlock*image.BlockSize, image.InodeBitmapSize)
	return &Store{
		img:    img,
		inodes: allocator.New(bitmapBytes, image.InodeCount),
		blocks: blocks,
	}
}

// Get returns a view of inode i. It is constant-time pointer arithmetic
// into the inode table region of the mapping.
func (s *Store) Get(i Number) Record {
	off := recordOffset(i)
	return Record{data: s.img.Region(off, image.InodeRecordSize)}
}

// Alloc finds the first free inode slot, marks it used, and returns its
// number. It does not initialize the record; the caller must set refs,
// mode, size, and block before publishing it in a directory.
func (s *Store) Alloc() (Number, error) {
	i, err := s.inodes.Allocate()
	if err != nil {
		return 0, err
	}
	return Number(i), nil
}

// Free clears inode i's bit in the inode bitmap. It does not free the
// inode's data blocks; that's the caller's responsibility.
func (s *Store) Free(i Number) {
	s.inodes.Free(uint(i))
}

// indirectEntries returns a copy of the indirect block's entries as a
// slice of uint32 block indices; writes go through setIndirectEntry.
func (s *Store) indirectEntries(indirectBlock uint32) []uint32 {
	raw := s.img.Block(int(indirectBlock))
	entries := make([]uint32, entriesPerIndirectBlock)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
	}
	return entries
}

func (s *Store) setIndirectEntry(indirectBlock uint32, slot int, value uint32) {
	raw := s.img.Block(int(indirectBlock))
	binary.LittleEndian.PutUint32(raw[slot*4:slot*4+4], value)
}

func blockCount(size uint32) uint32 {
	return (size + image.BlockSize - 1) / image.BlockSize
}

// BlockNumber implements the extent map (spec §4.4): it translates a
// file's logical block index to the physical block that holds it. It
// returns -1 for a direct extent's logical index other than 0, or for an
// index beyond the indirect block's capacity. It does not compare logical
// against ceil(size/BlockSize): for an indirect extent an index past the
// record's valid range returns whatever the unused indirect slot holds,
// and avoiding that is the caller's responsibility.
func (s *Store) BlockNumber(rec Record, logical uint32) int {
	if rec.Size() <= image.BlockSize {
		if logical == 0 {
			return int(rec.Block())
		}
		return -1
	}
	entries := s.indirectEntries(rec.Block())
	if int(logical) >= len(entries) {
		return -1
	}
	return int(entries[logical])
}

// Grow ensures the inode's extent covers targetBlocks data blocks,
// allocating new blocks (and, if necessary, converting a direct extent to
// an indirect one) as needed. It never touches rec.Size; the caller
// updates it only after Grow succeeds. If allocation runs out of space
// partway through, Grow returns errors.ErrNoSpace leaving whatever blocks
// it already allocated in place (spec §4.4, §7): the extent is left
// larger than the still-unchanged size, and nothing is rolled back.
func (s *Store) Grow(rec Record, targetBlocks uint32) error {
	current := blockCount(rec.Size())
	if targetBlocks <= current {
		return nil
	}

	if rec.Size() <= image.BlockSize && targetBlocks > 1 {
		indirectBlock, err := s.blocks.Allocate()
		if err != nil {
			return errors.ErrNoSpace
		}
		s.setIndirectEntry(uint32(indirectBlock), 0, rec.Block())
		rec.SetBlock(uint32(indirectBlock))
		current = 1
	}

	if current >= 1 {
		for current < targetBlocks {
			blockID, err := s.blocks.Allocate()
			if err != nil {
				return errors.ErrNoSpace
			}
			s.setIndirectEntry(rec.Block(), int(current), uint32(blockID))
			current++
		}
	}
	return nil
}

// Shrink frees data blocks no longer needed to represent targetBlocks
// blocks, converting an indirect extent back to direct if the target is a
// single block (spec §4.4). It never touches rec.Size.
func (s *Store) Shrink(rec Record, targetBlocks uint32) {
	if rec.Size() <= image.BlockSize {
		return
	}

	oldCount := blockCount(rec.Size())
	entries := s.indirectEntries(rec.Block())
	for i := targetBlocks; i < oldCount; i++ {
		s.blocks.Free(uint(entries[i]))
	}

	if targetBlocks == 1 {
		preserved := entries[0]
		s.blocks.Free(uint(rec.Block()))
		rec.SetBlock(preserved)
	}
}
