package fs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/nufs-project/nufs/image"
	"github.com/nufs-project/nufs/inode"
)

// Check walks the mounted image and verifies the quantified invariants in
// spec §8.1. Unlike a fail-fast validator, it keeps going after finding a
// violation so one run reports everything wrong with the image, using
// hashicorp/go-multierror to accumulate them. A nil return means the
// image is internally consistent.
func (fs *FS) Check() error {
	var result *multierror.Error

	for i := uint32(0); i < image.InodeCount; i++ {
		rec := fs.inodes.Get(inode.Number(i))
		if !rec.IsAllocated() {
			continue
		}

		// Invariant 1: block referenced by an in-use inode is allocated.
		if !fs.blocks.Get(uint(rec.Block())) {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d: block %d is referenced but not marked allocated", i, rec.Block()))
		}

		if rec.Size() > image.BlockSize {
			// Invariant 2: every live indirect entry is allocated and distinct.
			seen := map[uint32]bool{rec.Block(): true}
			blocksUsed := (rec.Size() + image.BlockSize - 1) / image.BlockSize
			for logical := uint32(0); logical < blocksUsed; logical++ {
				phys := fs.inodes.BlockNumber(rec, logical)
				if phys < 0 {
					continue
				}
				physBlock := uint32(phys)
				if !fs.blocks.Get(uint(physBlock)) {
					result = multierror.Append(result, fmt.Errorf(
						"inode %d: indirect slot %d (block %d) is not marked allocated",
						i, logical, physBlock))
				}
				if seen[physBlock] {
					result = multierror.Append(result, fmt.Errorf(
						"inode %d: block %d appears more than once in its extent", i, physBlock))
				}
				seen[physBlock] = true
			}
		}

		// Invariant 3: directories are a whole number of entries, capped
		// at one block.
		if rec.IsDirectory() {
			if rec.Size()%image.DirentSize != 0 {
				result = multierror.Append(result, fmt.Errorf(
					"inode %d: directory size %d is not a multiple of the entry size %d",
					i, rec.Size(), image.DirentSize))
			}
			if rec.Size() > image.BlockSize {
				result = multierror.Append(result, fmt.Errorf(
					"inode %d: directory size %d exceeds one block", i, rec.Size()))
			}
		}
	}

	// Walk the directory tree from the root and report every entry that
	// points at an unallocated inode. The walk only descends into inodes
	// with the directory bit set; it reports nothing about a regular file
	// whose data would be read as entries by a path that continues past
	// it, so invariant 4 (intermediate components are directories) is not
	// verified here.
	visited := make(map[uint32]bool)
	var walk func(i uint32)
	walk = func(i uint32) {
		if visited[i] {
			return
		}
		visited[i] = true
		rec := fs.inodes.Get(inode.Number(i))
		if !rec.IsDirectory() {
			return
		}
		for _, name := range fs.dir.Names(rec) {
			child := fs.dir.Lookup(rec, name)
			if child < 0 {
				continue
			}
			childRec := fs.inodes.Get(inode.Number(child))
			if !childRec.IsAllocated() {
				result = multierror.Append(result, fmt.Errorf(
					"directory %d: entry %q points at unallocated inode %d", i, name, child))
				continue
			}
			walk(uint32(child))
		}
	}
	walk(image.RootInode)

	return result.ErrorOrNil()
}
