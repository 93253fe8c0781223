// Package allocator implements the first-free bitmap allocator shared by
// the block pool and the inode table (spec §4.3, §4.4). Both allocators
// are the same data structure; only what a "unit" addresses differs.
package allocator

import (
	"github.com/boljen/go-bitmap"

	"github.com/nufs-project/nufs/errors"
)

// Allocator hands out the index of the first zero bit in a bitmap and
// clears bits on free. It does no coalescing and keeps no free list; at
// the scale this filesystem operates at (hundreds of blocks or inodes) a
// linear scan is cheap enough (spec §9).
type Allocator struct {
	bits  bitmap.Bitmap
	units uint
}

// New wraps an existing byte slice as a bitmap allocator over `units` bits.
// The slice is used directly, not copied: for the block and inode bitmaps
// this is a sub-slice of the memory-mapped image, so allocation and free
// operations are immediately visible to anyone else holding the image.
func New(backing []byte, units uint) Allocator {
	return Allocator{bits: bitmap.Bitmap(backing), units: units}
}

// Get returns whether bit i is set.
func (a *Allocator) Get(i uint) bool {
	return a.bits.Get(int(i))
}

// Put sets or clears bit i directly; it is not idempotent for a counter,
// just a direct assignment (spec §4.2).
func (a *Allocator) Put(i uint, v bool) {
	a.bits.Set(int(i), v)
}

// Allocate scans for the first unset bit starting at index 0 (spec §4.3:
// the scan must start at 0, not after any reserved region, because
// reserved units are already marked used), sets it, and returns its index.
// Returns errors.ErrNoSpace if the bitmap is full.
func (a *Allocator) Allocate() (uint, error) {
	for i := uint(0); i < a.units; i++ {
		if !a.bits.Get(int(i)) {
			a.bits.Set(int(i), true)
			return i, nil
		}
	}
	return 0, errors.ErrNoSpace
}

// Free clears bit i. Callers must not double-free; this is not checked
// (spec §4.3: "idempotent is not required").
func (a *Allocator) Free(i uint) {
	a.bits.Set(int(i), false)
}

// Count returns the number of currently-set bits.
func (a *Allocator) Count() uint {
	n := uint(0)
	for i := uint(0); i < a.units; i++ {
		if a.bits.Get(int(i)) {
			n++
		}
	}
	return n
}

// Units returns the total number of addressable units in this allocator.
func (a *Allocator) Units() uint {
	return a.units
}
