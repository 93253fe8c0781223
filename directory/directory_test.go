package directory_test

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nufs-project/nufs/allocator"
	"github.com/nufs-project/nufs/directory"
	"github.com/nufs-project/nufs/errors"
	"github.com/nufs-project/nufs/image"
	"github.com/nufs-project/nufs/inode"
)

type fixture struct {
	inodes *inode.Store
	blocks *allocator.Allocator
	dir    *directory.Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.img")
	img, err := image.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })

	blockBitmap := img.Region(image.BlockBitmapBlock*image.BlockSize, image.NBlocks/8)
	blocks := allocator.New(blockBitmap, image.NBlocks)
	inodes := inode.NewStore(img, &blocks)
	return &fixture{inodes: inodes, blocks: &blocks, dir: directory.New(img)}
}

// newDirInode allocates an inode and a data block and wires them up as an
// empty directory.
func (f *fixture) newDirInode(t *testing.T) inode.Record {
	t.Helper()
	n, err := f.inodes.Alloc()
	require.NoError(t, err)
	blk, err := f.blocks.Allocate()
	require.NoError(t, err)

	rec := f.inodes.Get(n)
	rec.SetRefs(1)
	rec.SetMode(0o040755)
	rec.SetSize(0)
	rec.SetBlock(uint32(blk))
	return rec
}

func TestPutThenLookupRoundTrips(t *testing.T) {
	f := newFixture(t)
	dd := f.newDirInode(t)

	require.NoError(t, f.dir.Put(dd, "hello.txt", 7))
	assert.Equal(t, 7, f.dir.Lookup(dd, "hello.txt"))
	assert.Equal(t, -1, f.dir.Lookup(dd, "missing"))
}

func TestPutRejectsDuplicateNames(t *testing.T) {
	f := newFixture(t)
	dd := f.newDirInode(t)

	require.NoError(t, f.dir.Put(dd, "a", 1))
	err := f.dir.Put(dd, "a", 2)
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)
}

func TestPutRejectsNamesTooLong(t *testing.T) {
	f := newFixture(t)
	dd := f.newDirInode(t)

	tooLong := strings.Repeat("x", image.DirNameLength)
	err := f.dir.Put(dd, tooLong, 1)
	assert.ErrorIs(t, err, errors.ErrNameTooLong)
}

func TestPutFailsOnceTheBlockIsFull(t *testing.T) {
	f := newFixture(t)
	dd := f.newDirInode(t)

	capacity := image.BlockSize / image.DirentSize
	for i := 0; i < capacity; i++ {
		require.NoError(t, f.dir.Put(dd, fmt.Sprintf("f%d", i), inode.Number(i)))
	}

	err := f.dir.Put(dd, "overflow", 999)
	assert.ErrorIs(t, err, errors.ErrNoSpace)
}

func TestDeleteSwapsWithLastEntry(t *testing.T) {
	f := newFixture(t)
	dd := f.newDirInode(t)

	require.NoError(t, f.dir.Put(dd, "a", 1))
	require.NoError(t, f.dir.Put(dd, "b", 2))
	require.NoError(t, f.dir.Put(dd, "c", 3))

	require.NoError(t, f.dir.Delete(dd, "a"))
	assert.ElementsMatch(t, []string{"b", "c"}, f.dir.Names(dd))
	assert.Equal(t, -1, f.dir.Lookup(dd, "a"))
}

func TestDeleteMissingNameFails(t *testing.T) {
	f := newFixture(t)
	dd := f.newDirInode(t)
	err := f.dir.Delete(dd, "nope")
	assert.ErrorIs(t, err, errors.ErrNoSuchEntry)
}

func TestFindPathResolvesNestedEntries(t *testing.T) {
	f := newFixture(t)
	rootNum, err := f.inodes.Alloc()
	require.NoError(t, err)
	require.EqualValues(t, image.RootInode, rootNum)

	rootBlk, err := f.blocks.Allocate()
	require.NoError(t, err)
	root := f.inodes.Get(rootNum)
	root.SetRefs(1)
	root.SetMode(0o040755)
	root.SetSize(0)
	root.SetBlock(uint32(rootBlk))

	child := f.newDirInode(t)
	childNum := inode.Number(1)
	require.NoError(t, f.dir.Put(root, "sub", childNum))

	leafNum := inode.Number(2)
	require.NoError(t, f.dir.Put(child, "leaf.txt", leafNum))

	assert.Equal(t, int(childNum), f.dir.FindPath(f.inodes, "/sub"))
	assert.Equal(t, int(leafNum), f.dir.FindPath(f.inodes, "/sub/leaf.txt"))
	assert.Equal(t, image.RootInode, f.dir.FindPath(f.inodes, "/"))
	assert.Equal(t, -1, f.dir.FindPath(f.inodes, "/sub/missing"))
}
