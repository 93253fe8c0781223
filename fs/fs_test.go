package fs_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nufs-project/nufs/errors"
	"github.com/nufs-project/nufs/fs"
	"github.com/nufs-project/nufs/image"
)

func openTestFS(t *testing.T) *fs.FS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.img")
	fsys, err := fs.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsys.Close() })
	return fsys
}

func TestOpenCreatesARootDirectory(t *testing.T) {
	fsys := openTestFS(t)

	attr, err := fsys.Getattr("/")
	require.NoError(t, err)
	assert.EqualValues(t, image.DefaultDirMode, attr.Mode)
	assert.Zero(t, attr.Size)
}

func TestReopenPreservesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.img")

	first, err := fs.Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Mknod("/hello.txt", 0o100644))
	_, err = first.Write("/hello.txt", []byte("hi"), 0)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := fs.Open(path)
	require.NoError(t, err)
	defer second.Close()

	data, err := second.Read("/hello.txt", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestMknodThenAccessAndGetattr(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mknod("/a.txt", 0o100644))

	assert.NoError(t, fsys.Access("/a.txt"))
	attr, err := fsys.Getattr("/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 0o100644, attr.Mode)
	assert.Zero(t, attr.Size)
}

func TestMknodRejectsDuplicateNames(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mknod("/a.txt", 0o100644))
	err := fsys.Mknod("/a.txt", 0o100644)
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)
}

func TestMknodFailsWithMissingParent(t *testing.T) {
	fsys := openTestFS(t)
	err := fsys.Mknod("/missing/a.txt", 0o100644)
	assert.ErrorIs(t, err, errors.ErrNoSuchEntry)
}

func TestMkdirThenReaddirListsChildren(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mkdir("/sub", 0o755))
	require.NoError(t, fsys.Mknod("/sub/file.txt", 0o100644))

	names, err := fsys.Readdir("/sub")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".", "file.txt"}, names)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mknod("/a.txt", 0o100644))

	n, err := fsys.Write("/a.txt", []byte("hello world"), 0)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	data, err := fsys.Read("/a.txt", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestWritePastEOFGrowsTheFile(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mknod("/a.txt", 0o100644))

	_, err := fsys.Write("/a.txt", []byte("tail"), 10)
	require.NoError(t, err)

	attr, err := fsys.Getattr("/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 14, attr.Size)

	data, err := fsys.Read("/a.txt", 100, 10)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data))
}

func TestWriteSpanningMultipleBlocksRoundTrips(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mknod("/big.bin", 0o100644))

	payload := make([]byte, image.BlockSize*2+37)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := fsys.Write("/big.bin", payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	data, err := fsys.Read("/big.bin", len(payload), 0)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestReadClampsAtEOF(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mknod("/a.txt", 0o100644))
	_, err := fsys.Write("/a.txt", []byte("1234"), 0)
	require.NoError(t, err)

	data, err := fsys.Read("/a.txt", 1000, 2)
	require.NoError(t, err)
	assert.Equal(t, "34", string(data))
}

func TestTruncateShrinkThenGrow(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mknod("/a.txt", 0o100644))
	_, err := fsys.Write("/a.txt", []byte("0123456789"), 0)
	require.NoError(t, err)

	require.NoError(t, fsys.Truncate("/a.txt", 4))
	attr, err := fsys.Getattr("/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 4, attr.Size)

	require.NoError(t, fsys.Truncate("/a.txt", 8))
	attr, err = fsys.Getattr("/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 8, attr.Size)
}

func TestUnlinkFreesTheNameFromItsActualParent(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mkdir("/sub", 0o755))
	require.NoError(t, fsys.Mknod("/sub/a.txt", 0o100644))

	require.NoError(t, fsys.Unlink("/sub/a.txt"))
	assert.ErrorIs(t, fsys.Access("/sub/a.txt"), errors.ErrNoSuchEntry)

	names, err := fsys.Readdir("/sub")
	require.NoError(t, err)
	assert.Equal(t, []string{"."}, names)

	assert.NoError(t, fsys.Access("/sub"), "unlink must not touch the root directory's own entries")
}

func TestRmdirDoesNotCheckEmptiness(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mkdir("/sub", 0o755))
	require.NoError(t, fsys.Mknod("/sub/a.txt", 0o100644))

	require.NoError(t, fsys.Rmdir("/sub"))
	assert.ErrorIs(t, fsys.Access("/sub"), errors.ErrNoSuchEntry)
}

func TestRenameMovesAnEntry(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mknod("/a.txt", 0o100644))
	require.NoError(t, fsys.Rename("/a.txt", "/b.txt"))

	assert.ErrorIs(t, fsys.Access("/a.txt"), errors.ErrNoSuchEntry)
	assert.NoError(t, fsys.Access("/b.txt"))
}

func TestRenameOverExistingDestinationReplacesIt(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mknod("/a.txt", 0o100644))
	require.NoError(t, fsys.Mknod("/b.txt", 0o100644))
	_, err := fsys.Write("/a.txt", []byte("new"), 0)
	require.NoError(t, err)

	require.NoError(t, fsys.Rename("/a.txt", "/b.txt"))

	data, err := fsys.Read("/b.txt", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestCheckPassesOnAFreshImage(t *testing.T) {
	fsys := openTestFS(t)
	require.NoError(t, fsys.Mkdir("/sub", 0o755))
	require.NoError(t, fsys.Mknod("/sub/a.txt", 0o100644))
	_, err := fsys.Write("/sub/a.txt", []byte("hello"), 0)
	require.NoError(t, err)

	assert.NoError(t, fsys.Check())
}
