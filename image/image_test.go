package image_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nufs-project/nufs/image"
)

func openTestImage(t *testing.T) *image.Image {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.img")
	img, err := image.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Close() })
	return img
}

func TestOpenFormatsAFreshImage(t *testing.T) {
	img := openTestImage(t)

	blockBitmap := img.Block(image.BlockBitmapBlock)
	assert.Equal(t, byte(0b0000_0111), blockBitmap[0], "blocks 0-2 should be marked reserved")

	inodeBitmap := img.Region(image.InodeBitmapBlock*image.BlockSize, image.InodeBitmapSize)
	for _, b := range inodeBitmap {
		assert.Equal(t, byte(0), b, "a fresh image should have no inodes allocated")
	}
}

func TestOpenIsIdempotentOnAnExistingImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.img")

	first, err := image.Open(path)
	require.NoError(t, err)
	first.Block(image.FirstDataBlock)[0] = 0xAB
	require.NoError(t, first.Close())

	second, err := image.Open(path)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, byte(0xAB), second.Block(image.FirstDataBlock)[0],
		"reopening an existing image must not reformat it")
}

func TestBlockPanicsOutOfRange(t *testing.T) {
	img := openTestImage(t)
	assert.Panics(t, func() { img.Block(image.NBlocks) })
	assert.Panics(t, func() { img.Block(-1) })
}

func TestBlockViewsShareBackingMemory(t *testing.T) {
	img := openTestImage(t)
	img.Block(5)[10] = 42
	assert.Equal(t, byte(42), img.Block(5)[10])
}
