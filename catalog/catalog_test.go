package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Catalog {
	t.Helper()

	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestIndex(t *testing.T) {
	c := open(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "lena.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Index(ctx, "lena.jpg", "/incoming/lena.jpg", 1024))
	require.NoError(t, c.Index(ctx, "lena.jpg", "/incoming/lena.jpg", 512))
	require.NoError(t, c.SetDimensions(ctx, "lena.jpg", 512, 2048, 1024))

	image, err := c.Get(ctx, "lena.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/incoming/lena.jpg", image.FilePath)
	assert.Equal(t, 512, image.TileSize)
	assert.Equal(t, 2048, image.Width)
	assert.Equal(t, 1024, image.Height)
	assert.False(t, image.IndexedAt.IsZero())
}

func TestDimensionsBeforeIndex(t *testing.T) {
	c := open(t)
	ctx := context.Background()

	require.NoError(t, c.SetDimensions(ctx, "a/b", 256, 10, 20))
	require.NoError(t, c.Index(ctx, "a/b", "/incoming/b.png", 256))

	image, err := c.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "/incoming/b.png", image.FilePath)
	assert.Equal(t, 10, image.Width)
}

func TestProperties(t *testing.T) {
	c := open(t)
	ctx := context.Background()

	require.NoError(t, c.SaveProperties(ctx, "lena.jpg", map[string]interface{}{
		"title":     "Lena",
		"tile_size": 512,
		"tags":      []string{"portrait", "test"},
	}))

	properties, err := c.Properties(ctx, "lena.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Lena", properties["title"])
	assert.EqualValues(t, 512, properties["tile_size"])
	assert.Equal(t, []interface{}{"portrait", "test"}, properties["tags"])

	require.NoError(t, c.SaveProperties(ctx, "lena.jpg", map[string]interface{}{"title": "Lenna"}))
	properties, err = c.Properties(ctx, "lena.jpg")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"title": "Lenna"}, properties)

	properties, err = c.Properties(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, properties)
}
