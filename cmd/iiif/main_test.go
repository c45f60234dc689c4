package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestTiles(t *testing.T) {
	stdout, _, err := run(t, "tiles", "3000", "2000")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	assert.Len(t, lines, 8)
	assert.Equal(t, "/iiif/id/0,0,1024,1024/1024,/0/default.jpg", lines[0])

	stdout, _, err = run(t, "tiles", "--prefix", "images", "--id", "pano", "2048", "1024", "1024")
	require.NoError(t, err)
	assert.Equal(t, "/images/pano/0,0,1024,1024/1024,/0/default.jpg\n/images/pano/1024,0,1024,1024/1024,/0/default.jpg\n", stdout)

	_, _, err = run(t, "tiles", "0", "10")
	assert.Error(t, err)

	_, _, err = run(t, "tiles", "--prefix", "/", "10", "10")
	assert.Error(t, err)
}

func writeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	filename := filepath.Join(dir, "iiif.toml")
	data := fmt.Sprintf(`
engine = "portable"
catalog = %q

[store]
kind = "disk"
path = %q

[log]
level = "error"
file = %q
`, filepath.Join(dir, "catalog.db"), filepath.Join(dir, "derivatives"), filepath.Join(dir, "iiif.log"))

	require.NoError(t, os.WriteFile(filename, []byte(data), 0o644))
	return filename
}

func TestIngest(t *testing.T) {
	cfg := writeConfig(t)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 300, 200))))
	source := filepath.Join(t.TempDir(), "gray.png")
	require.NoError(t, os.WriteFile(source, buf.Bytes(), 0o644))

	stdout, _, err := run(t, "ingest", "--config", cfg, "--id", "gray", "-p", "title=Gray", source)
	require.NoError(t, err)
	assert.Contains(t, stdout, "gray.png: 2 derivatives")

	root := filepath.Join(filepath.Dir(cfg), "derivatives")
	_, err = os.Stat(filepath.Join(root, "gray", "info.json"))
	assert.NoError(t, err)
}

func TestIngestFailure(t *testing.T) {
	cfg := writeConfig(t)

	source := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(source, []byte("nope"), 0o644))

	_, stderr, err := run(t, "ingest", "--config", cfg, source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 images failed")
	assert.Contains(t, stderr, "broken.png")

	_, _, err = run(t, "ingest", "--config", cfg, "--id", "x", source, source)
	assert.Error(t, err)
}
