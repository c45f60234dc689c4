package server

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/greut/iiif-tiler/config"
	"github.com/greut/iiif-tiler/iiif"
	"github.com/greut/iiif-tiler/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExport(t *testing.T) {
	c, err := config.New()
	require.NoError(t, err)

	s := store.NewMemory()
	ctx := context.Background()

	info, err := json.Marshal(iiif.NewImageInfo(iiif.ServiceURL(c.BaseURL, c.Prefix, "pano"), 2048, 1024, 1024))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "pano", store.InfoPath, info))

	var paths = []string{
		"0,0,1024,1024/1024,/0/default.jpg",
		"1024,0,1024,1024/1024,/0/default.jpg",
		"full/full/0/default.jpg",
	}
	for _, path := range paths[:2] {
		require.NoError(t, s.Put(ctx, "pano", path, []byte(path)))
	}

	ts := httptest.NewServer(New(c, s, nil, zap.NewNop()).Router())
	defer ts.Close()

	// the full size image is missing
	resp, _ := get(t, ts.URL+"/iiif/pano/tiles.zip", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.NoError(t, s.Put(ctx, "pano", paths[2], []byte(paths[2])))

	resp, body := get(t, ts.URL+"/iiif/pano/tiles.zip", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))

	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	var names []string
	for _, f := range archive.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, paths, names)

	resp, _ = get(t, ts.URL+"/iiif/missing/tiles.zip", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
