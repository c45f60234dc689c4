// Package store persists derivative bytes, keyed by image identifier and
// the path of the derivative below it.
//
// Puts are idempotent: a derivative is created when absent and overwritten
// when present.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/greut/iiif-tiler/config"
)

// ErrNotFound is returned by Get when nothing was stored under the key.
var ErrNotFound = errors.New("not found")

// InfoPath is where the info document of an image is stored.
const InfoPath = "info.json"

// Store is the durable byte store shared by the pipeline and the server.
type Store interface {
	Put(ctx context.Context, id, path string, data []byte) error
	Get(ctx context.Context, id, path string) ([]byte, error)
	Exists(ctx context.Context, id, path string) (bool, error)
}

// Open builds the store described by the configuration.
func Open(ctx context.Context, c config.Store) (Store, error) {
	switch c.Kind {
	case "memory":
		return NewMemory(), nil
	case "disk":
		return NewDisk(c.Path)
	case "redis":
		return NewRedis(ctx, c.Redis)
	case "oss":
		return NewOSS(c.OSS)
	}
	return nil, fmt.Errorf("unknown store %#v", c.Kind)
}

// Key joins the escaped identifier and the relative path. An identifier
// may contain slashes, the key always has exactly one before the path.
func Key(id, path string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	if id == "" || path == "" {
		return "", fmt.Errorf("empty key %#v %#v", id, path)
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("invalid path %#v", path)
		}
	}

	escaped := url.PathEscape(id)
	switch escaped {
	case ".":
		escaped = "%2E"
	case "..":
		escaped = "%2E%2E"
	}

	return escaped + "/" + path, nil
}
