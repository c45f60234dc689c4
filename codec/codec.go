// Package codec probes the pixel dimensions of source images.
package codec

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/barasher/go-exiftool"
	"github.com/pkg/errors"
	"gopkg.in/h2non/bimg.v1"

	// source formats known to the decoder
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Prober reads the dimensions of an image file. It may block, callers are
// expected to run it off their dispatch loop.
type Prober interface {
	Dimensions(ctx context.Context, path string) (width, height int, err error)
}

// New returns the prober matching the given kind: decoder or exiftool.
func New(kind string) (Prober, error) {
	switch kind {
	case "", "decoder":
		return &Decoder{}, nil
	case "exiftool":
		return NewExifTool()
	}
	return nil, fmt.Errorf("unknown prober %#v (expected decoder or exiftool)", kind)
}

// Decoder reads the image header, through libvips when available and the
// Go decoders otherwise.
type Decoder struct{}

// Dimensions of the image.
func (d *Decoder) Dimensions(ctx context.Context, path string) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	config, _, err := image.DecodeConfig(f)
	if err == nil {
		return config.Width, config.Height, nil
	}

	buffer, readErr := bimg.Read(path)
	if readErr != nil {
		return 0, 0, errors.Wrapf(err, "cannot probe %s", path)
	}
	size, vipsErr := bimg.Size(buffer)
	if vipsErr != nil {
		return 0, 0, errors.Wrapf(vipsErr, "cannot probe %s", path)
	}
	return size.Width, size.Height, nil
}

// ExifTool asks a long running exiftool process. Calls are serialized as
// the process reads one file at a time.
type ExifTool struct {
	mu   sync.Mutex
	tool *exiftool.Exiftool
}

// NewExifTool starts the exiftool process.
func NewExifTool() (*ExifTool, error) {
	tool, err := exiftool.NewExiftool()
	if err != nil {
		return nil, errors.Wrap(err, "cannot start exiftool")
	}
	return &ExifTool{tool: tool}, nil
}

// Dimensions of the image.
func (e *ExifTool) Dimensions(ctx context.Context, path string) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	e.mu.Lock()
	infos := e.tool.ExtractMetadata(path)
	e.mu.Unlock()

	if len(infos) == 0 {
		return 0, 0, errors.Errorf("no metadata extracted from %s", path)
	}
	info := infos[0]
	if info.Err != nil {
		return 0, 0, errors.Wrapf(info.Err, "cannot probe %s", path)
	}

	width, err := info.GetInt("ImageWidth")
	if err != nil {
		return 0, 0, errors.Wrapf(err, "no width for %s", path)
	}
	height, err := info.GetInt("ImageHeight")
	if err != nil {
		return 0, 0, errors.Wrapf(err, "no height for %s", path)
	}
	return int(width), int(height), nil
}

// Close stops the exiftool process.
func (e *ExifTool) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tool.Close()
}
