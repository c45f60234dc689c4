// Package transform renders IIIF derivatives out of source image bytes.
//
// Two engines are available: a portable one written in Go and a native one
// backed by libvips. The engine is picked once at startup and handed to
// whoever needs to render images.
package transform

import (
	"fmt"

	"github.com/greut/iiif-tiler/iiif"
	"github.com/pkg/errors"
)

var (
	// ErrResourceExhausted is returned when an image is too large to be
	// processed, either because it exceeds the configured area or because
	// an allocation blew up while transforming it.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrUnsupported is returned for a format, a rotation or a quality the
	// engine cannot render.
	ErrUnsupported = errors.New("unsupported by engine")
)

// Options are shared by every engine.
type Options struct {
	// MaxArea is the largest amount of pixels an image may have, be it
	// the source or the resized output. Zero means unlimited.
	MaxArea int
	// JPEGQuality is the output quality of JPEG derivatives.
	JPEGQuality int
}

// ImageObject is an in-memory image being transformed. Each step applies in
// place and must be called in the order region, size, rotation, quality,
// format.
type ImageObject interface {
	Width() int
	Height() int
	ExtractRegion(region iiif.Region) error
	Resize(size iiif.Size) error
	Rotate(rotation iiif.Rotation) error
	AdjustQuality(quality iiif.Quality) error
	Encode(format iiif.Format) ([]byte, error)
	Close() error
}

// Engine loads source bytes into an ImageObject.
type Engine interface {
	Name() string
	Load(source []byte) (ImageObject, error)
}

// NewEngine returns the engine matching the given kind: portable, native or
// auto. The latter picks native when libvips is usable.
func NewEngine(kind string, opts Options) (Engine, error) {
	switch kind {
	case "portable":
		return NewPortable(opts), nil
	case "native":
		if !NativeAvailable() {
			return nil, errors.Wrap(ErrUnsupported, "libvips is not available")
		}
		return NewNative(opts), nil
	case "", "auto":
		if NativeAvailable() {
			return NewNative(opts), nil
		}
		return NewPortable(opts), nil
	}
	return nil, fmt.Errorf("unknown engine %#v (expected auto, native or portable)", kind)
}

// Apply renders the derivative described by the request. Steps whose
// parameter leaves the image untouched are skipped and the image is always
// released, whatever happens.
func Apply(engine Engine, source []byte, r iiif.Request) (output []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			output = nil
			err = errors.Wrapf(ErrResourceExhausted, "%s: %v", engine.Name(), p)
		}
	}()

	img, err := engine.Load(source)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	if !r.Region.IsFull() {
		if err := img.ExtractRegion(r.Region); err != nil {
			return nil, errors.Wrapf(err, "region %s", r.Region)
		}
	}

	if !r.Size.IsFull() {
		if err := img.Resize(r.Size); err != nil {
			return nil, errors.Wrapf(err, "size %s", r.Size)
		}
	}

	if !r.Rotation.IsIdentity() {
		if err := img.Rotate(r.Rotation); err != nil {
			return nil, errors.Wrapf(err, "rotation %s", r.Rotation)
		}
	}

	if !r.Quality.IsIdentity() {
		if err := img.AdjustQuality(r.Quality); err != nil {
			return nil, errors.Wrapf(err, "quality %s", r.Quality)
		}
	}

	output, err = img.Encode(r.Format)
	if err != nil {
		return nil, errors.Wrapf(err, "format %s", r.Format)
	}
	return output, nil
}

func checkArea(opts Options, width, height int) error {
	if opts.MaxArea > 0 && width*height > opts.MaxArea {
		return errors.Wrapf(ErrResourceExhausted, "%dx%d is larger than %d pixels", width, height, opts.MaxArea)
	}
	return nil
}

func jpegQuality(opts Options) int {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		return 85
	}
	return opts.JPEGQuality
}
