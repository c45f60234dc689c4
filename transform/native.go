package transform

import (
	"math"

	"github.com/greut/iiif-tiler/iiif"
	"github.com/pkg/errors"
	"gopkg.in/h2non/bimg.v1"
)

var rotationMissing = "libvips cannot rotate angle that isn't a multiple of 90: %#v"
var formatMissing = "libvips cannot output this format %#v as of yet"
var formatReadMissing = "libvips cannot read this format %#v as of yet"

var bimgTypes = map[iiif.Format]bimg.ImageType{
	iiif.JPG:  bimg.JPEG,
	iiif.TIF:  bimg.TIFF,
	iiif.TIFF: bimg.TIFF,
	iiif.PNG:  bimg.PNG,
	iiif.GIF:  bimg.GIF,
	iiif.JP2:  bimg.MAGICK,
	iiif.PDF:  bimg.PDF,
	iiif.WEBP: bimg.WEBP,
}

// NativeAvailable tells whether libvips can at least write JPEG.
func NativeAvailable() bool {
	return bimg.IsTypeSupportedSave(bimg.JPEG)
}

// Native is the libvips engine.
type Native struct {
	opts Options
}

// NewNative creates the libvips engine.
func NewNative(opts Options) *Native {
	return &Native{opts}
}

// Name of the engine.
func (n *Native) Name() string {
	return "native"
}

// Load wraps the source into a libvips image.
func (n *Native) Load(source []byte) (ImageObject, error) {
	imageType := bimg.DetermineImageType(source)
	if !bimg.IsTypeSupported(imageType) {
		return nil, errors.Wrapf(ErrUnsupported, formatReadMissing, bimg.ImageTypes[imageType])
	}

	image := bimg.NewImage(source)
	size, err := image.Size()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read image header")
	}
	if err := checkArea(n.opts, size.Width, size.Height); err != nil {
		return nil, err
	}

	return &nativeImage{
		image:  image,
		opts:   n.opts,
		width:  size.Width,
		height: size.Height,
	}, nil
}

type nativeImage struct {
	image  *bimg.Image
	opts   Options
	width  int
	height int
}

func (i *nativeImage) Width() int {
	return i.width
}

func (i *nativeImage) Height() int {
	return i.height
}

func (i *nativeImage) ExtractRegion(region iiif.Region) error {
	rect := region.Rectangle(i.width, i.height)
	if rect.Empty() {
		return errors.Errorf("region lies outside of the %dx%d image", i.width, i.height)
	}

	if _, err := i.image.Extract(rect.Min.Y, rect.Min.X, rect.Dx(), rect.Dy()); err != nil {
		return errors.Wrap(err, "bimg couldn't extract the region")
	}
	i.width, i.height = rect.Dx(), rect.Dy()
	return nil
}

func (i *nativeImage) Resize(size iiif.Size) error {
	w, h := size.Dimensions(i.width, i.height)
	if w == i.width && h == i.height {
		return nil
	}
	if err := checkArea(i.opts, w, h); err != nil {
		return err
	}

	options := bimg.Options{
		Width:  w,
		Height: h,
		Force:  true,
	}
	if _, err := i.image.Process(options); err != nil {
		return errors.Wrap(err, "bimg couldn't resize the image")
	}
	i.width, i.height = w, h
	return nil
}

func (i *nativeImage) Rotate(rotation iiif.Rotation) error {
	degrees := math.Mod(rotation.Degrees, 360)
	if !rotation.IsRightAngle() {
		return errors.Wrapf(ErrUnsupported, rotationMissing, rotation.String())
	}

	// the mirror is horizontal and comes first
	if rotation.Mirror {
		if _, err := i.image.Process(bimg.Options{Flop: true}); err != nil {
			return errors.Wrap(err, "bimg couldn't mirror the image")
		}
	}
	if degrees != 0 {
		if _, err := i.image.Rotate(bimg.Angle(int(degrees))); err != nil {
			return errors.Wrap(err, "bimg couldn't rotate the image")
		}
	}

	if degrees == 90 || degrees == 270 {
		i.width, i.height = i.height, i.width
	}
	return nil
}

func (i *nativeImage) AdjustQuality(quality iiif.Quality) error {
	switch quality {
	case iiif.GrayQuality:
		options := bimg.Options{
			Interpretation: bimg.InterpretationBW,
		}
		if _, err := i.image.Process(options); err != nil {
			return errors.Wrap(err, "bimg couldn't convert the image")
		}
	case iiif.BitonalQuality:
		return errors.Wrapf(ErrUnsupported, "libvips cannot render %s", quality)
	}
	return nil
}

func (i *nativeImage) Encode(format iiif.Format) ([]byte, error) {
	imageType, ok := bimgTypes[format]
	if !ok || !bimg.IsTypeSupportedSave(imageType) {
		return nil, errors.Wrapf(ErrUnsupported, formatMissing, format.String())
	}

	options := bimg.Options{
		Type: imageType,
	}
	if imageType == bimg.JPEG {
		options.Quality = jpegQuality(i.opts)
	}

	buffer, err := i.image.Process(options)
	if err != nil {
		return nil, errors.Wrap(err, "bimg couldn't encode the image")
	}
	return buffer, nil
}

func (i *nativeImage) Close() error {
	i.image = nil
	return nil
}
