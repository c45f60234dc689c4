package transform

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/greut/iiif-tiler/iiif"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/tiff"

	// extra decoders
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Portable is the pure Go engine. It reads jpg, png, gif, tif, webp and bmp
// and writes jpg, png, gif and tif.
type Portable struct {
	opts Options
}

// NewPortable creates the pure Go engine.
func NewPortable(opts Options) *Portable {
	return &Portable{opts}
}

// Name of the engine.
func (p *Portable) Name() string {
	return "portable"
}

// Load decodes the source, its dimensions being checked beforehand.
func (p *Portable) Load(source []byte) (ImageObject, error) {
	config, _, err := image.DecodeConfig(bytes.NewReader(source))
	if err != nil {
		return nil, errors.Wrap(err, "cannot read image header")
	}
	if err := checkArea(p.opts, config.Width, config.Height); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(source))
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode image")
	}

	return &portableImage{img: img, opts: p.opts}, nil
}

type portableImage struct {
	img  image.Image
	opts Options
}

func (i *portableImage) Width() int {
	return i.img.Bounds().Dx()
}

func (i *portableImage) Height() int {
	return i.img.Bounds().Dy()
}

func (i *portableImage) ExtractRegion(region iiif.Region) error {
	rect := region.Rectangle(i.Width(), i.Height())
	if rect.Empty() {
		return errors.Errorf("region lies outside of the %dx%d image", i.Width(), i.Height())
	}

	rect = rect.Add(i.img.Bounds().Min)
	if s, ok := i.img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		i.img = s.SubImage(rect)
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), i.img, rect.Min, draw.Src)
	i.img = dst
	return nil
}

func (i *portableImage) Resize(size iiif.Size) error {
	w, h := size.Dimensions(i.Width(), i.Height())
	if w == i.Width() && h == i.Height() {
		return nil
	}
	if err := checkArea(i.opts, w, h); err != nil {
		return err
	}

	i.img = resize.Resize(uint(w), uint(h), i.img, resize.Lanczos3)
	return nil
}

func (i *portableImage) Rotate(rotation iiif.Rotation) error {
	src := toRGBA(i.img)
	if rotation.Mirror {
		src = mirror(src)
	}

	degrees := math.Mod(rotation.Degrees, 360)
	switch degrees {
	case 0:
		i.img = src
	case 90, 180, 270:
		i.img = rotateRightAngle(src, int(degrees))
	default:
		i.img = rotateAny(src, degrees)
	}
	return nil
}

func (i *portableImage) AdjustQuality(quality iiif.Quality) error {
	switch quality {
	case iiif.GrayQuality:
		i.img = toGray(i.img)
	case iiif.BitonalQuality:
		gray := toGray(i.img)
		for n, v := range gray.Pix {
			if v < 128 {
				gray.Pix[n] = 0
			} else {
				gray.Pix[n] = 255
			}
		}
		i.img = gray
	}
	return nil
}

func (i *portableImage) Encode(format iiif.Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case iiif.JPG:
		err = jpeg.Encode(&buf, i.img, &jpeg.Options{Quality: jpegQuality(i.opts)})
	case iiif.PNG:
		err = png.Encode(&buf, i.img)
	case iiif.GIF:
		err = gif.Encode(&buf, i.img, nil)
	case iiif.TIF, iiif.TIFF:
		err = tiff.Encode(&buf, i.img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return nil, errors.Wrapf(ErrUnsupported, "portable engine cannot write %s", format)
	}

	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (i *portableImage) Close() error {
	i.img = nil
	return nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min.Eq(image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func mirror(src *image.RGBA) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetRGBA(w-1-x, y, src.RGBAAt(x, y))
		}
	}
	return dst
}

// rotateRightAngle turns the image clockwise without resampling.
func rotateRightAngle(src *image.RGBA, degrees int) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	var dst *image.RGBA
	if degrees == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.RGBAAt(x, y)
			switch degrees {
			case 90:
				dst.SetRGBA(h-1-y, x, c)
			case 180:
				dst.SetRGBA(w-1-x, h-1-y, c)
			case 270:
				dst.SetRGBA(y, w-1-x, c)
			}
		}
	}
	return dst
}

// rotateAny turns the image clockwise around its center, the canvas growing
// to the bounding box of the rotated image.
func rotateAny(src *image.RGBA, degrees float64) *image.RGBA {
	w, h := float64(src.Bounds().Dx()), float64(src.Bounds().Dy())
	sin, cos := math.Sincos(degrees * math.Pi / 180.)

	nw := math.Ceil(math.Abs(w*cos) + math.Abs(h*sin))
	nh := math.Ceil(math.Abs(w*sin) + math.Abs(h*cos))
	dst := image.NewRGBA(image.Rect(0, 0, int(nw), int(nh)))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	cx, cy := w/2, h/2
	ncx, ncy := nw/2, nh/2
	s2d := f64.Aff3{
		cos, -sin, ncx - cos*cx + sin*cy,
		sin, cos, ncy - sin*cx - cos*cy,
	}

	draw.BiLinear.Transform(dst, s2d, src, src.Bounds(), draw.Over, nil)
	return dst
}
