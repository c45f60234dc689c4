package iiif

import (
	"math"
	"strconv"
	"strings"
)

// Size
// ----
// full
// w, (force width)
// ,h (force height)
// pct:n (resize)
// w,h (deform)
// !w,h (best fit within size)

// Size is the requested output dimension. A zero Width or Height means the
// dimension was left out of the request.
type Size struct {
	Width    int
	Height   int
	Percent  int
	Scalable bool
	Full     bool
}

// FullSize keeps the extracted region at its own dimensions.
var FullSize = Size{Full: true}

// ParseSize parses the size segment of an image request.
func ParseSize(size string) (Size, error) {
	if size == "full" {
		return FullSize, nil
	}

	if strings.HasPrefix(size, "pct:") {
		pct, err := strconv.Atoi(size[4:])
		if err != nil {
			return Size{}, grammarError(InvalidSize, size, "not an integer percentage")
		}
		if pct < 1 || pct > 100 {
			return Size{}, grammarError(InvalidSize, size, "percentage must be within 1 and 100")
		}
		return Size{Percent: pct}, nil
	}

	s := Size{}
	values := size
	if strings.HasPrefix(size, "!") {
		s.Scalable = true
		values = size[1:]
	}

	parts := strings.Split(values, ",")
	if len(parts) != 2 {
		return Size{}, grammarError(InvalidSize, size, "exactly one comma is expected")
	}
	if parts[0] == "" && parts[1] == "" {
		return Size{}, grammarError(InvalidSize, size, "width or height is required")
	}

	var err error
	if parts[0] != "" {
		if s.Width, err = parseDimension(parts[0]); err != nil {
			return Size{}, grammarError(InvalidSize, size, "invalid width "+strconv.Quote(parts[0]))
		}
	}
	if parts[1] != "" {
		if s.Height, err = parseDimension(parts[1]); err != nil {
			return Size{}, grammarError(InvalidSize, size, "invalid height "+strconv.Quote(parts[1]))
		}
	}

	if s.Scalable && (s.Width == 0 || s.Height == 0) {
		return Size{}, grammarError(InvalidSize, size, "best fit requires both width and height")
	}

	return s, nil
}

// IsFull tells whether the size leaves the extracted region untouched.
func (s Size) IsFull() bool {
	return s.Full
}

// IsPercentage tells whether the size is a pct:n scale.
func (s Size) IsPercentage() bool {
	return s.Percent != 0
}

// String renders the size segment.
func (s Size) String() string {
	switch {
	case s.Full:
		return "full"
	case s.Percent != 0:
		return "pct:" + strconv.Itoa(s.Percent)
	case s.Height == 0:
		return strconv.Itoa(s.Width) + ","
	case s.Width == 0:
		return "," + strconv.Itoa(s.Height)
	case s.Scalable:
		return "!" + strconv.Itoa(s.Width) + "," + strconv.Itoa(s.Height)
	}
	return strconv.Itoa(s.Width) + "," + strconv.Itoa(s.Height)
}

// ScaledWidth computes the output width for an image of the given
// dimensions. The output is never larger than the image itself.
func (s Size) ScaledWidth(width, height int) int {
	w, _ := s.Dimensions(width, height)
	return w
}

// ScaledHeight computes the output height for an image of the given
// dimensions. The output is never larger than the image itself.
func (s Size) ScaledHeight(width, height int) int {
	_, h := s.Dimensions(width, height)
	return h
}

// Dimensions computes both output dimensions at once.
func (s Size) Dimensions(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}

	switch {
	case s.Full:
		return width, height

	case s.Percent != 0:
		return scale(width, float64(s.Percent)/100.), scale(height, float64(s.Percent)/100.)

	case s.Scalable:
		ratio := math.Min(float64(s.Width)/float64(width), float64(s.Height)/float64(height))
		ratio = math.Min(ratio, 1.)
		return scale(width, ratio), scale(height, ratio)

	case s.Height == 0:
		w := min(s.Width, width)
		return w, scale(height, float64(w)/float64(width))

	case s.Width == 0:
		h := min(s.Height, height)
		return scale(width, float64(h)/float64(height)), h
	}

	return min(s.Width, width), min(s.Height, height)
}

func scale(n int, ratio float64) int {
	v := int(math.Ceil(float64(n)*ratio - 1e-9))
	if v < 1 {
		return 1
	}
	return v
}

func parseDimension(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
