package iiif

import (
	"image"
	"math"
	"strconv"
	"strings"
)

// Region
// ------
// full
// x,y,w,h (in pixels)
// pct:x,y,w,h (in percents)

// Region is the rectangular portion of the source image to extract.
// Percentages are kept as such and only resolved against real pixel
// dimensions by Rectangle.
type Region struct {
	X       float64
	Y       float64
	Width   float64
	Height  float64
	Percent bool
	Full    bool
}

// FullRegion is the whole source image.
var FullRegion = Region{Full: true}

// NewPixelRegion builds an x,y,w,h region.
func NewPixelRegion(x, y, w, h int) Region {
	return Region{X: float64(x), Y: float64(y), Width: float64(w), Height: float64(h)}
}

// ParseRegion parses the region segment of an image request.
func ParseRegion(region string) (Region, error) {
	if region == "full" {
		return FullRegion, nil
	}

	r := Region{}
	values := region
	if strings.HasPrefix(region, "pct:") {
		r.Percent = true
		values = region[4:]
	}

	parts := strings.Split(values, ",")
	if len(parts) != 4 {
		return Region{}, grammarError(InvalidRegion, region, "four comma separated values are expected")
	}

	var numbers [4]float64
	for i, part := range parts {
		n, err := parseNumber(part)
		if err != nil {
			return Region{}, grammarError(InvalidRegion, region, "not a number: "+strconv.Quote(part))
		}
		numbers[i] = n
	}

	r.X, r.Y, r.Width, r.Height = numbers[0], numbers[1], numbers[2], numbers[3]

	if r.X < 0 || r.Y < 0 {
		return Region{}, grammarError(InvalidRegion, region, "negative offset")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return Region{}, grammarError(InvalidRegion, region, "empty area")
	}

	if r.Percent && r.X == 100 && r.Y == 100 && r.Width == 100 && r.Height == 100 {
		r.Full = true
	}

	return r, nil
}

// IsFull tells whether the region leaves the image untouched.
func (r Region) IsFull() bool {
	return r.Full
}

// String renders the region segment.
func (r Region) String() string {
	if r.Full && !r.Percent {
		return "full"
	}

	s := formatNumber(r.X) + "," + formatNumber(r.Y) + "," + formatNumber(r.Width) + "," + formatNumber(r.Height)
	if r.Percent {
		return "pct:" + s
	}
	return s
}

// Rectangle resolves the region against an image of the given dimensions
// and clips it to the image bounds. An empty rectangle means the region
// lies outside of the image.
func (r Region) Rectangle(width, height int) image.Rectangle {
	bounds := image.Rect(0, 0, width, height)
	if r.Full {
		return bounds
	}

	x, y, w, h := r.X, r.Y, r.Width, r.Height
	if r.Percent {
		x = float64(width) * x / 100.
		y = float64(height) * y / 100.
		w = float64(width) * w / 100.
		h = float64(height) * h / 100.
	}

	rect := image.Rect(
		int(math.Round(x)),
		int(math.Round(y)),
		int(math.Round(x+w)),
		int(math.Round(y+h)),
	)
	return rect.Intersect(bounds)
}

func parseNumber(s string) (float64, error) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
