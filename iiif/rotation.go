package iiif

import (
	"math"
	"strings"
)

// Rotation
// --------
// n angle clockwise in degrees
// !n angle clockwise in degrees with a flip (beforehand)

// Rotation is a clockwise rotation in degrees, applied after an optional
// horizontal mirroring.
type Rotation struct {
	Degrees float64
	Mirror  bool
}

// NoRotation keeps the image as it is.
var NoRotation = Rotation{}

// ParseRotation parses the rotation segment of an image request.
func ParseRotation(rotation string) (Rotation, error) {
	r := Rotation{}
	value := rotation
	if strings.HasPrefix(rotation, "!") {
		r.Mirror = true
		value = rotation[1:]
	}

	degrees, err := parseNumber(value)
	if err != nil {
		return Rotation{}, grammarError(InvalidRotation, rotation, "not a number")
	}
	if degrees < 0 || degrees > 360 {
		return Rotation{}, grammarError(InvalidRotation, rotation, "degrees must be within 0 and 360")
	}
	r.Degrees = degrees

	return r, nil
}

// IsIdentity tells whether the rotation leaves the image untouched.
func (r Rotation) IsIdentity() bool {
	return !r.Mirror && math.Mod(r.Degrees, 360) == 0
}

// IsRightAngle tells whether the rotation is a multiple of 90 degrees.
func (r Rotation) IsRightAngle() bool {
	return math.Mod(r.Degrees, 90) == 0
}

// String renders the rotation segment.
func (r Rotation) String() string {
	if r.Mirror {
		return "!" + formatNumber(r.Degrees)
	}
	return formatNumber(r.Degrees)
}
