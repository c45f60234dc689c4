package iiif

// Quality
// -------
// default
// color
// gray
// bitonal

// Quality is the rendering quality of a derivative.
type Quality string

// The supported qualities.
const (
	DefaultQuality Quality = "default"
	ColorQuality   Quality = "color"
	GrayQuality    Quality = "gray"
	BitonalQuality Quality = "bitonal"
)

var qualities = []Quality{DefaultQuality, ColorQuality, GrayQuality, BitonalQuality}

// ParseQuality matches the quality segment against the supported values.
func ParseQuality(quality string) (Quality, error) {
	for _, q := range qualities {
		if string(q) == quality {
			return q, nil
		}
	}
	return "", grammarError(UnsupportedQuality, quality, "")
}

// QualityNames lists the supported qualities.
func QualityNames() []string {
	names := make([]string, len(qualities))
	for i, q := range qualities {
		names[i] = string(q)
	}
	return names
}

// IsIdentity tells whether the quality leaves the colors untouched.
func (q Quality) IsIdentity() bool {
	return q == DefaultQuality || q == ColorQuality
}

func (q Quality) String() string {
	return string(q)
}
