package iiif

import "sort"

// Format is the output encoding of a derivative, named by its extension.
type Format string

// The supported formats.
const (
	JPG  Format = "jpg"
	TIF  Format = "tif"
	TIFF Format = "tiff"
	PNG  Format = "png"
	GIF  Format = "gif"
	JP2  Format = "jp2"
	PDF  Format = "pdf"
	WEBP Format = "webp"
)

var mimeTypes = map[Format]string{
	JPG:  "image/jpeg",
	TIF:  "image/tiff",
	TIFF: "image/tiff",
	PNG:  "image/png",
	GIF:  "image/gif",
	JP2:  "image/jp2",
	PDF:  "application/pdf",
	WEBP: "image/webp",
}

// first extension wins for image/tiff
var extensions = map[string]Format{
	"image/jpeg":      JPG,
	"image/tiff":      TIF,
	"image/png":       PNG,
	"image/gif":       GIF,
	"image/jp2":       JP2,
	"application/pdf": PDF,
	"image/webp":      WEBP,
}

// ParseFormat looks up the format by its extension.
func ParseFormat(extension string) (Format, error) {
	f := Format(extension)
	if _, ok := mimeTypes[f]; !ok {
		return "", grammarError(UnsupportedFormat, extension, "")
	}
	return f, nil
}

// FormatFromMIMEType looks up the format by its media type.
func FormatFromMIMEType(mimeType string) (Format, error) {
	f, ok := extensions[mimeType]
	if !ok {
		return "", grammarError(UnsupportedFormat, mimeType, "")
	}
	return f, nil
}

// FormatExtensions lists the supported extensions.
func FormatExtensions() []string {
	names := make([]string, 0, len(mimeTypes))
	for f := range mimeTypes {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// MIMEType is the media type of the format.
func (f Format) MIMEType() string {
	return mimeTypes[f]
}

func (f Format) String() string {
	return string(f)
}
