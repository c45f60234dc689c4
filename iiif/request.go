package iiif

import (
	"net/url"
	"strings"
)

// maximum number of decoding passes applied to an identifier
const maxUnescape = 8

var idEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	"?", "%3F",
	"#", "%23",
	"[", "%5B",
	"]", "%5D",
	"@", "%40",
)

// Request is a fully specified derivative of a source image:
//
//	/{prefix}/{id}/{region}/{size}/{rotation}/{quality}.{format}
//
// Requests are values; use the With* methods to derive new ones.
type Request struct {
	Prefix   string
	ID       string
	Region   Region
	Size     Size
	Rotation Rotation
	Quality  Quality
	Format   Format
}

// NewRequest builds a request, the prefix being trimmed of its slashes.
func NewRequest(prefix, id string, region Region, size Size, rotation Rotation, quality Quality, format Format) Request {
	return Request{
		Prefix:   strings.Trim(prefix, "/"),
		ID:       id,
		Region:   region,
		Size:     size,
		Rotation: rotation,
		Quality:  quality,
		Format:   format,
	}
}

// ParseRequest parses an image request path. The prefix may span several
// segments, the identifier is the single segment that follows it.
func ParseRequest(path string) (Request, error) {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	n := len(segments)
	if n < 6 {
		return Request{}, grammarError(InvalidPath, path, "expected /{prefix}/{id}/{region}/{size}/{rotation}/{quality}.{format}")
	}
	for _, segment := range segments {
		if segment == "" {
			return Request{}, grammarError(InvalidPath, path, "empty segment")
		}
	}

	last := segments[n-1]
	dot := strings.LastIndex(last, ".")
	if dot < 0 {
		return Request{}, grammarError(InvalidPath, path, "missing format extension")
	}

	id, err := DecodeID(segments[n-5])
	if err != nil {
		return Request{}, err
	}

	region, err := ParseRegion(segments[n-4])
	if err != nil {
		return Request{}, err
	}

	size, err := ParseSize(segments[n-3])
	if err != nil {
		return Request{}, err
	}

	rotation, err := ParseRotation(segments[n-2])
	if err != nil {
		return Request{}, err
	}

	quality, err := ParseQuality(last[:dot])
	if err != nil {
		return Request{}, err
	}

	format, err := ParseFormat(last[dot+1:])
	if err != nil {
		return Request{}, err
	}

	return Request{
		Prefix:   strings.Join(segments[:n-5], "/"),
		ID:       id,
		Region:   region,
		Size:     size,
		Rotation: rotation,
		Quality:  quality,
		Format:   format,
	}, nil
}

// String renders the canonical request path.
func (r Request) String() string {
	var b strings.Builder
	b.WriteString("/")
	if r.Prefix != "" {
		b.WriteString(r.Prefix)
		b.WriteString("/")
	}
	b.WriteString(EncodeID(r.ID))
	b.WriteString("/")
	b.WriteString(r.RelativePath())
	return b.String()
}

// RelativePath is the canonical path of the derivative below its image:
// region/size/rotation/quality.format. Derivatives are stored under it.
func (r Request) RelativePath() string {
	return r.Region.String() + "/" + r.Size.String() + "/" + r.Rotation.String() + "/" + r.Quality.String() + "." + r.Format.String()
}

// Equal compares all the fields of both requests.
func (r Request) Equal(o Request) bool {
	return r == o
}

// WithRotation returns a copy of the request using the given rotation.
func (r Request) WithRotation(rotation Rotation) Request {
	r.Rotation = rotation
	return r
}

// WithFormat returns a copy of the request using the given format.
func (r Request) WithFormat(format Format) Request {
	r.Format = format
	return r
}

// ServiceURL is the base URL of the image, the one info.json describes.
func ServiceURL(baseURL, prefix, id string) string {
	u := strings.TrimRight(baseURL, "/")
	if p := strings.Trim(prefix, "/"); p != "" {
		u += "/" + p
	}
	return u + "/" + EncodeID(id)
}

// DecodeID percent-decodes an identifier until it is stable, which
// absorbs identifiers that were encoded more than once.
func DecodeID(id string) (string, error) {
	for i := 0; i < maxUnescape; i++ {
		decoded, err := url.PathUnescape(id)
		if err != nil && i == 0 {
			return "", grammarError(InvalidPath, id, "identifier is not properly escaped")
		}
		// a literal % left by the previous pass
		if err != nil {
			break
		}
		if decoded == id {
			break
		}
		id = decoded
	}
	if id == "" {
		return "", grammarError(InvalidPath, id, "empty identifier")
	}
	return id, nil
}

// EncodeID escapes the characters that cannot appear in an identifier
// segment.
func EncodeID(id string) string {
	return idEscaper.Replace(id)
}
