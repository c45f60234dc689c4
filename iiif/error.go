package iiif

import (
	"fmt"
	"net/http"
	"strings"
)

// error messages
var pathError = "IIIF 2.1 image request path is not recognized: %#v"
var regionError = "IIIF 2.1 `region` argument is not recognized: %#v"
var sizeError = "IIIF 2.1 `size` argument is not recognized: %#v"
var rotationError = "IIIF 2.1 `rotation` argument is not recognized: %#v"
var qualityError = "IIIF 2.1 `quality` argument is not supported: %#v (expected one of %s)"
var formatError = "IIIF 2.1 `format` argument is not supported: %#v (expected one of %s)"

// HTTPError represents a HTTP error to be shown to the user.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error formats the HTTPError message.
func (e HTTPError) Error() string {
	return fmt.Sprintf("%d (%s) %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// ErrorKind tells which part of the request grammar was violated.
type ErrorKind int

// The grammar violations.
const (
	InvalidPath ErrorKind = iota + 1
	InvalidRegion
	InvalidSize
	InvalidRotation
	UnsupportedQuality
	UnsupportedFormat
)

var kindNames = map[ErrorKind]string{
	InvalidPath:        "invalid path",
	InvalidRegion:      "invalid region",
	InvalidSize:        "invalid size",
	InvalidRotation:    "invalid rotation",
	UnsupportedQuality: "unsupported quality",
	UnsupportedFormat:  "unsupported format",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// GrammarError is returned for any malformed image request. It is never
// worth retrying.
type GrammarError struct {
	Kind   ErrorKind
	Value  string
	Reason string
}

func (e *GrammarError) Error() string {
	var message string
	switch e.Kind {
	case InvalidRegion:
		message = fmt.Sprintf(regionError, e.Value)
	case InvalidSize:
		message = fmt.Sprintf(sizeError, e.Value)
	case InvalidRotation:
		message = fmt.Sprintf(rotationError, e.Value)
	case UnsupportedQuality:
		message = fmt.Sprintf(qualityError, e.Value, strings.Join(QualityNames(), ", "))
	case UnsupportedFormat:
		message = fmt.Sprintf(formatError, e.Value, strings.Join(FormatExtensions(), ", "))
	default:
		message = fmt.Sprintf(pathError, e.Value)
	}
	if e.Reason != "" {
		message += ": " + e.Reason
	}
	return message
}

// HTTPError converts the grammar violation into a 400 response.
func (e *GrammarError) HTTPError() HTTPError {
	return HTTPError{http.StatusBadRequest, e.Error()}
}

func grammarError(kind ErrorKind, value, reason string) *GrammarError {
	return &GrammarError{Kind: kind, Value: value, Reason: reason}
}
