package iiif

import (
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	var tests = []string{
		"/iiif/lena.jpg/full/full/0/default.jpg",
		"/iiif/lena.jpg/0,0,1024,768/1024,/0/default.jpg",
		"/iiif/lena.jpg/10,20,30,40/,50/90/gray.png",
		"/iiif/lena.jpg/pct:10,10,80,80/pct:50/!180/bitonal.tif",
		"/iiif/lena.jpg/pct:10.5,0,50,50/!400,300/22.5/color.webp",
		"/iiif/lena.jpg/full/400,300/360/default.gif",
		"/iiif/a%2Fb%3Fc%23d%5Be%5D%40f%25g/full/full/0/default.jp2",
		"/iiif/v2/lena.jpg/full/full/0/default.pdf",
		"/iiif/lena.jpg/pct:100,100,100,100/full/0/default.tiff",
	}

	for _, path := range tests {
		r, err := ParseRequest(path)
		if err != nil {
			t.Errorf("cannot parse %#v: %v", path, err)
			continue
		}

		if s := r.String(); s != path {
			t.Errorf("round trip failed: got %#v want %#v", s, path)
		}

		again, err := ParseRequest(r.String())
		if err != nil || !again.Equal(r) {
			t.Errorf("reparsing %#v does not yield an equal request", path)
		}
	}
}

func TestCanonicalization(t *testing.T) {
	var tests = []struct {
		path      string
		canonical string
	}{
		{"iiif/lena.jpg/full/full/0/default.jpg", "/iiif/lena.jpg/full/full/0/default.jpg"},
		{"/iiif/a%252Fb/full/full/0/default.jpg", "/iiif/a%2Fb/full/full/0/default.jpg"},
		{"/iiif/a%25252Fb/full/full/0/default.jpg", "/iiif/a%2Fb/full/full/0/default.jpg"},
		{"/iiif/lena.jpg/0,0,1e2,100/full/90.0/default.jpg", "/iiif/lena.jpg/0,0,100,100/full/90/default.jpg"},
	}

	for _, test := range tests {
		r, err := ParseRequest(test.path)
		if err != nil {
			t.Errorf("cannot parse %#v: %v", test.path, err)
			continue
		}
		if s := r.String(); s != test.canonical {
			t.Errorf("canonical form of %#v: got %#v want %#v", test.path, s, test.canonical)
		}
	}
}

func TestParseRequestFields(t *testing.T) {
	r, err := ParseRequest("/iiif/a%2Fb/pct:0,0,50,50/!200,100/!90/gray.png")
	if err != nil {
		t.Fatal(err)
	}

	expected := Request{
		Prefix:   "iiif",
		ID:       "a/b",
		Region:   Region{X: 0, Y: 0, Width: 50, Height: 50, Percent: true},
		Size:     Size{Width: 200, Height: 100, Scalable: true},
		Rotation: Rotation{Degrees: 90, Mirror: true},
		Quality:  GrayQuality,
		Format:   PNG,
	}

	if !r.Equal(expected) {
		t.Errorf("parsed request: got %#v want %#v", r, expected)
	}
}

func TestGrammarRejection(t *testing.T) {
	var tests = []struct {
		path string
		kind ErrorKind
	}{
		{"/iiif/id/0,0,100,bad/full/0/default.jpg", InvalidRegion},
		{"/iiif/id/0,0,100/full/0/default.jpg", InvalidRegion},
		{"/iiif/id/0,0,100,100,100/full/0/default.jpg", InvalidRegion},
		{"/iiif/id/pct:a,0,10,10/full/0/default.jpg", InvalidRegion},
		{"/iiif/id/square/full/0/default.jpg", InvalidRegion},
		{"/iiif/id/-10,0,10,10/full/0/default.jpg", InvalidRegion},
		{"/iiif/id/10,10,0,0/full/0/default.jpg", InvalidRegion},
		{"/iiif/id/full/pct:0/0/default.jpg", InvalidSize},
		{"/iiif/id/full/pct:101/0/default.jpg", InvalidSize},
		{"/iiif/id/full/pct:abc/0/default.jpg", InvalidSize},
		{"/iiif/id/full/10,10,10/0/default.jpg", InvalidSize},
		{"/iiif/id/full/10/0/default.jpg", InvalidSize},
		{"/iiif/id/full/,/0/default.jpg", InvalidSize},
		{"/iiif/id/full/a,10/0/default.jpg", InvalidSize},
		{"/iiif/id/full/!10,/0/default.jpg", InvalidSize},
		{"/iiif/id/full/max/0/default.jpg", InvalidSize},
		{"/iiif/id/full/full/361/default.jpg", InvalidRotation},
		{"/iiif/id/full/full/-10/default.jpg", InvalidRotation},
		{"/iiif/id/full/full/flip/default.jpg", InvalidRotation},
		{"/iiif/id/full/full/NaN/default.jpg", InvalidRotation},
		{"/iiif/id/full/full/0/bad.jpg", UnsupportedQuality},
		{"/iiif/id/full/full/0/native.jpg", UnsupportedQuality},
		{"/iiif/id/full/full/0/default.doc", UnsupportedFormat},
		{"/iiif/id/full/full/0/default.jpeg", UnsupportedFormat},
		{"/iiif/id/full/full/0/default", InvalidPath},
		{"/id/full/full/0/default.jpg", InvalidPath},
		{"/iiif//full/full/0/default.jpg", InvalidPath},
		{"/iiif/%zz/full/full/0/default.jpg", InvalidPath},
	}

	for _, test := range tests {
		_, err := ParseRequest(test.path)
		var e *GrammarError
		if !errors.As(err, &e) {
			t.Errorf("%#v should fail with a grammar error, got %v", test.path, err)
			continue
		}
		if e.Kind != test.kind {
			t.Errorf("%#v failed with the wrong kind: got %v want %v", test.path, e.Kind, test.kind)
		}
		if e.HTTPError().StatusCode != 400 {
			t.Errorf("grammar errors are bad requests, got %d", e.HTTPError().StatusCode)
		}
	}
}

func TestWithRotationKeepsOriginal(t *testing.T) {
	r, err := ParseRequest("/iiif/id/full/full/90/default.jpg")
	if err != nil {
		t.Fatal(err)
	}

	unrotated := r.WithRotation(NoRotation)

	if r.Rotation.Degrees != 90 {
		t.Errorf("original request was mutated: %v", r.Rotation)
	}
	if s := unrotated.String(); s != "/iiif/id/full/full/0/default.jpg" {
		t.Errorf("unrotated request: got %#v", s)
	}
	if r.Equal(unrotated) {
		t.Errorf("requests with different rotations should differ")
	}
}

func TestQualityAndFormatTables(t *testing.T) {
	var tests = []struct {
		extension string
		mime      string
	}{
		{"jpg", "image/jpeg"},
		{"tif", "image/tiff"},
		{"tiff", "image/tiff"},
		{"png", "image/png"},
		{"gif", "image/gif"},
		{"jp2", "image/jp2"},
		{"pdf", "application/pdf"},
		{"webp", "image/webp"},
	}

	for _, test := range tests {
		f, err := ParseFormat(test.extension)
		if err != nil {
			t.Errorf("%v should be supported: %v", test.extension, err)
			continue
		}
		if f.MIMEType() != test.mime {
			t.Errorf("mime type of %v: got %v want %v", test.extension, f.MIMEType(), test.mime)
		}
		back, err := FormatFromMIMEType(test.mime)
		if err != nil || back.MIMEType() != test.mime {
			t.Errorf("reverse lookup of %v failed: %v %v", test.mime, back, err)
		}
	}

	if _, err := FormatFromMIMEType("text/plain"); err == nil {
		t.Errorf("text/plain should not be a supported format")
	}

	for _, name := range QualityNames() {
		if _, err := ParseQuality(name); err != nil {
			t.Errorf("%v should be a supported quality: %v", name, err)
		}
	}
}

func TestServiceURL(t *testing.T) {
	if u := ServiceURL("http://example.org/", "/iiif/", "a/b"); u != "http://example.org/iiif/a%2Fb" {
		t.Errorf("service URL: got %#v", u)
	}
}
