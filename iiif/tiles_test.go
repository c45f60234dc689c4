package iiif

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/mitchellh/mapstructure"
)

func TestScaleFactors(t *testing.T) {
	var tests = []struct {
		width    int
		height   int
		tileSize int
		factors  []int
	}{
		{2048, 1024, 1024, []int{1}},
		{3000, 2000, 1024, []int{1, 2}},
		{1024, 1024, 1024, []int{}},
		{500, 300, 1024, []int{}},
		{300, 5000, 256, []int{1, 2, 4, 8, 16}},
	}

	for _, test := range tests {
		factors := ScaleFactors(test.tileSize, test.width, test.height)
		if !reflect.DeepEqual(factors, test.factors) {
			t.Errorf("scale factors of %dx%d (%d): got %v want %v", test.width, test.height, test.tileSize, factors, test.factors)
		}
	}
}

func TestTileCounts(t *testing.T) {
	width, height, tileSize := 3000, 2000, 1024
	tiles := Tiles("iiif", "id", tileSize, width, height)

	perLevel := map[int]int{}
	for _, tile := range tiles {
		// the region edge tells the level, clipped cells never exceed it
		w := int(tile.Region.Width)
		h := int(tile.Region.Height)
		level := 1
		for level*tileSize < max(w, h) {
			level *= 2
		}
		if w > level*tileSize || h > level*tileSize || w <= 0 || h <= 0 {
			t.Errorf("tile region out of bounds: %v", tile)
		}
		perLevel[level]++
	}

	expected := map[int]int{
		1: ceilDiv(width, 1024) * ceilDiv(height, 1024),
		2: ceilDiv(width, 2048) * ceilDiv(height, 2048),
	}
	if !reflect.DeepEqual(perLevel, expected) {
		t.Errorf("tiles per level: got %v want %v", perLevel, expected)
	}
	if len(tiles) != 8 {
		t.Errorf("tile count: got %d want 8", len(tiles))
	}
}

func TestTilePathsClipping(t *testing.T) {
	paths := TilePaths("iiif", "id", 1024, 3000, 2000)

	var expected = []string{
		"/iiif/id/0,0,1024,1024/1024,/0/default.jpg",
		"/iiif/id/1024,0,1024,1024/1024,/0/default.jpg",
		"/iiif/id/2048,0,952,1024/952,/0/default.jpg",
		"/iiif/id/0,1024,1024,976/1024,/0/default.jpg",
		"/iiif/id/1024,1024,1024,976/1024,/0/default.jpg",
		"/iiif/id/2048,1024,952,976/952,/0/default.jpg",
		"/iiif/id/0,0,2048,2000/1024,/0/default.jpg",
		"/iiif/id/2048,0,952,2000/476,/0/default.jpg",
	}

	if !reflect.DeepEqual(paths, expected) {
		t.Errorf("tile paths:\ngot  %v\nwant %v", paths, expected)
	}

	for _, path := range paths {
		r, err := ParseRequest(path)
		if err != nil {
			t.Errorf("planned path %#v does not parse: %v", path, err)
			continue
		}
		if r.String() != path {
			t.Errorf("planned path %#v is not canonical: %#v", path, r.String())
		}
		if r.Quality != DefaultQuality || r.Format != JPG || !r.Rotation.IsIdentity() {
			t.Errorf("tiles are unrotated default jpg, got %#v", path)
		}
	}
}

func TestCanonicalSize(t *testing.T) {
	var tests = []struct {
		regionWidth  int
		regionHeight int
		width        int
		height       int
		size         string
	}{
		{1024, 768, 1024, 768, "1024,"},
		{2048, 1536, 1024, 768, "1024,"},
		{1000, 333, 500, 167, "500,167"},
		{952, 2000, 476, 1000, "476,"},
		{3, 1, 2, 1, "2,1"},
	}

	for _, test := range tests {
		size := CanonicalSize(test.regionWidth, test.regionHeight, test.width, test.height)
		if size.String() != test.size {
			t.Errorf("canonical size of %dx%d in %dx%d: got %v want %v",
				test.width, test.height, test.regionWidth, test.regionHeight, size, test.size)
		}
	}
}

func TestSmallImageHasNoTiles(t *testing.T) {
	if tiles := Tiles("iiif", "id", 1024, 800, 600); len(tiles) != 0 {
		t.Errorf("an image smaller than a tile has no tiles, got %v", tiles)
	}
	if tiles := Tiles("iiif", "id", 1024, 0, 0); len(tiles) != 0 {
		t.Errorf("an empty image has no tiles, got %v", tiles)
	}
}

func TestEndToEndPlan(t *testing.T) {
	paths := TilePaths("iiif", "id", 1024, 2048, 1024)

	var expected = []string{
		"/iiif/id/0,0,1024,1024/1024,/0/default.jpg",
		"/iiif/id/1024,0,1024,1024/1024,/0/default.jpg",
	}

	if !reflect.DeepEqual(paths, expected) {
		t.Errorf("tile paths: got %v want %v", paths, expected)
	}
}

func TestPlannerMemoizes(t *testing.T) {
	p := NewPlanner(2)

	first := p.Paths("iiif", "id", 256, 1000, 800)
	first[0] = "tampered"

	second := p.Paths("iiif", "id", 256, 1000, 800)
	if second[0] == "tampered" {
		t.Errorf("planner leaked its cached slice")
	}
	if !reflect.DeepEqual(second, TilePaths("iiif", "id", 256, 1000, 800)) {
		t.Errorf("planner returned a different plan")
	}
}

func TestImageInfo(t *testing.T) {
	var tests = []struct {
		width   int
		height  int
		tiles   bool
		factors []int
	}{
		{2048, 1024, true, []int{1}},
		{1024, 2048, true, []int{1}},
		{1024, 1024, false, nil},
		{5000, 3000, true, []int{1, 2, 4}},
	}

	for _, test := range tests {
		info := NewImageInfo("http://example.org/iiif/id", test.width, test.height, 1024)

		buffer, err := json.Marshal(info)
		if err != nil {
			t.Fatal(err)
		}

		var m map[string]interface{}
		if err := json.Unmarshal(buffer, &m); err != nil {
			t.Fatal(err)
		}

		raw, ok := m["tiles"]
		if ok != test.tiles {
			t.Errorf("%dx%d tiles presence: got %v want %v (%s)", test.width, test.height, ok, test.tiles, buffer)
			continue
		}
		if !ok {
			continue
		}

		var tiles []Tile
		if err := mapstructure.Decode(raw, &tiles); err != nil {
			t.Fatal(err)
		}
		if tiles[0].Width != 1024 || !reflect.DeepEqual(tiles[0].ScaleFactors, test.factors) {
			t.Errorf("%dx%d tiles: got %+v want scaleFactors %v", test.width, test.height, tiles[0], test.factors)
		}
		if strings.Contains(string(buffer), `"height":0`) {
			t.Errorf("tile height should be omitted: %s", buffer)
		}
	}
}
