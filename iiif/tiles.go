package iiif

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// ScaleFactors lists the zoom multipliers of the tile pyramid of an image:
// 1, 2, 4, … as long as the multiplied tile is smaller than the longest
// side of the image.
func ScaleFactors(tileSize, width, height int) []int {
	if tileSize <= 0 {
		return nil
	}

	longest := max(width, height)
	factors := []int{}
	for m := 1; m*tileSize < longest; m *= 2 {
		factors = append(factors, m)
	}
	return factors
}

// Tiles plans every tile request needed to browse an image at each of its
// zoom levels. Tiles are always rendered unrotated in the default quality
// as JPEG.
func Tiles(prefix, id string, tileSize, width, height int) []Request {
	requests := []Request{}
	seen := map[string]bool{}

	for _, m := range ScaleFactors(tileSize, width, height) {
		edge := m * tileSize
		for y := 0; y < height; y += edge {
			for x := 0; x < width; x += edge {
				w := min(edge, width-x)
				h := min(edge, height-y)
				if w <= 0 || h <= 0 {
					continue
				}

				size := CanonicalSize(w, h, ceilDiv(w, m), ceilDiv(h, m))
				request := NewRequest(prefix, id, NewPixelRegion(x, y, w, h), size, NoRotation, DefaultQuality, JPG)

				key := request.String()
				if seen[key] {
					continue
				}
				seen[key] = true
				requests = append(requests, request)
			}
		}
	}

	return requests
}

// TilePaths is Tiles rendered as request paths.
func TilePaths(prefix, id string, tileSize, width, height int) []string {
	tiles := Tiles(prefix, id, tileSize, width, height)
	paths := make([]string, len(tiles))
	for i, tile := range tiles {
		paths[i] = tile.String()
	}
	return paths
}

// CanonicalSize uses the width only shorthand (w,) when the requested
// dimensions keep the aspect ratio of the region.
func CanonicalSize(regionWidth, regionHeight, width, height int) Size {
	if width*regionHeight == height*regionWidth {
		return Size{Width: width}
	}
	return Size{Width: width, Height: height}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

type plan struct {
	prefix   string
	id       string
	tileSize int
	width    int
	height   int
}

// Planner memoizes tile plans, an image being planned once and not on
// every request.
type Planner struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewPlanner keeps up to maxEntries plans around.
func NewPlanner(maxEntries int) *Planner {
	return &Planner{cache: lru.New(maxEntries)}
}

// Paths returns the tile paths of the image, planning it when needed.
func (p *Planner) Paths(prefix, id string, tileSize, width, height int) []string {
	key := plan{prefix, id, tileSize, width, height}

	p.mu.Lock()
	cached, ok := p.cache.Get(key)
	p.mu.Unlock()

	if !ok {
		cached = TilePaths(prefix, id, tileSize, width, height)
		p.mu.Lock()
		p.cache.Add(key, cached)
		p.mu.Unlock()
	}

	paths := cached.([]string)
	return append([]string(nil), paths...)
}
