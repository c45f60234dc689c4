package iiif

// ImageProfile contains the technical properties about the service.
type ImageProfile struct {
	Context   string   `json:"@context,omitempty"`
	ID        string   `json:"@id,omitempty"`
	Type      string   `json:"@type,omitempty"` // empty or iiif:ImageProfile
	Formats   []string `json:"formats"`
	MaxArea   int      `json:"maxArea,omitempty"`
	MaxHeight int      `json:"maxHeight,omitempty"`
	MaxWidth  int      `json:"maxWidth,omitempty"`
	Qualities []string `json:"qualities"`
	Supports  []string `json:"supports,omitempty"`
}

// SizeInfo contains the information for the available sizes
type SizeInfo struct {
	Type   string `json:"@type,omitempty"` // empty or iiif:Size
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Tile contains the information to deal with tiles.
type Tile struct {
	Type         string `json:"@type,omitempty"` // empty or iiif:Tile
	ScaleFactors []int  `json:"scaleFactors"`
	Width        int    `json:"width"`
	Height       int    `json:"height,omitempty"`
}

// Image contains the technical properties about an image.
type Image struct {
	Context  string        `json:"@context"`
	ID       string        `json:"@id"`
	Type     string        `json:"@type,omitempty"` // empty or iiif:Image
	Protocol string        `json:"protocol"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Profile  []interface{} `json:"profile"`
	Sizes    []SizeInfo    `json:"sizes,omitempty"`
	Tiles    []Tile        `json:"tiles,omitempty"`
}

// NewImageInfo describes an image of the given dimensions and its tile
// pyramid. The tiles are only advertised when the image is larger than a
// single tile.
func NewImageInfo(id string, width, height, tileSize int, sizes ...SizeInfo) *Image {
	info := &Image{
		Context:  "http://iiif.io/api/image/2/context.json",
		ID:       id,
		Type:     "iiif:Image",
		Protocol: "http://iiif.io/api/image",
		Width:    width,
		Height:   height,
		Profile: []interface{}{
			"http://iiif.io/api/image/2/level0.json",
			&ImageProfile{
				Context:   "http://iiif.io/api/image/2/context.json",
				Type:      "iiif:ImageProfile",
				Formats:   []string{"jpg"},
				Qualities: []string{"default"},
				Supports: []string{
					"cors",
					"jsonldMediaType",
					"mirroring",
					"rotationBy90s",
				},
			},
		},
		Sizes: sizes,
	}

	if tileSize > 0 && (width > tileSize || height > tileSize) {
		info.Tiles = []Tile{
			{
				ScaleFactors: ScaleFactors(tileSize, width, height),
				Width:        tileSize,
			},
		}
	}

	return info
}
