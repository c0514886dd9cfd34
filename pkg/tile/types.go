package tile

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format is the tile output encoding. All formats are written lossless.
type Format int

const (
	FormatPNG Format = iota
	FormatWebP
	FormatAVIF
)

// ParseFormat parses a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	case "avif":
		return FormatAVIF, nil
	default:
		return 0, fmt.Errorf("unknown format: %q (expected png, webp or avif)", s)
	}
}

// Ext returns the file extension without the leading dot.
func (f Format) Ext() string {
	switch f {
	case FormatWebP:
		return "webp"
	case FormatAVIF:
		return "avif"
	default:
		return "png"
	}
}

func (f Format) String() string {
	return f.Ext()
}

// MarshalJSON encodes the format as its name ("png", "webp", "avif").
func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Ext())
}

// UnmarshalJSON accepts a format name.
func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Coordinate addresses a single tile within the pyramid.
type Coordinate struct {
	Z, X, Y int
}

// Path returns the tile's location relative to the pyramid root,
// using forward slashes: z/x/y.<ext>.
func (c Coordinate) Path(f Format) string {
	return fmt.Sprintf("%d/%d/%d.%s", c.Z, c.X, c.Y, f.Ext())
}

// LevelPlan describes one zoom level of the pyramid: the canvas the
// source is resized to and the tile grid it is split into.
type LevelPlan struct {
	Zoom       int
	CanvasSize int // pixels per canvas edge
	TileCount  int // tiles per axis
}
