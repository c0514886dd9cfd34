package tile

import "fmt"

// Zoom level limits. Level 12 already means a 4096-tile axis at the
// default tile size; anything beyond that is almost certainly a typo.
const (
	MinZoom = 0
	MaxZoom = 12
)

// DefaultTileSize is the conventional slippy-map tile edge in pixels.
const DefaultTileSize = 256

// PlanLevel computes the geometry of one zoom level. The canvas edge
// doubles with each zoom increment, so level z is a 2^z x 2^z grid of
// tileSize tiles. Level 0 degenerates to a single tile covering the
// whole canvas.
func PlanLevel(zoom, tileSize int) LevelPlan {
	return LevelPlan{
		Zoom:       zoom,
		CanvasSize: tileSize << uint(zoom),
		TileCount:  1 << uint(zoom),
	}
}

// GridCoord maps a pixel offset on the level canvas to its tile grid
// coordinate. This floor division is what fixes the canonical x/y
// naming of tile files, so every backend must reproduce it exactly.
func GridCoord(pixelOffset, tileSize int) int {
	return pixelOffset / tileSize
}

// ValidateZoom checks a maximum zoom level against the supported range.
func ValidateZoom(maxZoom int) error {
	if maxZoom < MinZoom || maxZoom > MaxZoom {
		return fmt.Errorf("max zoom %d out of range [%d, %d]", maxZoom, MinZoom, MaxZoom)
	}
	return nil
}

// ValidateTileSize checks a tile edge length.
func ValidateTileSize(tileSize int) error {
	if tileSize <= 0 {
		return fmt.Errorf("tile size must be a positive integer, got %d", tileSize)
	}
	return nil
}

// TotalTiles returns the number of tiles in a full pyramid up to and
// including maxZoom: sum of 4^z for z in [0, maxZoom].
func TotalTiles(maxZoom int) int {
	total := 0
	for z := 0; z <= maxZoom; z++ {
		n := 1 << uint(z)
		total += n * n
	}
	return total
}
