// Package backend abstracts the external image-processing tool that
// performs the actual resize, crop and encode work. The driver never
// touches pixels itself; it describes each operation with a typed
// descriptor and hands it to a Backend.
package backend

import (
	"context"
	"errors"

	"github.com/pyramidtools/pyramid/pkg/tile"
)

// ErrUnavailable is returned by Check when no usable image tool can be
// found on the system.
var ErrUnavailable = errors.New("no image-processing backend available")

// ResizeOp resizes the source to an exact Size x Size square and writes
// it to Dest in the given format. Aspect ratio is not preserved: the
// resize is forced square, distorting non-square sources.
type ResizeOp struct {
	Source string
	Dest   string
	Size   int
	Format tile.Format
}

// TileSplitOp resizes the source to CanvasSize x CanvasSize, partitions
// the canvas into TileSize tiles and writes each one to
// OutputDir/<x>/<y>.<ext>, where x and y are the tile's pixel offset
// divided by TileSize. The whole split is a single backend invocation.
// The per-x subdirectories must exist before the call.
type TileSplitOp struct {
	Source     string
	OutputDir  string
	CanvasSize int
	TileSize   int
	Format     tile.Format
}

// Backend is the image-processing capability the pyramid driver depends
// on. Implementations must encode losslessly for every format. Both
// operations block until the underlying work has fully completed and
// must terminate any in-flight external process when ctx is cancelled.
type Backend interface {
	// Check verifies the backend is usable. Called once before any
	// generation work starts; a failure is a fatal configuration error.
	Check() error

	Resize(ctx context.Context, op ResizeOp) error
	TileSplit(ctx context.Context, op TileSplitOp) error
}
