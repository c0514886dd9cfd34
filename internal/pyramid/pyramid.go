// Package pyramid plans and drives the generation of a z/x/y tile
// pyramid from a single source raster. All pixel work is delegated to
// an image-processing backend; this package owns the geometry, the
// directory layout and the sequencing.
package pyramid

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pyramidtools/pyramid/internal/backend"
	"github.com/pyramidtools/pyramid/pkg/tile"
)

// Request contains all generation parameters. It is validated and
// finalized once, before any directory or file is created.
type Request struct {
	Source   string      `json:"source"`
	Target   string      `json:"target"`
	MaxZoom  int         `json:"max_zoom"`
	TileSize int         `json:"tile_size"`
	Format   tile.Format `json:"format"`

	// NoTimestamp suppresses the _<YYYYMMDD-HHMMSS> suffix normally
	// appended to the target directory name.
	NoTimestamp bool `json:"no_timestamp"`
}

// Result summarizes a completed generation run.
type Result struct {
	Target        string      `json:"target"`
	MaxZoom       int         `json:"max_zoom"`
	TileSize      int         `json:"tile_size"`
	LevelsCreated int         `json:"levels_created"`
	Format        tile.Format `json:"format"`
	Lossless      bool        `json:"lossless"`
}

// LevelError reports a backend failure at a specific zoom level. The
// backend's diagnostic output is carried verbatim in the wrapped error.
type LevelError struct {
	Zoom int
	Err  error
}

func (e *LevelError) Error() string {
	return fmt.Sprintf("zoom level %d: %v", e.Zoom, e.Err)
}

func (e *LevelError) Unwrap() error {
	return e.Err
}

// ProgressFunc receives human-readable progress lines during a run.
type ProgressFunc func(format string, args ...any)

// Generator runs pyramid generations against an injected backend.
type Generator struct {
	backend  backend.Backend
	progress ProgressFunc
	now      func() time.Time
}

// New creates a Generator. A nil progress function silences all
// progress output.
func New(b backend.Backend, progress ProgressFunc) *Generator {
	if progress == nil {
		progress = func(string, ...any) {}
	}
	return &Generator{
		backend:  b,
		progress: progress,
		now:      time.Now,
	}
}

// Generate produces the full tile pyramid for req, zoom levels 0
// through MaxZoom strictly in order, one backend invocation per level.
// On any level failure the run aborts immediately and no Result is
// returned; tiles from already-completed levels are left on disk as a
// diagnostic trace.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if g.backend == nil {
		return nil, backend.ErrUnavailable
	}
	if err := g.backend.Check(); err != nil {
		return nil, err
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	target, err := g.resolveTarget(req)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}

	total := tile.TotalTiles(req.MaxZoom)
	written := 0

	for z := 0; z <= req.MaxZoom; z++ {
		plan := tile.PlanLevel(z, req.TileSize)

		if err := g.generateLevel(ctx, req, target, plan); err != nil {
			lerr := &LevelError{Zoom: z, Err: err}
			g.progress("zoom %d: FAILED: %v", z, err)
			return nil, lerr
		}

		written += plan.TileCount * plan.TileCount
		g.progress("zoom %d: %d tile(s) at %dx%d done (%.0f%%)",
			z, plan.TileCount*plan.TileCount, req.TileSize, req.TileSize,
			float64(written)/float64(total)*100)
	}

	return &Result{
		Target:        target,
		MaxZoom:       req.MaxZoom,
		TileSize:      req.TileSize,
		LevelsCreated: req.MaxZoom + 1,
		Format:        req.Format,
		Lossless:      true,
	}, nil
}

// generateLevel lays out one zoom level's directories and issues the
// single backend invocation that fills them.
func (g *Generator) generateLevel(ctx context.Context, req Request, target string, plan tile.LevelPlan) error {
	zoomDir := filepath.Join(target, strconv.Itoa(plan.Zoom))
	for x := 0; x < plan.TileCount; x++ {
		if err := os.MkdirAll(filepath.Join(zoomDir, strconv.Itoa(x)), 0755); err != nil {
			return fmt.Errorf("failed to create tile directory: %w", err)
		}
	}

	// Zoom 0 is a single tile covering the whole canvas: a plain
	// resize, no cropping.
	if plan.Zoom == 0 {
		origin := tile.Coordinate{Z: 0, X: 0, Y: 0}
		dest := filepath.Join(target, filepath.FromSlash(origin.Path(req.Format)))
		return g.backend.Resize(ctx, backend.ResizeOp{
			Source: req.Source,
			Dest:   dest,
			Size:   req.TileSize,
			Format: req.Format,
		})
	}

	return g.backend.TileSplit(ctx, backend.TileSplitOp{
		Source:     req.Source,
		OutputDir:  zoomDir,
		CanvasSize: plan.CanvasSize,
		TileSize:   req.TileSize,
		Format:     req.Format,
	})
}

// validate applies all preconditions before any filesystem work.
func validate(req Request) error {
	if err := tile.ValidateZoom(req.MaxZoom); err != nil {
		return err
	}
	if err := tile.ValidateTileSize(req.TileSize); err != nil {
		return err
	}
	if req.Target == "" {
		return fmt.Errorf("target directory is required")
	}

	info, err := os.Stat(req.Source)
	if err != nil {
		return fmt.Errorf("source image %q: %w", req.Source, err)
	}
	if info.IsDir() {
		return fmt.Errorf("source image %q is a directory", req.Source)
	}
	f, err := os.Open(req.Source)
	if err != nil {
		return fmt.Errorf("source image %q is not readable: %w", req.Source, err)
	}
	f.Close()

	return nil
}

// resolveTarget applies the timestamp suffix and makes the target
// absolute. The suffix uses the generation start time, so two runs
// started at different times never collide.
func (g *Generator) resolveTarget(req Request) (string, error) {
	target := req.Target
	if !req.NoTimestamp {
		target += "_" + g.now().Format("20060102-150405")
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path: %w", err)
	}
	return abs, nil
}
