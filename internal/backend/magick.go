package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pyramidtools/pyramid/pkg/tile"
)

// heartbeatInterval is how often the liveness callback fires while an
// invocation is running. Purely cosmetic.
const heartbeatInterval = 500 * time.Millisecond

// Magick drives ImageMagick as the image-processing backend. It prefers
// the v7 "magick" entry point and falls back to the legacy "convert"
// binary.
type Magick struct {
	bin string

	// Heartbeat, if set, is called at a fixed interval while an
	// external invocation is in flight. Used for a progress ticker.
	Heartbeat func()
}

// NewMagick returns an unchecked ImageMagick backend. Call Check before
// first use to resolve the binary.
func NewMagick() *Magick {
	return &Magick{}
}

// Check locates the ImageMagick binary on PATH. The resolved path is
// cached for all subsequent invocations.
func (m *Magick) Check() error {
	for _, name := range []string{"magick", "convert"} {
		if path, err := exec.LookPath(name); err == nil {
			m.bin = path
			return nil
		}
	}
	return fmt.Errorf("%w: neither \"magick\" nor \"convert\" found on PATH", ErrUnavailable)
}

// Resize implements Backend.
func (m *Magick) Resize(ctx context.Context, op ResizeOp) error {
	return m.run(ctx, resizeArgs(op))
}

// TileSplit implements Backend.
func (m *Magick) TileSplit(ctx context.Context, op TileSplitOp) error {
	return m.run(ctx, splitArgs(op))
}

// resizeArgs builds the argument vector for a plain square resize.
// The trailing "!" forces the exact geometry, ignoring aspect ratio.
func resizeArgs(op ResizeOp) []string {
	args := []string{
		op.Source,
		"-resize", fmt.Sprintf("%dx%d!", op.Size, op.Size),
	}
	args = append(args, losslessArgs(op.Format)...)
	return append(args, op.Dest)
}

// splitArgs builds the argument vector for a resize-and-split. The
// filename:tile property is computed per crop from its page offset, so
// ImageMagick itself derives the x/y grid coordinates by floor-dividing
// pixel offsets by the tile size, matching tile.GridCoord.
func splitArgs(op TileSplitOp) []string {
	args := []string{
		op.Source,
		"-resize", fmt.Sprintf("%dx%d!", op.CanvasSize, op.CanvasSize),
		"-crop", fmt.Sprintf("%dx%d", op.TileSize, op.TileSize),
		"-set", "filename:tile",
		fmt.Sprintf("%%[fx:page.x/%d]/%%[fx:page.y/%d]", op.TileSize, op.TileSize),
		"+repage", "+adjoin",
	}
	args = append(args, losslessArgs(op.Format)...)
	return append(args, filepath.Join(op.OutputDir, "%[filename:tile]."+op.Format.Ext()))
}

// losslessArgs returns the encoder flags that force lossless output.
// PNG needs none: the format cannot lose pixel data.
func losslessArgs(f tile.Format) []string {
	switch f {
	case tile.FormatWebP:
		return []string{"-quality", "100", "-define", "webp:lossless=true"}
	case tile.FormatAVIF:
		return []string{"-quality", "100", "-define", "heic:lossless=true"}
	default:
		return nil
	}
}

// run executes one ImageMagick invocation and blocks until it exits.
// Cancelling ctx kills the process. No timeout is imposed beyond the
// caller's context; large canvases can legitimately take minutes.
func (m *Magick) run(ctx context.Context, args []string) error {
	if m.bin == "" {
		return fmt.Errorf("%w: Check was not called", ErrUnavailable)
	}

	cmd := exec.CommandContext(ctx, m.bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", m.bin, err)
	}

	done := make(chan struct{})
	var stopped chan struct{}
	if m.Heartbeat != nil {
		stopped = make(chan struct{})
		ticker := time.NewTicker(heartbeatInterval)
		go func() {
			defer close(stopped)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					m.Heartbeat()
				}
			}
		}()
	}

	err := cmd.Wait()
	close(done)
	if stopped != nil {
		// No Heartbeat call may land after the invocation returns.
		<-stopped
	}

	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s interrupted: %w", m.bin, ctx.Err())
		}
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return fmt.Errorf("%s exited abnormally: %s", m.bin, diag)
	}

	return nil
}
