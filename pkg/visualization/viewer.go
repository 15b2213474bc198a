// Package visualization renders ordered slice stacks as 8-bit grayscale
// images through a display window. Windowing is a presentation step only;
// the stack itself always keeps clamped HU values.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"slicestack/internal/models"
)

// Window maps an HU range of Width centred on Center onto the full gray
// scale. Values below the range render black, above it white.
type Window struct {
	Center float64
	Width  float64
}

// DefaultWindow covers -1000 HU to 2000 HU.
func DefaultWindow() Window {
	return Window{Center: 500, Width: 3000}
}

// Apply returns the gray level of hu.
func (w Window) Apply(hu float32) uint8 {
	if w.Width <= 0 {
		if float64(hu) < w.Center {
			return 0
		}
		return 255
	}
	lo := w.Center - w.Width/2
	v := (float64(hu) - lo) / w.Width * 255
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}

// Viewer renders the frames of an ordered stack
type Viewer struct {
	// stack holds the slices in playback order
	stack *models.Stack

	// window is applied to every rendered pixel
	window Window

	// scale and labels only affect Render and SaveFrameSequence
	scale  int
	labels bool
}

// NewViewer creates a viewer over stack
func NewViewer(stack *models.Stack, window Window, opts ...ViewerOption) *Viewer {
	if stack == nil {
		stack = &models.Stack{}
	}
	v := &Viewer{
		stack:  stack,
		window: window,
		scale:  1,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Len returns the number of frames in the stack.
func (v *Viewer) Len() int {
	return len(v.stack.Slices)
}

// Frame renders the slice at playback position i
func (v *Viewer) Frame(i int) (image.Image, error) {
	if i < 0 || i >= len(v.stack.Slices) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", i, len(v.stack.Slices))
	}
	s := v.stack.Slices[i]

	img := image.NewGray(image.Rect(0, 0, s.Columns, s.Rows))
	for y := 0; y < s.Rows; y++ {
		for x := 0; x < s.Columns; x++ {
			img.SetGray(x, y, color.Gray{Y: v.window.Apply(s.At(x, y))})
		}
	}
	return img, nil
}

// Reslice renders a plane through the stack along the given axis. "z"
// is the same as Frame; "x" and "y" cut across all frames, one row per
// frame, and require every slice to share the same dimensions.
func (v *Viewer) Reslice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	if axis == "z" || axis == "Z" {
		return v.Frame(position)
	}

	rows, cols, ok := v.stack.Dimensions()
	if !ok {
		return nil, fmt.Errorf("stack has no common frame size")
	}
	depth := len(v.stack.Slices)

	var img *image.Gray
	switch axis {
	case "x", "X":
		// YZ plane
		if position >= cols {
			return nil, fmt.Errorf("position %d exceeds width %d", position, cols)
		}
		img = image.NewGray(image.Rect(0, 0, rows, depth))
		for z, s := range v.stack.Slices {
			for y := 0; y < rows; y++ {
				img.SetGray(y, z, color.Gray{Y: v.window.Apply(s.At(position, y))})
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= rows {
			return nil, fmt.Errorf("position %d exceeds height %d", position, rows)
		}
		img = image.NewGray(image.Rect(0, 0, cols, depth))
		for z, s := range v.stack.Slices {
			for x := 0; x < cols; x++ {
				img.SetGray(x, z, color.Gray{Y: v.window.Apply(s.At(x, position))})
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveFrame saves a rendered frame as a JPEG image
func (v *Viewer) SaveFrame(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveFrameSequence renders every frame in playback order into outputDir
// as frame_000.jpg, frame_001.jpg, ...
func (v *Viewer) SaveFrameSequence(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for i := range v.stack.Slices {
		img, err := v.Render(i)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("frame_%03d.jpg", i))
		if err := v.SaveFrame(img, filename); err != nil {
			return fmt.Errorf("saving frame %d (%s): %w", i, v.stack.Slices[i].SourceName, err)
		}
	}

	return nil
}
