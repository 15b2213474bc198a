package visualization

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ViewerOption configures how previews are rendered.
type ViewerOption func(*Viewer)

// WithScale enlarges previews by an integer factor.
func WithScale(factor int) ViewerOption {
	return func(v *Viewer) {
		if factor > 1 {
			v.scale = factor
		}
	}
}

// WithLabels stamps each preview with its playback position and source name.
func WithLabels() ViewerOption {
	return func(v *Viewer) {
		v.labels = true
	}
}

// Render returns frame i as written by SaveFrameSequence: windowed, then
// scaled and labelled according to the viewer options.
func (v *Viewer) Render(i int) (image.Image, error) {
	frame, err := v.Frame(i)
	if err != nil {
		return nil, err
	}

	out := frame.(*image.Gray)
	if v.scale > 1 {
		b := out.Bounds()
		scaled := image.NewGray(image.Rect(0, 0, b.Dx()*v.scale, b.Dy()*v.scale))
		draw.BiLinear.Scale(scaled, scaled.Bounds(), out, b, draw.Src, nil)
		out = scaled
	}

	if v.labels {
		label(out, fmt.Sprintf("%d/%d %s", i+1, len(v.stack.Slices), v.stack.Slices[i].SourceName))
	}
	return out, nil
}

// label draws text in the top-left corner on a black box, clipped to dst.
func label(dst draw.Image, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	box := image.Rect(0, 0, width, face.Height+2).Intersect(dst.Bounds())
	draw.Draw(dst, box, image.Black, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(2), Y: fixed.I(face.Ascent + 1)},
	}
	drawer.DrawString(text)
}
