package decoder

import (
	"encoding/binary"
	"fmt"

	"slicestack/internal/models"
)

// normalize reads the first n signed 16-bit samples of raw and maps each
// through v*slope+intercept, clamped to [models.MinHU, models.MaxHU].
func normalize(raw []byte, order binary.ByteOrder, n int, slope, intercept float64) ([]float32, error) {
	if len(raw)/2 < n {
		return nil, fmt.Errorf("%w: %d samples for %d pixels", ErrShortPixelData, len(raw)/2, n)
	}
	out := make([]float32, n)
	for i := range out {
		v := int16(order.Uint16(raw[2*i:]))
		out[i] = float32(Clamp(float64(v)*slope + intercept))
	}
	return out, nil
}

// Clamp limits hu to the normalized intensity range.
func Clamp(hu float64) float64 {
	switch {
	case hu < models.MinHU:
		return models.MinHU
	case hu > models.MaxHU:
		return models.MaxHU
	default:
		return hu
	}
}
