package synth

import (
	"fmt"
	"math"
	randv2 "math/rand/v2"
	"os"
	"path/filepath"
)

// Stored value offset of the phantom: HU = stored - 1024.
const phantomIntercept = -1024.0

// StackOptions controls GenerateStack.
type StackOptions struct {
	Slices  int
	Rows    int
	Columns int

	// Spacing is the distance between slice positions in mm
	Spacing float64

	// Origin is the z position of the first slice
	Origin float64

	// Seed drives the file name shuffle
	Seed uint64

	// DropPosition and DropLocation omit the respective tags from every
	// slice, forcing the sequencer onto weaker ordering keys
	DropPosition bool
	DropLocation bool

	// CorruptEvery truncates every n-th file when n > 0
	CorruptEvery int
}

// DefaultStackOptions returns a small 16-slice stack.
func DefaultStackOptions() StackOptions {
	return StackOptions{
		Slices:  16,
		Rows:    64,
		Columns: 64,
		Spacing: 1.25,
		Origin:  -10,
		Seed:    1,
	}
}

// Phantom returns the slice specs of a water sphere with a bone core in
// air, in spatial order.
func Phantom(opts StackOptions) []SliceSpec {
	specs := make([]SliceSpec, opts.Slices)
	slope, intercept := 1.0, phantomIntercept
	for i := range specs {
		z := opts.Origin + float64(i)*opts.Spacing
		loc := z
		inst := i + 1
		spec := SliceSpec{
			Rows:             opts.Rows,
			Columns:          opts.Columns,
			InstanceNumber:   &inst,
			RescaleSlope:     &slope,
			RescaleIntercept: &intercept,
			Pixel:            sphereSection(opts, i),
		}
		if !opts.DropPosition {
			spec.ImagePosition = []float64{-float64(opts.Columns) / 2, -float64(opts.Rows) / 2, z}
		}
		if !opts.DropLocation {
			spec.SliceLocation = &loc
		}
		specs[i] = spec
	}
	return specs
}

func sphereSection(opts StackOptions, index int) func(x, y int) int16 {
	r := math.Min(float64(opts.Rows), float64(opts.Columns)) / 2 * 0.9
	dz := (float64(index) - float64(opts.Slices-1)/2) / (float64(opts.Slices) / 2) * r
	radius := math.Sqrt(math.Max(0, r*r-dz*dz))
	cx, cy := float64(opts.Columns)/2, float64(opts.Rows)/2
	return func(x, y int) int16 {
		d := math.Hypot(float64(x)-cx, float64(y)-cy)
		switch {
		case d < radius/3:
			return 1024 + 1000 // bone
		case d < radius:
			return 1024 // water
		default:
			return 0 // air, -1024 HU
		}
	}
}

// GenerateStack writes the phantom to dir under shuffled file names so that
// name order differs from spatial order. It returns the written paths in
// spatial order.
func GenerateStack(dir string, opts StackOptions) ([]string, error) {
	if opts.Slices <= 0 {
		return nil, fmt.Errorf("slice count must be positive, got %d", opts.Slices)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	rng := randv2.New(randv2.NewPCG(opts.Seed, opts.Seed))
	names := rng.Perm(opts.Slices)

	specs := Phantom(opts)
	paths := make([]string, len(specs))
	for i, spec := range specs {
		data, err := Bytes(spec)
		if err != nil {
			return nil, fmt.Errorf("encoding slice %d: %w", i, err)
		}
		if opts.CorruptEvery > 0 && (i+1)%opts.CorruptEvery == 0 {
			data = data[:len(data)/2]
		}
		path := filepath.Join(dir, fmt.Sprintf("img%d.dcm", names[i]+1))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		paths[i] = path
	}
	return paths, nil
}
