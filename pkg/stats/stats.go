// Package stats summarizes an ordered slice stack: per-slice intensity
// statistics and the spacing between consecutive slices.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"

	"slicestack/internal/models"
	"slicestack/pkg/sequencer"
)

// Spacing is considered uniform when every gap is within these tolerances
// of the mean gap.
const (
	SpacingAbsTolerance = 1e-3
	SpacingRelTolerance = 1e-2
)

// SliceStats holds intensity statistics of one slice, in HU.
type SliceStats struct {
	Source string  `yaml:"source"`
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stddev"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// Spacing describes the gaps between consecutive slices along the key
// that ordered them.
type Spacing struct {
	Key     string  `yaml:"key"`
	Mean    float64 `yaml:"mean"`
	StdDev  float64 `yaml:"stddev"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Uniform bool    `yaml:"uniform"`
}

// Summary is the outcome of Summarize.
type Summary struct {
	Slices []SliceStats `yaml:"slices"`

	// Spacing is nil unless every slice carries the same spatial key and
	// there are at least two slices
	Spacing *Spacing `yaml:"spacing,omitempty"`

	// OrderedBy is the weakest cascade key that separated any two
	// neighbours, i.e. the key the playback order ultimately relies on
	OrderedBy string `yaml:"ordered_by"`

	// Decisions counts neighbour pairs by the key that separated them
	Decisions map[string]int `yaml:"decisions"`
}

// Summarize computes statistics over slices, which are expected in
// playback order.
func Summarize(slices []*models.DecodedSlice) Summary {
	sum := Summary{
		Slices:    make([]SliceStats, len(slices)),
		Decisions: make(map[string]int),
	}
	for i, s := range slices {
		sum.Slices[i] = sliceStats(s)
	}

	weakest := sequencer.KeyPosition
	for i := 1; i < len(slices); i++ {
		k := sequencer.DecidingKey(slices[i-1], slices[i])
		sum.Decisions[k.String()]++
		if k > weakest {
			weakest = k
		}
	}
	if len(slices) > 1 {
		sum.OrderedBy = weakest.String()
	}

	sum.Spacing = spacing(slices)
	return sum
}

func sliceStats(s *models.DecodedSlice) SliceStats {
	st := SliceStats{Source: s.SourceName}
	if len(s.Pixels) == 0 {
		return st
	}
	values := make([]float64, len(s.Pixels))
	for i, v := range s.Pixels {
		values[i] = float64(v)
	}
	st.Mean, st.StdDev = meanStdDev(values)
	st.Min = floats.Min(values)
	st.Max = floats.Max(values)
	return st
}

func spacing(slices []*models.DecodedSlice) *Spacing {
	if len(slices) < 2 {
		return nil
	}

	key, positions := positionsOf(slices)
	if positions == nil {
		return nil
	}

	gaps := make([]float64, len(positions)-1)
	for i := range gaps {
		gaps[i] = math.Abs(positions[i+1] - positions[i])
	}

	sp := &Spacing{
		Key: key.String(),
		Min: floats.Min(gaps),
		Max: floats.Max(gaps),
	}
	sp.Mean, sp.StdDev = meanStdDev(gaps)
	sp.Uniform = scalar.EqualWithinAbsOrRel(sp.Min, sp.Mean, SpacingAbsTolerance, SpacingRelTolerance) &&
		scalar.EqualWithinAbsOrRel(sp.Max, sp.Mean, SpacingAbsTolerance, SpacingRelTolerance)
	return sp
}

// positionsOf returns the spatial coordinate of every slice from the
// strongest key all of them carry, or nil when no such key exists.
func positionsOf(slices []*models.DecodedSlice) (sequencer.Key, []float64) {
	for _, key := range []sequencer.Key{sequencer.KeyPosition, sequencer.KeyLocation} {
		out := make([]float64, 0, len(slices))
		for _, s := range slices {
			v := s.ImagePositionZ
			if key == sequencer.KeyLocation {
				v = s.SliceLocation
			}
			f, ok := v.Get()
			if !ok {
				break
			}
			out = append(out, f)
		}
		if len(out) == len(slices) {
			return key, out
		}
	}
	return sequencer.KeyName, nil
}

// meanStdDev is stat.MeanStdDev with a zero deviation for single samples.
func meanStdDev(x []float64) (mean, std float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}
