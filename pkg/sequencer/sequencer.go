// Package sequencer establishes the playback order of a batch of decoded
// slices.
//
// Slices are compared by a cascade of keys, strongest first: the z
// component of Image Position (Patient), Slice Location, Instance Number
// and finally the natural order of the source names. At each key a slice
// carrying the value sorts before one that lacks it, so a slice with richer
// metadata always ranks ahead of a sparser one regardless of the values.
package sequencer

import (
	"cmp"
	"slices"

	"slicestack/internal/models"
	"slicestack/pkg/decoder"
)

// Key names the cascade level that decided a comparison.
type Key int

const (
	KeyPosition Key = iota
	KeyLocation
	KeyInstance
	KeyName
)

func (k Key) String() string {
	switch k {
	case KeyPosition:
		return "image_position"
	case KeyLocation:
		return "slice_location"
	case KeyInstance:
		return "instance_number"
	default:
		return "source_name"
	}
}

// Order drops rejected results and sorts the accepted slices. It returns
// the ordered slices and the number of rejected inputs, which always add up
// to len(results).
func Order(results []decoder.Result) ([]*models.DecodedSlice, int) {
	accepted := make([]*models.DecodedSlice, 0, len(results))
	rejected := 0
	for _, r := range results {
		if r.Rejected() {
			rejected++
			continue
		}
		accepted = append(accepted, r.Slice)
	}
	Sort(accepted)
	return accepted, rejected
}

// Sort orders s in place. Slices that compare equal keep their relative
// input order.
func Sort(s []*models.DecodedSlice) {
	slices.SortStableFunc(s, Compare)
}

// Compare returns a negative number when a sorts before b, a positive
// number when after, and zero when no key separates them.
func Compare(a, b *models.DecodedSlice) int {
	c, _ := compareWithKey(a, b)
	return c
}

// DecidingKey reports which cascade level separates a and b. For slices
// that compare equal it returns KeyName.
func DecidingKey(a, b *models.DecodedSlice) Key {
	_, k := compareWithKey(a, b)
	return k
}

func compareWithKey(a, b *models.DecodedSlice) (int, Key) {
	if c, decided := compareOptional(a.ImagePositionZ, b.ImagePositionZ); decided {
		return c, KeyPosition
	}
	if c, decided := compareOptional(a.SliceLocation, b.SliceLocation); decided {
		return c, KeyLocation
	}
	if c, decided := compareOptional(a.InstanceNumber, b.InstanceNumber); decided {
		return c, KeyInstance
	}
	return NaturalCompare(a.SourceName, b.SourceName), KeyName
}

// compareOptional applies one cascade level. It decides when exactly one
// side is present, or when both are present and differ; equal values and
// double absence fall through to the next level.
func compareOptional[T cmp.Ordered](a, b models.Optional[T]) (int, bool) {
	av, aok := a.Get()
	bv, bok := b.Get()
	switch {
	case aok && bok:
		c := cmp.Compare(av, bv)
		return c, c != 0
	case aok:
		return -1, true
	case bok:
		return 1, true
	default:
		return 0, false
	}
}
