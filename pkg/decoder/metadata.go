package decoder

import (
	"math"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"slicestack/internal/models"
)

// textValues returns the string values of t, or nil when the element is
// absent or not string valued.
func textValues(ds *dicom.Dataset, t tag.Tag) []string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil || el.Value.ValueType() != dicom.Strings {
		return nil
	}
	values := dicom.MustGetStrings(el.Value)
	out := make([]string, len(values))
	for i, s := range values {
		out[i] = strings.Trim(s, " \x00")
	}
	return out
}

func intValues(el *dicom.Element) []int {
	if el.Value == nil || el.Value.ValueType() != dicom.Ints {
		return nil
	}
	return dicom.MustGetInts(el.Value)
}

// positionZ returns the third component of Image Position (Patient) when
// the element holds exactly three parsable numbers.
func positionZ(ds *dicom.Dataset) models.Optional[float64] {
	values := textValues(ds, tag.ImagePositionPatient)
	if len(values) != 3 {
		return models.None[float64]()
	}
	var z float64
	for _, s := range values {
		v, ok := parseFloat(s)
		if !ok {
			return models.None[float64]()
		}
		z = v
	}
	return models.Some(z)
}

func singleFloat(ds *dicom.Dataset, t tag.Tag) models.Optional[float64] {
	values := textValues(ds, t)
	if len(values) != 1 {
		return models.None[float64]()
	}
	v, ok := parseFloat(values[0])
	if !ok {
		return models.None[float64]()
	}
	return models.Some(v)
}

func integer(ds *dicom.Dataset, t tag.Tag) models.Optional[int64] {
	values := textValues(ds, t)
	if len(values) != 1 {
		return models.None[int64]()
	}
	v, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return models.None[int64]()
	}
	return models.Some(v)
}

func floatOr(ds *dicom.Dataset, t tag.Tag, def float64) float64 {
	return singleFloat(ds, t).OrElse(def)
}

// parseFloat accepts decimal strings only; NaN and infinities are treated
// as unparsable.
func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
