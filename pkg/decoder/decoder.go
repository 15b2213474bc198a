// Package decoder turns one raw DICOM slice file into a validated,
// normalized models.DecodedSlice. Decoding is a pure function of the input
// bytes and safe to run concurrently.
package decoder

import (
	"bytes"
	"fmt"
	"math"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"slicestack/internal/models"
)

// Result is the outcome of decoding one input: either Slice is set, or Err
// holds a *RejectionError.
type Result struct {
	Source string
	Slice  *models.DecodedSlice
	Err    error
}

// Rejected reports whether the input produced no slice.
func (r Result) Rejected() bool {
	return r.Slice == nil
}

// DecodeResult wraps Decode into a Result.
func DecodeResult(input models.RawSliceInput) Result {
	slice, err := Decode(input)
	return Result{Source: input.Name, Slice: slice, Err: err}
}

// Decode parses input and builds a DecodedSlice. Any structural problem or
// missing mandatory tag yields a *RejectionError; optional metadata that
// fails to parse is left absent instead.
func Decode(input models.RawSliceInput) (slice *models.DecodedSlice, err error) {
	defer func() {
		if r := recover(); r != nil {
			slice = nil
			err = reject(input.Name, fmt.Errorf("%w: %v", ErrUnparsable, r))
		}
	}()

	l, err := inspect(input.Data)
	if err != nil {
		return nil, reject(input.Name, fmt.Errorf("%w: %w", ErrUnparsable, err))
	}

	ds, err := dicom.Parse(bytes.NewReader(input.Data), int64(len(input.Data)), nil, dicom.SkipProcessingPixelDataValue())
	if err != nil {
		return nil, reject(input.Name, fmt.Errorf("%w: %w", ErrUnparsable, err))
	}

	for _, t := range []tag.Tag{tag.PixelData, tag.Rows, tag.Columns} {
		if _, err := ds.FindElementByTag(t); err != nil {
			return nil, reject(input.Name, fmt.Errorf("%w: %v", ErrMissingTag, t))
		}
	}

	rows, err := dimension(&ds, tag.Rows)
	if err != nil {
		return nil, reject(input.Name, err)
	}
	cols, err := dimension(&ds, tag.Columns)
	if err != nil {
		return nil, reject(input.Name, err)
	}

	raw, err := pixelBytes(&ds)
	if err != nil {
		return nil, reject(input.Name, err)
	}

	slope := floatOr(&ds, tag.RescaleSlope, 1.0)
	intercept := floatOr(&ds, tag.RescaleIntercept, 0.0)

	pixels, err := normalize(raw, l.order, rows*cols, slope, intercept)
	if err != nil {
		return nil, reject(input.Name, err)
	}

	return &models.DecodedSlice{
		SourceName:       input.Name,
		ImagePositionZ:   positionZ(&ds),
		SliceLocation:    singleFloat(&ds, tag.SliceLocation),
		InstanceNumber:   integer(&ds, tag.InstanceNumber),
		RescaleSlope:     slope,
		RescaleIntercept: intercept,
		Rows:             rows,
		Columns:          cols,
		Pixels:           pixels,
	}, nil
}

// inspect resolves the body encoding and checks the structure of the data
// set before the full parse allocates anything for it.
func inspect(data []byte) (layout, error) {
	l, err := readLayout(data)
	if err != nil {
		return layout{}, err
	}
	body, err := l.body(data)
	if err != nil {
		return layout{}, err
	}
	if err := checkStructure(body, l); err != nil {
		return layout{}, err
	}
	return l, nil
}

// dimension reads a Rows or Columns value, which must be a positive
// unsigned short.
func dimension(ds *dicom.Dataset, t tag.Tag) (int, error) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingTag, t)
	}
	values := intValues(el)
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: %v has no value", ErrInvalidDimensions, t)
	}
	if v := values[0]; v <= 0 || v > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %v = %d", ErrInvalidDimensions, t, v)
	}
	return values[0], nil
}

// pixelBytes returns the native pixel data left unprocessed by the parser.
func pixelBytes(ds *dicom.Dataset) ([]byte, error) {
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingTag, tag.PixelData)
	}
	if el.Value == nil || el.Value.ValueType() != dicom.PixelData {
		return nil, fmt.Errorf("%w: pixel data element holds no pixel value", ErrUnparsable)
	}
	info := dicom.MustGetPixelDataInfo(el.Value)
	if info.IsEncapsulated {
		return nil, ErrEncapsulated
	}
	if !info.IntentionallyUnprocessed {
		return nil, fmt.Errorf("%w: pixel data was not read raw", ErrUnparsable)
	}
	return info.UnprocessedValueData, nil
}
