package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/klauspost/compress/flate"

	"slicestack/internal/dcmtest"
	"slicestack/internal/models"
	"slicestack/pkg/synth"
)

func input(name string, b *dcmtest.Builder) models.RawSliceInput {
	return models.RawSliceInput{Name: name, Data: b.Bytes()}
}

// TestDecodeRejectsMissingMandatoryTags verifies that pixel data, rows and
// columns are each required
func TestDecodeRejectsMissingMandatoryTags(t *testing.T) {
	cases := map[string]*dcmtest.Builder{
		"NoPixelData": dcmtest.New(dcmtest.ExplicitLE).
			US(dcmtest.TagRows, 1).US(dcmtest.TagColumns, 1),
		"NoRows": dcmtest.New(dcmtest.ExplicitLE).
			US(dcmtest.TagColumns, 1).Pixels([]int16{1}),
		"NoColumns": dcmtest.New(dcmtest.ExplicitLE).
			US(dcmtest.TagRows, 1).Pixels([]int16{1}),
	}

	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			slice, err := Decode(input(name, b))
			if slice != nil {
				t.Fatalf("Expected no slice, got %+v", slice)
			}
			if !errors.Is(err, ErrRejected) || !errors.Is(err, ErrMissingTag) {
				t.Errorf("Expected rejected/missing tag, got %v", err)
			}
			var rej *RejectionError
			if !errors.As(err, &rej) || rej.Source != name {
				t.Errorf("Expected RejectionError for %s, got %v", name, err)
			}
		})
	}
}

// TestDecodeRejectsMalformedInput covers inputs that never reach the tag check
func TestDecodeRejectsMalformedInput(t *testing.T) {
	truncated := dcmtest.New(dcmtest.ExplicitLE).Frame(2, 2, []int16{1, 2, 3, 4}).Bytes()
	truncated = truncated[:len(truncated)-1]

	// pixel data is the last element; its 32-bit length sits before the
	// two sample bytes
	oversized := dcmtest.New(dcmtest.ExplicitLE).Frame(1, 1, []int16{1}).Bytes()
	binary.LittleEndian.PutUint32(oversized[len(oversized)-6:], 0xFFFFFFF0)

	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"Empty", nil, ErrUnparsable},
		{"Garbage", []byte("PK\x03\x04 definitely a zip archive"), ErrUnparsable},
		{"Truncated", truncated, ErrUnparsable},
		{"ZeroRows", dcmtest.New(dcmtest.ExplicitLE).Frame(0, 4, nil).Bytes(), ErrInvalidDimensions},
		{"ShortPixelData", dcmtest.New(dcmtest.ExplicitLE).Frame(4, 4, []int16{1, 2, 3}).Bytes(), ErrShortPixelData},
		{"RowsWithoutValue", dcmtest.New(dcmtest.ExplicitLE).
			Element(dcmtest.TagRows, "US", nil).US(dcmtest.TagColumns, 1).Pixels([]int16{1}).Bytes(), ErrInvalidDimensions},
		{"HeaderOnly", dcmtest.New(dcmtest.ExplicitLE).Bytes(), ErrMissingTag},
		{"UnknownTransferSyntax", dcmtest.New("1.2.3.4").Frame(1, 1, []int16{1}).Bytes(), ErrUnparsable},
		{"RowsAsText", dcmtest.New(dcmtest.ExplicitLE).
			Text(dcmtest.TagRows, "ZZ", "4").US(dcmtest.TagColumns, 1).Pixels([]int16{1}).Bytes(), ErrInvalidDimensions},
		{"LengthPastEnd", oversized, ErrUnparsable},
		{"Encapsulated", dcmtest.New("1.2.840.10008.1.2.4.90").
			US(dcmtest.TagRows, 1).US(dcmtest.TagColumns, 1).
			EncapsulatedPixels([]byte{0xFF, 0x4F}).Bytes(), ErrEncapsulated},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := DecodeResult(models.RawSliceInput{Name: tc.name, Data: tc.data})
			if !res.Rejected() {
				t.Fatal("Expected rejection")
			}
			if !errors.Is(res.Err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, res.Err)
			}
		})
	}
}

// TestDecodeClampsHounsfieldRange verifies every output value stays within
// [-1000, 3000] for extreme rescale parameters
func TestDecodeClampsHounsfieldRange(t *testing.T) {
	samples := []int16{math.MinInt16, -1, 0, 500, 1500, math.MaxInt16}
	params := []struct{ slope, intercept string }{
		{"1", "-2000"},
		{"1", "0"},
		{"-3.5", "100"},
		{"250", "-1024"},
		{"0.001", "2999.9"},
	}

	for _, p := range params {
		b := dcmtest.New(dcmtest.ExplicitLE).
			Text(dcmtest.TagRescaleSlope, "DS", p.slope).
			Text(dcmtest.TagRescaleIntercept, "DS", p.intercept).
			Frame(2, 3, samples)
		slice, err := Decode(input("clamp", b))
		if err != nil {
			t.Fatalf("Decode failed for slope %s intercept %s: %v", p.slope, p.intercept, err)
		}
		for i, v := range slice.Pixels {
			if v < models.MinHU || v > models.MaxHU {
				t.Errorf("Pixel %d = %f out of range (slope %s, intercept %s)", i, v, p.slope, p.intercept)
			}
		}
	}

	// slope 1, intercept -2000, raw 500 -> -1500 -> -1000
	b := dcmtest.New(dcmtest.ExplicitLE).
		Text(dcmtest.TagRescaleSlope, "DS", "1").
		Text(dcmtest.TagRescaleIntercept, "DS", "-2000").
		Frame(1, 1, []int16{500})
	slice, err := Decode(input("example", b))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if slice.Pixels[0] != -1000 {
		t.Errorf("Expected -1000, got %f", slice.Pixels[0])
	}
}

// TestDecodeDefaultRescale verifies that missing or unparsable rescale tags
// fall back to slope 1 and intercept 0
func TestDecodeDefaultRescale(t *testing.T) {
	samples := []int16{-1000, -5, 0, 42, 2999, 3000}
	builders := map[string]*dcmtest.Builder{
		"Absent": dcmtest.New(dcmtest.ExplicitLE).Frame(2, 3, samples),
		"Unparsable": dcmtest.New(dcmtest.ExplicitLE).
			Text(dcmtest.TagRescaleSlope, "DS", "one").
			Text(dcmtest.TagRescaleIntercept, "DS", "NaN").
			Frame(2, 3, samples),
	}

	for name, b := range builders {
		slice, err := Decode(input(name, b))
		if err != nil {
			t.Fatalf("%s: Decode failed: %v", name, err)
		}
		if slice.RescaleSlope != 1.0 || slice.RescaleIntercept != 0.0 {
			t.Errorf("%s: Expected slope 1 intercept 0, got %f %f", name, slice.RescaleSlope, slice.RescaleIntercept)
		}
		for i, s := range samples {
			if slice.Pixels[i] != float32(s) {
				t.Errorf("%s: Pixel %d expected %d, got %f", name, i, s, slice.Pixels[i])
			}
		}
	}
}

// TestDecodeMetadata verifies optional fields are extracted independently
func TestDecodeMetadata(t *testing.T) {
	cases := []struct {
		name     string
		build    func(b *dcmtest.Builder)
		wantZ    *float64
		wantLoc  *float64
		wantInst *int64
	}{
		{
			name: "AllPresent",
			build: func(b *dcmtest.Builder) {
				b.Text(dcmtest.TagImagePositionPatient, "DS", "1", "2", "-3.25").
					Text(dcmtest.TagSliceLocation, "DS", "12.5").
					Text(dcmtest.TagInstanceNumber, "IS", "-4")
			},
			wantZ:    ptr(-3.25),
			wantLoc:  ptr(12.5),
			wantInst: ptr(int64(-4)),
		},
		{
			name: "TwoComponentPosition",
			build: func(b *dcmtest.Builder) {
				b.Text(dcmtest.TagImagePositionPatient, "DS", "1", "2")
			},
		},
		{
			name: "FourComponentPosition",
			build: func(b *dcmtest.Builder) {
				b.Text(dcmtest.TagImagePositionPatient, "DS", "1", "2", "3", "4")
			},
		},
		{
			name: "UnparsablePositionComponent",
			build: func(b *dcmtest.Builder) {
				b.Text(dcmtest.TagImagePositionPatient, "DS", "1", "x", "3").
					Text(dcmtest.TagSliceLocation, "DS", "7")
			},
			wantLoc: ptr(7.0),
		},
		{
			name: "InfiniteLocation",
			build: func(b *dcmtest.Builder) {
				b.Text(dcmtest.TagSliceLocation, "DS", "Inf").
					Text(dcmtest.TagInstanceNumber, "IS", " 12 ")
			},
			wantInst: ptr(int64(12)),
		},
		{
			name: "FractionalInstance",
			build: func(b *dcmtest.Builder) {
				b.Text(dcmtest.TagInstanceNumber, "IS", "3.5")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := dcmtest.New(dcmtest.ExplicitLE)
			tc.build(b)
			b.Frame(1, 1, []int16{0})
			slice, err := Decode(input(tc.name, b))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			checkOptional(t, "image position z", slice.ImagePositionZ, tc.wantZ)
			checkOptional(t, "slice location", slice.SliceLocation, tc.wantLoc)
			checkOptional(t, "instance number", slice.InstanceNumber, tc.wantInst)
		})
	}
}

// TestDecodePixelLayout verifies row-major order, byte order handling and
// that surplus samples beyond rows*columns are ignored
func TestDecodePixelLayout(t *testing.T) {
	samples := []int16{1, 2, 3, 4, 5, 6, 99, 99}
	for _, uid := range []string{dcmtest.ExplicitLE, dcmtest.ImplicitLE, dcmtest.ExplicitBE, dcmtest.DeflatedLE} {
		slice, err := Decode(input(uid, dcmtest.New(uid).Frame(2, 3, samples)))
		if err != nil {
			t.Fatalf("%s: Decode failed: %v", uid, err)
		}
		if slice.Rows != 2 || slice.Columns != 3 {
			t.Fatalf("%s: Expected 2x3, got %dx%d", uid, slice.Rows, slice.Columns)
		}
		if len(slice.Pixels) != slice.Rows*slice.Columns {
			t.Fatalf("%s: Expected %d pixels, got %d", uid, slice.Rows*slice.Columns, len(slice.Pixels))
		}
		if got := slice.At(2, 1); got != 6 {
			t.Errorf("%s: Expected pixel (2,1) = 6, got %f", uid, got)
		}
		if got := slice.At(0, 1); got != 4 {
			t.Errorf("%s: Expected pixel (0,1) = 4, got %f", uid, got)
		}
	}
}

// TestDecodeSynthesizedSlice cross-checks against a file written by an
// independent DICOM encoder
func TestDecodeSynthesizedSlice(t *testing.T) {
	opts := synth.DefaultStackOptions()
	opts.Slices, opts.Rows, opts.Columns = 4, 8, 6
	specs := synth.Phantom(opts)

	for i, spec := range specs {
		data, err := synth.Bytes(spec)
		if err != nil {
			t.Fatalf("Encoding slice %d failed: %v", i, err)
		}
		slice, err := Decode(models.RawSliceInput{Name: "phantom", Data: data})
		if err != nil {
			t.Fatalf("Decoding slice %d failed: %v", i, err)
		}
		if slice.Rows != opts.Rows || slice.Columns != opts.Columns {
			t.Errorf("Slice %d: expected %dx%d, got %dx%d", i, opts.Rows, opts.Columns, slice.Rows, slice.Columns)
		}
		z, ok := slice.ImagePositionZ.Get()
		if !ok || math.Abs(z-spec.ImagePosition[2]) > 1e-9 {
			t.Errorf("Slice %d: expected z %f, got %v", i, spec.ImagePosition[2], slice.ImagePositionZ)
		}
		if inst, ok := slice.InstanceNumber.Get(); !ok || inst != int64(*spec.InstanceNumber) {
			t.Errorf("Slice %d: expected instance %d, got %v", i, *spec.InstanceNumber, slice.InstanceNumber)
		}
		if slice.RescaleIntercept != -1024 {
			t.Errorf("Slice %d: expected intercept -1024, got %f", i, slice.RescaleIntercept)
		}
		for y := 0; y < opts.Rows; y++ {
			for x := 0; x < opts.Columns; x++ {
				want := float32(Clamp(float64(spec.Pixel(x, y)) - 1024))
				if got := slice.At(x, y); got != want {
					t.Fatalf("Slice %d pixel (%d,%d): expected %f, got %f", i, x, y, want, got)
				}
			}
		}
	}
}

// TestDecodeWithoutHeader verifies bare data sets decode in both little
// endian syntaxes
func TestDecodeWithoutHeader(t *testing.T) {
	for _, uid := range []string{dcmtest.ExplicitLE, dcmtest.ImplicitLE} {
		b := dcmtest.New(uid).WithoutHeader().
			Text(dcmtest.TagModality, "CS", "CT").
			Text(dcmtest.TagReferencedSOPUID, "UI", "1.2.826.0.1.3680043.8.498.10472693857261849302").
			Text(dcmtest.TagInstanceNumber, "IS", "7").
			Text(dcmtest.TagImagePositionPatient, "DS", "-125.0", "-125.0", "42.5").
			Text(dcmtest.TagRescaleIntercept, "DS", "-1024").
			Text(dcmtest.TagRescaleSlope, "DS", "1").
			Frame(2, 2, []int16{-1, 0, 1, 1000})
		slice, err := Decode(input(uid, b))
		if err != nil {
			t.Fatalf("%s: Decode of bare data set failed: %v", uid, err)
		}
		if z, ok := slice.ImagePositionZ.Get(); !ok || z != 42.5 {
			t.Errorf("%s: Expected z 42.5, got %v", uid, slice.ImagePositionZ)
		}
		if got := slice.At(1, 1); got != 1000-1024 {
			t.Errorf("%s: Expected pixel (1,1) = -24, got %f", uid, got)
		}
	}
}

// TestDecodeSkipsSequences verifies nested items do not leak into the
// top-level attributes and that decoding resumes after the sequence
func TestDecodeSkipsSequences(t *testing.T) {
	for _, uid := range []string{dcmtest.ExplicitLE, dcmtest.ImplicitLE, dcmtest.ExplicitBE} {
		for _, undefinedLength := range []bool{false, true} {
			b := dcmtest.New(uid)
			item := b.Item().
				Text(dcmtest.TagReferencedSOPUID, "UI", "1.2.3.4").
				Text(dcmtest.TagSliceLocation, "DS", "999")
			b.Text(dcmtest.TagModality, "CS", "CT").
				Sequence(dcmtest.TagReferencedImageSeq, undefinedLength, item, item).
				Frame(1, 1, []int16{5})

			slice, err := Decode(input(uid, b))
			if err != nil {
				t.Fatalf("Decode with sequence (%s, undefined=%v) failed: %v", uid, undefinedLength, err)
			}
			if _, ok := slice.SliceLocation.Get(); ok {
				t.Errorf("Nested slice location leaked to top level (%s, undefined=%v)", uid, undefinedLength)
			}
			if slice.Pixels[0] != 5 {
				t.Errorf("Expected pixel 5 after sequence, got %f (%s, undefined=%v)", slice.Pixels[0], uid, undefinedLength)
			}
		}
	}
}

// nested wraps a leaf item in depth further sequence/item pairs
func nested(uid string, depth int, undefinedLength bool) *dcmtest.Builder {
	b := dcmtest.New(uid)
	item := b.Item().Text(dcmtest.TagReferencedSOPUID, "UI", "1.2.3.4")
	for i := 0; i < depth; i++ {
		item = b.Item().Sequence(dcmtest.TagReferencedImageSeq, undefinedLength, item)
	}
	return b.Sequence(dcmtest.TagReferencedImageSeq, undefinedLength, item).Frame(1, 1, []int16{7})
}

// TestDecodeNestingLimit verifies moderately nested sequences decode while
// pathologically deep ones are rejected before the full parse
func TestDecodeNestingLimit(t *testing.T) {
	for _, uid := range []string{dcmtest.ExplicitLE, dcmtest.ImplicitLE} {
		for _, undefinedLength := range []bool{false, true} {
			if _, err := Decode(input("shallow", nested(uid, 10, undefinedLength))); err != nil {
				t.Errorf("Decode of 10 nested levels (%s, undefined=%v) failed: %v", uid, undefinedLength, err)
			}

			slice, err := Decode(input("deep", nested(uid, 1000, undefinedLength)))
			if slice != nil {
				t.Fatalf("Expected rejection of 1000 nested levels (%s, undefined=%v)", uid, undefinedLength)
			}
			if !errors.Is(err, ErrUnparsable) || !errors.Is(err, errNestingTooDeep) {
				t.Errorf("Expected nesting rejection (%s, undefined=%v), got %v", uid, undefinedLength, err)
			}
		}
	}
}

// TestDecodeInflateLimit verifies a deflated body that expands beyond the
// size limit is rejected
func TestDecodeInflateLimit(t *testing.T) {
	b := dcmtest.New(dcmtest.DeflatedLE).
		US(dcmtest.TagRows, 1).US(dcmtest.TagColumns, 1).
		Pixels(make([]int16, inflateFloor/2+1024))
	data := b.Bytes()
	if int64(len(data))*inflateRatio >= inflateFloor {
		t.Fatalf("Fixture compressed to %d bytes, too large for the test", len(data))
	}

	slice, err := Decode(models.RawSliceInput{Name: "expanding", Data: data})
	if slice != nil {
		t.Fatal("Expected rejection")
	}
	if !errors.Is(err, ErrUnparsable) || !errors.Is(err, errInflateLimit) {
		t.Errorf("Expected inflate limit rejection, got %v", err)
	}
}

func TestInflate(t *testing.T) {
	var z bytes.Buffer
	w, err := flate.NewWriter(&z, flate.BestCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(make([]byte, 4096)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := inflate(z.Bytes(), 4096)
	if err != nil {
		t.Fatalf("Inflate at the limit failed: %v", err)
	}
	if len(out) != 4096 {
		t.Errorf("Expected 4096 bytes, got %d", len(out))
	}

	if _, err := inflate(z.Bytes(), 4095); !errors.Is(err, errInflateLimit) {
		t.Errorf("Expected errInflateLimit one byte under, got %v", err)
	}
	if _, err := inflate([]byte{0xFF, 0xFF, 0xFF}, 4096); err == nil {
		t.Error("Expected an error for a corrupt stream")
	}
}

func TestReasonLabel(t *testing.T) {
	_, err := Decode(models.RawSliceInput{Name: "empty"})
	if got := ReasonLabel(err); got != "unparsable" {
		t.Errorf("Expected unparsable, got %s", got)
	}
	if got := ReasonLabel(nil); got != "" {
		t.Errorf("Expected empty label for nil, got %s", got)
	}
}

func ptr[T any](v T) *T { return &v }

func checkOptional[T comparable](t *testing.T, field string, got models.Optional[T], want *T) {
	t.Helper()
	v, ok := got.Get()
	switch {
	case want == nil && ok:
		t.Errorf("Expected %s absent, got %v", field, v)
	case want != nil && !ok:
		t.Errorf("Expected %s = %v, got absent", field, *want)
	case want != nil && v != *want:
		t.Errorf("Expected %s = %v, got %v", field, *want, v)
	}
}
