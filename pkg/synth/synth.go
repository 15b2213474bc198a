// Package synth writes synthetic CT slice files. It is used to produce
// demo stacks and test fixtures with controllable metadata gaps.
package synth

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"strconv"

	"github.com/google/uuid"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
	ctImageStorage         = "1.2.840.10008.5.1.4.1.1.2"
)

// SliceSpec describes one slice file. Nil metadata fields are omitted
// from the written file.
type SliceSpec struct {
	Rows    int
	Columns int

	// ImagePosition is written as-is; any length other than 3 produces a
	// malformed position
	ImagePosition    []float64
	SliceLocation    *float64
	InstanceNumber   *int
	RescaleSlope     *float64
	RescaleIntercept *float64

	// Pixel returns the stored value at column x, row y
	Pixel func(x, y int) int16
}

// Write encodes spec as an explicit VR little endian Part 10 file.
func Write(w io.Writer, spec SliceSpec) error {
	elems, err := Elements(spec)
	if err != nil {
		return err
	}
	return dicom.Write(w, dicom.Dataset{Elements: elems})
}

// Bytes returns the encoded file for spec.
func Bytes(spec SliceSpec) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, spec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Elements builds the data set elements for spec.
func Elements(spec SliceSpec) ([]*dicom.Element, error) {
	if spec.Rows <= 0 || spec.Columns <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", spec.Rows, spec.Columns)
	}

	sopUID := newUID()
	b := &elementList{}
	b.add(tag.MediaStorageSOPClassUID, []string{ctImageStorage})
	b.add(tag.MediaStorageSOPInstanceUID, []string{sopUID})
	b.add(tag.TransferSyntaxUID, []string{explicitVRLittleEndian})
	b.add(tag.SOPClassUID, []string{ctImageStorage})
	b.add(tag.SOPInstanceUID, []string{sopUID})
	b.add(tag.Modality, []string{"CT"})
	if spec.InstanceNumber != nil {
		b.add(tag.InstanceNumber, []string{strconv.Itoa(*spec.InstanceNumber)})
	}
	if spec.ImagePosition != nil {
		pos := make([]string, len(spec.ImagePosition))
		for i, v := range spec.ImagePosition {
			pos[i] = formatDS(v)
		}
		b.add(tag.ImagePositionPatient, pos)
	}
	if spec.SliceLocation != nil {
		b.add(tag.SliceLocation, []string{formatDS(*spec.SliceLocation)})
	}
	b.add(tag.SamplesPerPixel, []int{1})
	b.add(tag.PhotometricInterpretation, []string{"MONOCHROME2"})
	b.add(tag.Rows, []int{spec.Rows})
	b.add(tag.Columns, []int{spec.Columns})
	b.add(tag.BitsAllocated, []int{16})
	b.add(tag.BitsStored, []int{16})
	b.add(tag.HighBit, []int{15})
	b.add(tag.PixelRepresentation, []int{1})
	if spec.RescaleIntercept != nil {
		b.add(tag.RescaleIntercept, []string{formatDS(*spec.RescaleIntercept)})
	}
	if spec.RescaleSlope != nil {
		b.add(tag.RescaleSlope, []string{formatDS(*spec.RescaleSlope)})
	}

	pixelsPerFrame := spec.Rows * spec.Columns
	nativeFrame := frame.NewNativeFrame[uint16](16, spec.Rows, spec.Columns, pixelsPerFrame, 1)
	for y := 0; y < spec.Rows; y++ {
		for x := 0; x < spec.Columns; x++ {
			var v int16
			if spec.Pixel != nil {
				v = spec.Pixel(x, y)
			}
			nativeFrame.RawData[y*spec.Columns+x] = uint16(v)
		}
	}
	b.add(tag.PixelData, dicom.PixelDataInfo{
		Frames: []*frame.Frame{
			{
				Encapsulated: false,
				NativeData:   nativeFrame,
			},
		},
	})

	if b.err != nil {
		return nil, b.err
	}
	return b.elems, nil
}

// elementList collects elements and keeps the first construction error.
type elementList struct {
	elems []*dicom.Element
	err   error
}

func (l *elementList) add(t tag.Tag, data any) {
	if l.err != nil {
		return
	}
	el, err := dicom.NewElement(t, data)
	if err != nil {
		l.err = fmt.Errorf("building element %v: %w", t, err)
		return
	}
	l.elems = append(l.elems, el)
}

// newUID returns a UUID derived UID under the 2.25 root (PS3.5 B.2).
func newUID() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:])
	return "2.25." + n.String()
}

// formatDS renders a decimal string value; DS allows at most 16 bytes.
func formatDS(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if len(s) > 16 {
		s = strconv.FormatFloat(v, 'g', 10, 64)
	}
	return s
}
