package models

// Normalized intensity bounds in Hounsfield units. Every decoded pixel
// lies in [MinHU, MaxHU].
const (
	MinHU = -1000.0
	MaxHU = 3000.0
)

// RawSliceInput is one undecoded slice file as handed over by the caller.
type RawSliceInput struct {
	// Name identifies the input in diagnostics and breaks ordering ties
	Name string

	// Data is the complete file content
	Data []byte
}

// DecodedSlice represents a single validated DICOM slice with its
// positional metadata and normalized pixel buffer
type DecodedSlice struct {
	// SourceName is the display name of the input the slice came from
	SourceName string

	// ImagePositionZ is the z component of Image Position (Patient), (0020,0032)
	ImagePositionZ Optional[float64]

	// SliceLocation is the scalar position along the scan axis, (0020,1041)
	SliceLocation Optional[float64]

	// InstanceNumber is the acquisition order, (0020,0013)
	InstanceNumber Optional[int64]

	// RescaleSlope and RescaleIntercept map stored values to HU
	RescaleSlope     float64
	RescaleIntercept float64

	// Rows and Columns are the frame dimensions
	Rows    int
	Columns int

	// Pixels holds Rows*Columns clamped HU values in row-major order
	Pixels []float32
}

// At returns the normalized value at column x, row y.
func (s *DecodedSlice) At(x, y int) float32 {
	return s.Pixels[y*s.Columns+x]
}

// Stack represents an ordered batch of slices ready for playback
type Stack struct {
	// Slices are the accepted slices in playback order
	Slices []*DecodedSlice

	// Rejected counts inputs that were invalid or malformed
	Rejected int
}

// Total returns the number of inputs the stack was built from.
func (s *Stack) Total() int {
	return len(s.Slices) + s.Rejected
}

// Dimensions reports the frame size shared by all slices, or ok=false
// when the stack is empty or mixes frame sizes.
func (s *Stack) Dimensions() (rows, columns int, ok bool) {
	if len(s.Slices) == 0 {
		return 0, 0, false
	}
	rows, columns = s.Slices[0].Rows, s.Slices[0].Columns
	for _, sl := range s.Slices[1:] {
		if sl.Rows != rows || sl.Columns != columns {
			return 0, 0, false
		}
	}
	return rows, columns, true
}
