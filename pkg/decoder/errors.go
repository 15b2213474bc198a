package decoder

import (
	"errors"
	"fmt"
)

// ErrRejected is matched by every per-slice decode failure.
var ErrRejected = errors.New("slice rejected")

// Rejection reasons, wrapped inside a RejectionError.
var (
	ErrUnparsable        = errors.New("unparsable data set")
	ErrMissingTag        = errors.New("mandatory tag missing")
	ErrInvalidDimensions = errors.New("invalid frame dimensions")
	ErrShortPixelData    = errors.New("pixel data shorter than frame")
	ErrEncapsulated      = errors.New("encapsulated pixel data not supported")
)

// RejectionError describes why one input produced no slice.
type RejectionError struct {
	Source string
	Reason error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Reason)
}

// Unwrap exposes both ErrRejected and the underlying reason to errors.Is.
func (e *RejectionError) Unwrap() []error {
	return []error{ErrRejected, e.Reason}
}

func reject(source string, reason error) *RejectionError {
	return &RejectionError{Source: source, Reason: reason}
}

// ReasonLabel maps a decode error to a short, stable label for metrics.
func ReasonLabel(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingTag):
		return "missing_tag"
	case errors.Is(err, ErrInvalidDimensions):
		return "invalid_dimensions"
	case errors.Is(err, ErrShortPixelData):
		return "short_pixel_data"
	case errors.Is(err, ErrEncapsulated):
		return "encapsulated"
	case errors.Is(err, ErrUnparsable):
		return "unparsable"
	default:
		return "other"
	}
}
