package ingest

import "errors"

// Sentinel errors for systemic failures. Per-slice problems never surface
// here; they are counted as rejections.
var (
	ErrReadInput  = errors.New("failed to read input")
	ErrIncomplete = errors.New("batch did not complete")
)
