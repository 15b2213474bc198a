package ingest

import (
	"time"

	"slicestack/pkg/logger"
)

// Recorder receives pipeline measurements. *metrics.Manager satisfies it.
type Recorder interface {
	RecordDecoded()
	RecordRejected(reason string)
	ObserveDecodeDuration(d time.Duration)
	ObserveBatch(size int, d time.Duration)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for batch progress and rejections.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics sets the recorder that receives decode and batch measurements.
func WithMetrics(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.metrics = r
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordDecoded()                      {}
func (nopRecorder) RecordRejected(string)               {}
func (nopRecorder) ObserveDecodeDuration(time.Duration) {}
func (nopRecorder) ObserveBatch(int, time.Duration)     {}
