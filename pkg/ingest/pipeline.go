// Package ingest runs a batch of raw slice files through decoding and
// ordering. Every input is decoded independently and concurrently; the
// results are joined and handed to the sequencer as a whole.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"slicestack/internal/models"
	"slicestack/pkg/decoder"
	"slicestack/pkg/logger"
	"slicestack/pkg/sequencer"
	"slicestack/pkg/stats"
)

// Params holds the batch parameters.
type Params struct {
	// InputDir is the directory Process loads its inputs from
	InputDir string

	// Workers bounds how many inputs are decoded at the same time.
	// Values below 1 mean runtime.NumCPU().
	Workers int

	// Extensions restricts LoadDir to files with one of these extensions,
	// compared case-insensitively. Empty accepts every regular file.
	Extensions []string

	// SkipHidden makes LoadDir ignore names starting with a dot
	SkipHidden bool
}

// Batch is the outcome of one pipeline run.
type Batch struct {
	// ID identifies the batch in logs, metrics and manifests
	ID string

	// Stack holds the ordered slices and the rejected count
	Stack *models.Stack

	// Summary describes intensity and spacing of the ordered stack
	Summary stats.Summary

	// Duration is the wall time from first decode to ordered stack
	Duration time.Duration
}

// Pipeline decodes and orders slice batches.
type Pipeline struct {
	params  *Params
	log     logger.Logger
	metrics Recorder
}

// NewPipeline creates a pipeline for params.
func NewPipeline(params *Params, opts ...Option) *Pipeline {
	if params == nil {
		params = &Params{}
	}
	p := &Pipeline{
		params:  params,
		log:     logger.Nop(),
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process loads every candidate file of Params.InputDir and runs it as one
// batch.
func (p *Pipeline) Process(ctx context.Context) (*Batch, error) {
	inputs, err := p.LoadDir(p.params.InputDir)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, inputs)
}

// LoadDir reads the regular files of dir, filtered by Params.Extensions
// and Params.SkipHidden. Each input is named after its file name. A file
// that cannot be read fails the whole load.
func (p *Pipeline) LoadDir(dir string) ([]models.RawSliceInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadInput, err)
	}

	var inputs []models.RawSliceInput
	for _, entry := range entries {
		name := entry.Name()
		if !p.accepts(name) {
			continue
		}

		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadInput, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadInput, err)
		}
		inputs = append(inputs, models.RawSliceInput{Name: name, Data: data})
	}

	p.log.Debug(context.Background(), "inputs loaded",
		logger.String("dir", dir),
		logger.Int("files", len(inputs)),
	)
	return inputs, nil
}

func (p *Pipeline) accepts(name string) bool {
	if p.params.SkipHidden && strings.HasPrefix(name, ".") {
		return false
	}
	if len(p.params.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return slices.ContainsFunc(p.params.Extensions, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}

// Run decodes inputs concurrently, joins the results and orders the
// accepted slices. It fails only when ctx ends before every input has been
// decoded; individual bad inputs are counted in Stack.Rejected.
func (p *Pipeline) Run(ctx context.Context, inputs []models.RawSliceInput) (*Batch, error) {
	start := time.Now()
	id := uuid.NewString()
	log := p.log.Named("batch")

	log.Info(ctx, "batch started", logger.String("id", id), logger.Int("inputs", len(inputs)))

	results, err := p.DecodeAll(ctx, inputs)
	if err != nil {
		log.Error(ctx, "batch aborted", logger.String("id", id), logger.Error(err))
		return nil, err
	}

	ordered, rejected := sequencer.Order(results)
	batch := &Batch{
		ID:       id,
		Stack:    &models.Stack{Slices: ordered, Rejected: rejected},
		Summary:  stats.Summarize(ordered),
		Duration: time.Since(start),
	}
	p.metrics.ObserveBatch(len(inputs), batch.Duration)

	log.Info(ctx, fmt.Sprintf("%d files loaded, %d invalid/malformed files filtered", len(ordered), rejected),
		logger.String("id", id),
		logger.String("ordered_by", batch.Summary.OrderedBy),
		logger.Duration("duration", batch.Duration),
	)
	return batch, nil
}

// DecodeAll decodes every input on its own goroutine, at most
// Params.Workers at a time. results[i] always belongs to inputs[i].
func (p *Pipeline) DecodeAll(ctx context.Context, inputs []models.RawSliceInput) ([]decoder.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncomplete, err)
	}

	type indexedResult struct {
		index  int
		result decoder.Result
	}

	// Buffered for every input so workers never block once the gather
	// loop has given up.
	resultChan := make(chan indexedResult, len(inputs))
	sem := make(chan struct{}, p.workers())

	go func() {
		for i, input := range inputs {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func() {
				defer func() { <-sem }()
				resultChan <- indexedResult{index: i, result: p.decode(ctx, input)}
			}()
		}
	}()

	results := make([]decoder.Result, len(inputs))
	for completed := 0; completed < len(inputs); completed++ {
		select {
		case res := <-resultChan:
			results[res.index] = res.result
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %d of %d inputs decoded: %w", ErrIncomplete, completed, len(inputs), ctx.Err())
		}
	}
	return results, nil
}

func (p *Pipeline) decode(ctx context.Context, input models.RawSliceInput) decoder.Result {
	start := time.Now()
	res := decoder.DecodeResult(input)
	p.metrics.ObserveDecodeDuration(time.Since(start))

	if res.Rejected() {
		reason := decoder.ReasonLabel(res.Err)
		p.metrics.RecordRejected(reason)
		p.log.Debug(ctx, "slice rejected",
			logger.String("source", input.Name),
			logger.String("reason", reason),
			logger.Error(res.Err),
		)
		return res
	}
	p.metrics.RecordDecoded()
	return res
}

func (p *Pipeline) workers() int {
	if p.params.Workers < 1 {
		return runtime.NumCPU()
	}
	return p.params.Workers
}
