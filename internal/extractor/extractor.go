// Package extractor runs OCR recognitions through the boarding-pass parser and
// hands the outcome to metrics and an optional storage sink.
// It is shared by the CLI, the NATS listener and the HTTP API.
package extractor

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"boardingpass_parser/internal/boardingpass"
	"boardingpass_parser/internal/metrics"
	"boardingpass_parser/internal/ocr"
	"boardingpass_parser/internal/storage"
)

// Pipeline is safe for concurrent use when its sink is.
type Pipeline struct {
	parser  *boardingpass.Parser
	metrics *metrics.Metrics
	sink    storage.Sink
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records every extraction in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithSink saves every processed recognition to s.
func WithSink(s storage.Sink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithClock overrides the receive timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline around parser. A nil parser uses the default one.
func New(parser *boardingpass.Parser, opts ...Option) *Pipeline {
	if parser == nil {
		parser = boardingpass.New()
	}
	p := &Pipeline{parser: parser, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Processed is one recognition with its extraction result.
type Processed struct {
	Recognition *ocr.Recognition
	Result      boardingpass.Result // Zero unless Found.
	Found       bool
	Record      *storage.Record
}

// Outcome returns the tagged outcome for output.
func (p *Processed) Outcome() boardingpass.Outcome {
	if !p.Found {
		return boardingpass.NotFound
	}
	return boardingpass.Outcome{Found: true, Info: p.Result.Info}
}

// Extract parses rec and records metrics. It never touches the sink.
func (p *Pipeline) Extract(rec *ocr.Recognition) *Processed {
	start := time.Now()
	res, ok := p.parser.Match(rec.RecognizedText())
	p.metrics.Observe(res, ok, time.Since(start))

	return &Processed{
		Recognition: rec,
		Result:      res,
		Found:       ok,
		Record:      storage.NewRecord(rec, res, ok, p.now()),
	}
}

// Process extracts rec and saves the attempt when a sink is configured.
// On a storage error the extraction result is still returned.
func (p *Pipeline) Process(ctx context.Context, rec *ocr.Recognition) (*Processed, error) {
	out := p.Extract(rec)
	if p.sink == nil {
		return out, nil
	}
	if err := p.sink.Save(ctx, out.Record); err != nil {
		p.metrics.Error("store")
		return out, eris.Wrap(err, "save extraction")
	}
	return out, nil
}

// Sink returns the configured sink, or nil.
func (p *Pipeline) Sink() storage.Sink {
	return p.sink
}
