package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"boardingpass_parser/internal/boardingpass"
	"boardingpass_parser/internal/datetime"
	"boardingpass_parser/internal/extractor"
	"boardingpass_parser/internal/metrics"
	"boardingpass_parser/internal/storage"
)

// appEnv holds the shared runtime built from cfg.
type appEnv struct {
	Pipeline *extractor.Pipeline
	Sink     storage.Sink
	Metrics  *metrics.Metrics
}

func newParser() (*boardingpass.Parser, error) {
	loc, err := cfg.CalendarLocation()
	if err != nil {
		return nil, err
	}
	return boardingpass.New(datetime.WithLocation(loc)), nil
}

// initEnv builds the parser, metrics and, when attachSink is set, the configured sink.
func initEnv(ctx context.Context, attachSink bool) (*appEnv, error) {
	loc, err := cfg.CalendarLocation()
	if err != nil {
		return nil, err
	}
	parser := boardingpass.New(datetime.WithLocation(loc))

	env := &appEnv{
		Metrics: metrics.New(cfg.Metrics.Namespace, prometheus.DefaultRegisterer),
	}

	env.Sink, err = storage.Open(ctx, cfg.Store, loc)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if env.Sink != nil {
		zap.L().Info("store opened", zap.String("driver", cfg.Store.Driver))
	}

	opts := []extractor.Option{extractor.WithMetrics(env.Metrics)}
	if attachSink && env.Sink != nil {
		opts = append(opts, extractor.WithSink(env.Sink))
	}
	env.Pipeline = extractor.New(parser, opts...)

	return env, nil
}

// Close releases the sink.
func (e *appEnv) Close() {
	if e.Sink == nil {
		return
	}
	if err := e.Sink.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}
