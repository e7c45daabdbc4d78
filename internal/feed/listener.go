// Package feed consumes OCR recognitions from NATS and publishes extraction results.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"boardingpass_parser/internal/boardingpass"
	"boardingpass_parser/internal/config"
	"boardingpass_parser/internal/extractor"
	"boardingpass_parser/internal/metrics"
	"boardingpass_parser/internal/ocr"
)

const (
	// storeTimeout bounds one sink write from a message callback.
	storeTimeout = 5 * time.Second
	// drainTimeout bounds how long Run waits for pending messages after shutdown.
	drainTimeout = 30 * time.Second
	drainPoll    = 50 * time.Millisecond
)

// Connect dials NATS with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("boardingpass-extract"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "connect to NATS at %s", url)
	}
	return nc, nil
}

// Result is the payload published for every decoded recognition.
type Result struct {
	RecognitionID ocr.FlexInt64        `json:"id,omitempty"`
	Source        string               `json:"source,omitempty"`
	StoredID      int64                `json:"stored_id,omitempty"`
	Outcome       boardingpass.Outcome `json:"outcome"`
}

// Listener extracts every recognition published on the feed subject.
type Listener struct {
	nc       *nats.Conn
	pipeline *extractor.Pipeline
	metrics  *metrics.Metrics
	cfg      config.FeedConfig
	log      *zap.Logger

	drainTimeout time.Duration
}

// NewListener creates a Listener. m may be nil.
func NewListener(nc *nats.Conn, pipeline *extractor.Pipeline, m *metrics.Metrics, cfg config.FeedConfig, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{
		nc:       nc,
		pipeline: pipeline,
		metrics:  m,
		cfg:      cfg,
		log:      log,

		drainTimeout: drainTimeout,
	}
}

// Run subscribes and blocks until ctx is cancelled. It then drains the
// subscription and returns once every pending message has been handled, so the
// connection and sink may be closed afterwards.
func (l *Listener) Run(ctx context.Context) error {
	var sub *nats.Subscription
	var err error
	if l.cfg.Queue != "" {
		sub, err = l.nc.QueueSubscribe(l.cfg.Subject, l.cfg.Queue, l.onMessage)
	} else {
		sub, err = l.nc.Subscribe(l.cfg.Subject, l.onMessage)
	}
	if err != nil {
		return eris.Wrapf(err, "subscribe to %s", l.cfg.Subject)
	}

	l.log.Info("listening for recognitions",
		zap.String("subject", l.cfg.Subject),
		zap.String("queue", l.cfg.Queue),
		zap.String("result_subject", l.cfg.ResultSubject))

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		return eris.Wrap(err, "drain subscription")
	}
	return l.waitDrained(sub)
}

// waitDrained blocks until the drained subscription is removed. nats.go removes
// it only after the last pending callback has returned.
func (l *Listener) waitDrained(sub *nats.Subscription) error {
	deadline := time.Now().Add(l.drainTimeout)
	for sub.IsValid() {
		if time.Now().After(deadline) {
			pending, _, _ := sub.Pending()
			return eris.Errorf("drain of %s timed out with %d messages pending", l.cfg.Subject, pending)
		}
		time.Sleep(drainPoll)
	}
	l.log.Info("feed drained", zap.String("subject", l.cfg.Subject))
	return nil
}

// onMessage runs outside the Run context: messages drained after shutdown
// still get their full store timeout.
func (l *Listener) onMessage(msg *nats.Msg) {
	payload, ok := l.Handle(context.Background(), msg.Data)
	if !ok {
		return
	}

	subject := msg.Reply
	if subject == "" {
		subject = l.cfg.ResultSubject
	}
	if subject == "" {
		return
	}
	if err := l.nc.Publish(subject, payload); err != nil {
		l.metrics.Error("publish")
		l.log.Warn("publish result failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Handle decodes one payload, extracts it and returns the JSON result.
// ok is false for payloads that are not a recognition with text.
func (l *Listener) Handle(ctx context.Context, data []byte) ([]byte, bool) {
	rec, kind := ocr.Decode(data)
	if rec == nil {
		l.metrics.Error("decode")
		l.log.Warn("dropping malformed recognition", zap.Int("bytes", len(data)))
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	out, err := l.pipeline.Process(ctx, rec)
	if err != nil {
		l.log.Error("store extraction", zap.Int64("recognition_id", int64(rec.ID)), zap.Error(err))
	}

	l.log.Debug("extracted",
		zap.String("kind", kind),
		zap.Int64("recognition_id", int64(rec.ID)),
		zap.Bool("found", out.Found))

	payload, err := json.Marshal(Result{
		RecognitionID: rec.ID,
		Source:        rec.Source,
		StoredID:      out.Record.ID,
		Outcome:       out.Outcome(),
	})
	if err != nil {
		l.log.Error("marshal result", zap.Error(err))
		return nil, false
	}
	return payload, true
}
