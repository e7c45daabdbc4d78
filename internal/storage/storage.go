// Package storage logs boarding-pass extraction attempts for review and analytics.
//
// Only extraction attempts are stored. Alarms created from them belong to the
// scheduling side and are never persisted here.
package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"boardingpass_parser/internal/boardingpass"
	"boardingpass_parser/internal/config"
	"boardingpass_parser/internal/ocr"
)

// ErrNotFound is returned by Get when no record has the requested ID.
var ErrNotFound = eris.New("record not found")

// Record is one stored extraction attempt.
type Record struct {
	ID            int64      `json:"id,omitempty"` // Assigned by stores with a sequence.
	ReceivedAt    time.Time  `json:"received_at"`
	RecognitionID int64      `json:"recognition_id,omitempty"` // ID carried by the OCR record.
	Source        string     `json:"source,omitempty"`         // Device or feed the recognition came from.
	RawText       string     `json:"raw_text"`                 // Text handed to the extractor.
	Found         bool       `json:"found"`                    // Whether a departure time was read.
	FlightNumber  string     `json:"flight_number,omitempty"`
	Destination   string     `json:"destination,omitempty"`
	Gate          string     `json:"gate,omitempty"`
	Departure     *time.Time `json:"departure,omitempty"`
	AlarmTime     *time.Time `json:"alarm_time,omitempty"` // Departure minus two hours.
	DateFormat    string     `json:"date_format,omitempty"`
	TimeFormat    string     `json:"time_format,omitempty"`
	MissingFields []string   `json:"missing_fields,omitempty"`
	ParsedJSON    string     `json:"-"`
	IsGolden      bool       `json:"is_golden"`
	Annotation    string     `json:"annotation,omitempty"`
}

// NewRecord builds a Record from a recognition and its extraction result.
func NewRecord(rec *ocr.Recognition, res boardingpass.Result, ok bool, receivedAt time.Time) *Record {
	r := &Record{
		ReceivedAt: receivedAt,
		Found:      ok,
	}
	if rec != nil {
		r.RawText = rec.RecognizedText()
		r.RecognitionID = int64(rec.ID)
		r.Source = rec.Source
	}

	outcome := boardingpass.NotFound
	if ok {
		info := res.Info
		outcome = boardingpass.Outcome{Found: true, Info: info}

		dep := info.Departure
		alarm := info.AlarmTime()
		r.FlightNumber = info.FlightNumber
		r.Destination = info.Destination
		r.Gate = info.Gate
		r.Departure = &dep
		r.AlarmTime = &alarm
		r.DateFormat = res.DateTime.DateFormat
		r.TimeFormat = res.DateTime.TimeFormat
		r.MissingFields = info.MissingFields()
	} else {
		r.MissingFields = []string{"departure"}
	}

	if b, err := json.Marshal(outcome); err == nil {
		r.ParsedJSON = string(b)
	}

	return r
}

func (r *Record) missingFieldsString() string {
	return strings.Join(r.MissingFields, ",")
}

func splitMissing(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Sink stores extraction attempts.
type Sink interface {
	Save(ctx context.Context, r *Record) error
	Close() error
}

// BatchSink is implemented by sinks that prefer bulk inserts.
type BatchSink interface {
	Sink
	SaveBatch(ctx context.Context, records []*Record) error
}

// Getter is implemented by sinks that can look a record up by ID.
type Getter interface {
	Get(ctx context.Context, id int64) (*Record, error)
}

// SaveAll writes records through SaveBatch when the sink supports it.
func SaveAll(ctx context.Context, sink Sink, records []*Record) error {
	if bs, ok := sink.(BatchSink); ok {
		return bs.SaveBatch(ctx, records)
	}
	for _, r := range records {
		if err := sink.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Open returns the sink selected by cfg.Driver, or nil for "none".
// Schemas are created if missing.
func Open(ctx context.Context, cfg config.StoreConfig, loc *time.Location) (Sink, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil

	case "sqlite":
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite")
		}
		return db, nil

	case "postgres":
		pg, err := OpenPostgres(ctx, cfg.Postgres, loc)
		if err != nil {
			return nil, eris.Wrap(err, "postgres")
		}
		if err := pg.CreateSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, eris.Wrap(err, "postgres schema")
		}
		return pg, nil

	case "clickhouse":
		ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, eris.Wrap(err, "clickhouse")
		}
		if err := ch.CreateSchema(ctx); err != nil {
			_ = ch.Close()
			return nil, eris.Wrap(err, "clickhouse schema")
		}
		return ch, nil

	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// QueryParams contains filtering options for listing extractions.
type QueryParams struct {
	Found        *bool  // Filter by outcome.
	Flight       string // Filter by flight number (LIKE match).
	MissingField string // Filter by specific missing field (LIKE match).
	FullText     string // Full-text search on raw_text.
	GoldenOnly   bool   // Only records marked golden.
	Limit        int    // Max results (default 100).
	Offset       int    // Pagination offset.
	OrderDesc    bool   // Newest first.
}

// Stats holds aggregate statistics about stored extractions.
type Stats struct {
	Total         int            `json:"total"`
	Found         int            `json:"found"`
	NotFound      int            `json:"not_found"`
	MissingFields map[string]int `json:"missing_fields"`
	DateFormats   map[string]int `json:"date_formats"`
	TimeFormats   map[string]int `json:"time_formats"`
}
