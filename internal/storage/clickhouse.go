package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"boardingpass_parser/internal/config"
)

// ClickHouseStore appends extraction attempts to ClickHouse for analytics.
// Rows are keyed by a random attempt UUID; Record.ID is left untouched.
type ClickHouseStore struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open clickhouse")
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, eris.Wrap(err, "ping clickhouse")
	}

	return &ClickHouseStore{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseStore) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseStore) CreateSchema(ctx context.Context) error {
	err := d.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS extractions (
		attempt_id      UUID,
		received_at     DateTime64(3),
		recognition_id  Int64,
		source          LowCardinality(String),
		raw_text        String,
		found           Bool,
		flight_number   LowCardinality(String),
		destination     LowCardinality(String),
		gate            String,
		departure       Nullable(DateTime64(3)),
		alarm_time      Nullable(DateTime64(3)),
		date_format     LowCardinality(String),
		time_format     LowCardinality(String),
		missing_fields  String,
		parsed_json     String,
		created_at      DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(received_at)
	ORDER BY (found, received_at, attempt_id)
	SETTINGS index_granularity = 8192`)
	if err != nil {
		return eris.Wrap(err, "create schema")
	}

	// Add bloom filter index for full-text search (ignore error if already exists).
	_ = d.conn.Exec(ctx, `ALTER TABLE extractions ADD INDEX IF NOT EXISTS idx_raw_text_bloom raw_text TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 1`)

	return nil
}

const insertCHExtraction = `INSERT INTO extractions (attempt_id, received_at, recognition_id, source, raw_text, found,
	flight_number, destination, gate, departure, alarm_time, date_format, time_format, missing_fields, parsed_json)`

func chRow(r *Record) []any {
	return []any{
		uuid.New(), r.ReceivedAt, r.RecognitionID, r.Source, r.RawText, r.Found,
		r.FlightNumber, r.Destination, r.Gate, r.Departure, r.AlarmTime, r.DateFormat, r.TimeFormat,
		r.missingFieldsString(), r.ParsedJSON,
	}
}

// Save stores a single record.
func (d *ClickHouseStore) Save(ctx context.Context, r *Record) error {
	return d.SaveBatch(ctx, []*Record{r})
}

// SaveBatch stores multiple records in one insert.
func (d *ClickHouseStore) SaveBatch(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, insertCHExtraction)
	if err != nil {
		return eris.Wrap(err, "prepare batch")
	}

	for _, r := range records {
		if err := batch.Append(chRow(r)...); err != nil {
			_ = batch.Abort()
			return eris.Wrap(err, "append to batch")
		}
	}

	if err := batch.Send(); err != nil {
		return eris.Wrap(err, "send batch")
	}
	return nil
}

// CountByOutcome returns attempt counts split by whether a departure was read.
func (d *ClickHouseStore) CountByOutcome(ctx context.Context) (found, notFound uint64, err error) {
	rows, err := d.conn.Query(ctx, "SELECT found, count() FROM extractions GROUP BY found")
	if err != nil {
		return 0, 0, eris.Wrap(err, "count by outcome")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ok bool
		var count uint64
		if err := rows.Scan(&ok, &count); err != nil {
			return 0, 0, eris.Wrap(err, "scan outcome count")
		}
		if ok {
			found = count
		} else {
			notFound = count
		}
	}
	return found, notFound, rows.Err()
}
