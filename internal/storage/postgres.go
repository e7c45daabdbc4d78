package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"boardingpass_parser/internal/config"
)

// PostgresStore keeps extraction attempts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
// Departure and alarm times are stored as naive TIMESTAMP wall-clock values and
// read back in loc, the calendar they were built in. A nil loc means time.Local.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig, loc *time.Location) (*PostgresStore, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, eris.Wrap(err, "parse postgres config")
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	if loc == nil {
		loc = time.Local
	}
	poolCfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "timestamp",
			OID:   pgtype.TimestampOID,
			Codec: &pgtype.TimestampCodec{ScanLocation: loc},
		})
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "open postgres")
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping postgres")
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresStore) Close() error {
	d.pool.Close()
	return nil
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS extractions (
		id              BIGSERIAL PRIMARY KEY,
		received_at     TIMESTAMPTZ NOT NULL,
		recognition_id  BIGINT,
		source          TEXT,
		raw_text        TEXT NOT NULL,
		found           BOOLEAN NOT NULL,
		flight_number   TEXT,
		destination     TEXT,
		gate            TEXT,
		departure       TIMESTAMP,
		alarm_time      TIMESTAMP,
		date_format     TEXT,
		time_format     TEXT,
		missing_fields  TEXT,
		parsed_json     JSONB NOT NULL,
		is_golden       BOOLEAN NOT NULL DEFAULT FALSE,
		annotation      TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_extractions_found ON extractions(found);
	CREATE INDEX IF NOT EXISTS idx_extractions_flight ON extractions(flight_number);
	CREATE INDEX IF NOT EXISTS idx_extractions_received ON extractions(received_at);
	CREATE INDEX IF NOT EXISTS idx_extractions_golden ON extractions(is_golden) WHERE is_golden;
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return eris.Wrap(err, "create schema")
	}
	return nil
}

// Save inserts a record and sets its ID.
func (d *PostgresStore) Save(ctx context.Context, r *Record) error {
	err := d.pool.QueryRow(ctx, `
		INSERT INTO extractions (received_at, recognition_id, source, raw_text, found, flight_number,
			destination, gate, departure, alarm_time, date_format, time_format, missing_fields, parsed_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, r.ReceivedAt, r.RecognitionID, r.Source, r.RawText, r.Found, r.FlightNumber,
		r.Destination, r.Gate, r.Departure, r.AlarmTime, r.DateFormat, r.TimeFormat,
		r.missingFieldsString(), r.ParsedJSON).Scan(&r.ID)
	if err != nil {
		return eris.Wrap(err, "insert extraction")
	}
	return nil
}

const pgSelectColumns = `id, received_at, recognition_id, source, raw_text, found, flight_number,
	destination, gate, departure, alarm_time, date_format, time_format, missing_fields, parsed_json::text,
	is_golden, annotation`

// Get retrieves one record by ID.
func (d *PostgresStore) Get(ctx context.Context, id int64) (*Record, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+pgSelectColumns+` FROM extractions WHERE id = $1`, id)
	r, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "query extraction")
	}
	return r, nil
}

// List retrieves records matching the given parameters.
// FullText is a case-insensitive substring match, which also works inside
// unsegmented Japanese text.
func (d *PostgresStore) List(ctx context.Context, p QueryParams) ([]*Record, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.Found != nil {
		conditions = append(conditions, "found = "+arg(*p.Found))
	}
	if p.Flight != "" {
		conditions = append(conditions, "flight_number ILIKE "+arg("%"+p.Flight+"%"))
	}
	if p.MissingField != "" {
		conditions = append(conditions, "missing_fields LIKE "+arg("%"+p.MissingField+"%"))
	}
	if p.FullText != "" {
		conditions = append(conditions, "raw_text ILIKE "+arg("%"+p.FullText+"%"))
	}
	if p.GoldenOnly {
		conditions = append(conditions, "is_golden")
	}

	query := `SELECT ` + pgSelectColumns + ` FROM extractions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	direction := "ASC"
	if p.OrderDesc {
		direction = "DESC"
	}
	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" ORDER BY id %s LIMIT %d OFFSET %d", direction, limit, p.Offset)

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query extractions")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scan row")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanPostgresRecord(row pgx.Row) (*Record, error) {
	var r Record
	var source, flight, dest, gate, dateFmt, timeFmt, missing, annotation *string
	var recognitionID *int64

	err := row.Scan(&r.ID, &r.ReceivedAt, &recognitionID, &source, &r.RawText, &r.Found, &flight, &dest, &gate,
		&r.Departure, &r.AlarmTime, &dateFmt, &timeFmt, &missing, &r.ParsedJSON, &r.IsGolden, &annotation)
	if err != nil {
		return nil, err
	}

	if recognitionID != nil {
		r.RecognitionID = *recognitionID
	}
	r.Source = deref(source)
	r.FlightNumber = deref(flight)
	r.Destination = deref(dest)
	r.Gate = deref(gate)
	r.DateFormat = deref(dateFmt)
	r.TimeFormat = deref(timeFmt)
	r.MissingFields = splitMissing(deref(missing))
	r.Annotation = deref(annotation)
	return &r, nil
}

// SetGolden marks or unmarks a record as a golden sample with an optional note.
func (d *PostgresStore) SetGolden(ctx context.Context, id int64, golden bool, annotation string) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE extractions SET is_golden = $1, annotation = $2 WHERE id = $3`, golden, annotation, id)
	if err != nil {
		return eris.Wrap(err, "update golden")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStats returns statistics about the stored extractions.
func (d *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		MissingFields: make(map[string]int),
		DateFormats:   make(map[string]int),
		TimeFormats:   make(map[string]int),
	}

	err := d.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE found) FROM extractions`).Scan(&stats.Total, &stats.Found)
	if err != nil {
		return nil, eris.Wrap(err, "count extractions")
	}
	stats.NotFound = stats.Total - stats.Found

	queries := []struct {
		name  string
		query string
		dst   map[string]int
	}{
		{"date_format", `SELECT COALESCE(date_format, ''), COUNT(*) FROM extractions WHERE found GROUP BY 1`, stats.DateFormats},
		{"time_format", `SELECT COALESCE(time_format, ''), COUNT(*) FROM extractions WHERE found GROUP BY 1`, stats.TimeFormats},
		// Missing fields are stored comma-separated.
		{"missing_fields", `SELECT field, COUNT(*) FROM extractions,
			unnest(string_to_array(missing_fields, ',')) AS field
			WHERE missing_fields <> '' GROUP BY field`, stats.MissingFields},
	}
	for _, q := range queries {
		if err := d.countInto(ctx, q.query, q.dst); err != nil {
			return nil, eris.Wrapf(err, "count by %s", q.name)
		}
	}
	return stats, nil
}

func (d *PostgresStore) countInto(ctx context.Context, query string, dst map[string]int) error {
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return err
		}
		dst[name] = count
	}
	return rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
