package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a local review log of extraction attempts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "open database")
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "enable WAL")
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "create schema")
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteStore) Close() error {
	return d.db.Close()
}

// ftsTable indexes raw_text by trigrams so searches match inside Japanese runs,
// which have no word breaks. Queries need at least three characters.
const ftsTable = `CREATE VIRTUAL TABLE IF NOT EXISTS extractions_fts USING fts5(
		raw_text,
		content='extractions',
		content_rowid='id',
		tokenize='trigram'
	)`

// createSchema creates the database tables and indices.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS extractions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		received_at TEXT NOT NULL,
		recognition_id INTEGER,
		source TEXT,
		raw_text TEXT NOT NULL,
		found INTEGER NOT NULL,
		flight_number TEXT,
		destination TEXT,
		gate TEXT,
		departure TEXT,
		alarm_time TEXT,
		date_format TEXT,
		time_format TEXT,
		missing_fields TEXT,
		parsed_json TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_extractions_found ON extractions(found);
	CREATE INDEX IF NOT EXISTS idx_extractions_flight ON extractions(flight_number);
	CREATE INDEX IF NOT EXISTS idx_extractions_missing ON extractions(missing_fields);
	CREATE INDEX IF NOT EXISTS idx_extractions_received ON extractions(received_at);

	-- FTS5 virtual table for full-text search on recognised text.
	` + ftsTable + `;

	-- Triggers to keep FTS index in sync.
	CREATE TRIGGER IF NOT EXISTS extractions_ai AFTER INSERT ON extractions BEGIN
		INSERT INTO extractions_fts(rowid, raw_text) VALUES (new.id, new.raw_text);
	END;

	CREATE TRIGGER IF NOT EXISTS extractions_ad AFTER DELETE ON extractions BEGIN
		INSERT INTO extractions_fts(extractions_fts, rowid, raw_text) VALUES('delete', old.id, old.raw_text);
	END;
	`

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	if err := migrateFTS(db); err != nil {
		return err
	}
	return migrateSchema(db)
}

// migrateFTS rebuilds a full-text index created with the default unicode61
// tokenizer.
func migrateFTS(db *sql.DB) error {
	var ddl string
	err := db.QueryRow(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'extractions_fts'`).Scan(&ddl)
	if err != nil {
		return err
	}
	if strings.Contains(ddl, "trigram") {
		return nil
	}

	for _, stmt := range []string{
		`DROP TABLE extractions_fts`,
		ftsTable,
		`INSERT INTO extractions_fts(extractions_fts) VALUES('rebuild')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return eris.Wrap(err, "rebuild full-text index")
		}
	}
	return nil
}

// migrateSchema adds review columns to databases created before they existed.
func migrateSchema(db *sql.DB) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('extractions') WHERE name='is_golden'`).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	migrations := []string{
		`ALTER TABLE extractions ADD COLUMN is_golden INTEGER DEFAULT 0`,
		`ALTER TABLE extractions ADD COLUMN annotation TEXT`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for idempotency.
			if !strings.Contains(err.Error(), "duplicate column") {
				return err
			}
		}
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_extractions_golden ON extractions(is_golden)`)

	return nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

const insertExtraction = `
	INSERT INTO extractions (received_at, recognition_id, source, raw_text, found, flight_number,
		destination, gate, departure, alarm_time, date_format, time_format, missing_fields, parsed_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save inserts a record and sets its ID.
func (d *SQLiteStore) Save(ctx context.Context, r *Record) error {
	return insert(ctx, d.db, r)
}

// SaveBatch inserts records in one transaction. On error no record keeps an ID.
func (d *SQLiteStore) SaveBatch(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin batch")
	}
	for i, r := range records {
		if err := insert(ctx, tx, r); err != nil {
			_ = tx.Rollback()
			clearIDs(records[:i])
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		clearIDs(records)
		return eris.Wrap(err, "commit batch")
	}
	return nil
}

// clearIDs resets IDs assigned inside a transaction that was rolled back.
func clearIDs(records []*Record) {
	for _, r := range records {
		r.ID = 0
	}
}

func insert(ctx context.Context, db execer, r *Record) error {
	found := 0
	if r.Found {
		found = 1
	}

	result, err := db.ExecContext(ctx, insertExtraction,
		r.ReceivedAt.Format(time.RFC3339), r.RecognitionID, r.Source, r.RawText, found, r.FlightNumber,
		r.Destination, r.Gate, formatTime(r.Departure), formatTime(r.AlarmTime), r.DateFormat, r.TimeFormat,
		r.missingFieldsString(), r.ParsedJSON)
	if err != nil {
		return eris.Wrap(err, "insert extraction")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "last insert id")
	}
	r.ID = id
	return nil
}

const selectColumns = `e.id, e.received_at, e.recognition_id, e.source, e.raw_text, e.found, e.flight_number,
	e.destination, e.gate, e.departure, e.alarm_time, e.date_format, e.time_format, e.missing_fields,
	e.parsed_json, e.is_golden, e.annotation`

// Get retrieves one record by ID.
func (d *SQLiteStore) Get(ctx context.Context, id int64) (*Record, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM extractions e WHERE e.id = ?`, id)
	if err != nil {
		return nil, eris.Wrap(err, "query extraction")
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// List retrieves records matching the given parameters.
func (d *SQLiteStore) List(ctx context.Context, p QueryParams) ([]*Record, error) {
	var conditions []string
	var args []any

	if p.Found != nil {
		conditions = append(conditions, "e.found = ?")
		if *p.Found {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	if p.Flight != "" {
		conditions = append(conditions, "e.flight_number LIKE ?")
		args = append(args, "%"+p.Flight+"%")
	}
	if p.MissingField != "" {
		conditions = append(conditions, "e.missing_fields LIKE ?")
		args = append(args, "%"+p.MissingField+"%")
	}
	if p.GoldenOnly {
		conditions = append(conditions, "e.is_golden = 1")
	}

	query := `SELECT ` + selectColumns + ` FROM extractions e`
	if p.FullText != "" {
		query += ` JOIN extractions_fts fts ON e.id = fts.rowid`
		conditions = append([]string{"extractions_fts MATCH ?"}, conditions...)
		args = append([]any{p.FullText}, args...)
	}
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
	query += fmt.Sprintf(" ORDER BY e.id %s LIMIT %d OFFSET %d", direction, limit, p.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query extractions")
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		var r Record
		var receivedAt string
		var recognitionID sql.NullInt64
		var source, flight, dest, gate, dep, alarm, dateFmt, timeFmt, missing, annotation sql.NullString
		var found int
		var isGolden sql.NullInt64

		err := rows.Scan(&r.ID, &receivedAt, &recognitionID, &source, &r.RawText, &found, &flight,
			&dest, &gate, &dep, &alarm, &dateFmt, &timeFmt, &missing,
			&r.ParsedJSON, &isGolden, &annotation)
		if err != nil {
			return nil, eris.Wrap(err, "scan row")
		}

		r.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt)
		r.RecognitionID = recognitionID.Int64
		r.Source = source.String
		r.Found = found == 1
		r.FlightNumber = flight.String
		r.Destination = dest.String
		r.Gate = gate.String
		r.Departure = parseTime(dep)
		r.AlarmTime = parseTime(alarm)
		r.DateFormat = dateFmt.String
		r.TimeFormat = timeFmt.String
		r.MissingFields = splitMissing(missing.String)
		r.IsGolden = isGolden.Int64 == 1
		r.Annotation = annotation.String

		records = append(records, &r)
	}
	return records, rows.Err()
}

// SetGolden marks or unmarks a record as a golden sample with an optional note.
func (d *SQLiteStore) SetGolden(ctx context.Context, id int64, golden bool, annotation string) error {
	flag := 0
	if golden {
		flag = 1
	}
	result, err := d.db.ExecContext(ctx,
		`UPDATE extractions SET is_golden = ?, annotation = ? WHERE id = ?`, flag, annotation, id)
	if err != nil {
		return eris.Wrap(err, "update golden")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStats returns statistics about the stored extractions.
func (d *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		MissingFields: make(map[string]int),
		DateFormats:   make(map[string]int),
		TimeFormats:   make(map[string]int),
	}

	row := d.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(found), 0) FROM extractions")
	if err := row.Scan(&stats.Total, &stats.Found); err != nil {
		return nil, eris.Wrap(err, "count extractions")
	}
	stats.NotFound = stats.Total - stats.Found

	if err := d.countBy(ctx, "date_format", stats.DateFormats); err != nil {
		return nil, err
	}
	if err := d.countBy(ctx, "time_format", stats.TimeFormats); err != nil {
		return nil, err
	}

	// Missing fields are stored comma-separated.
	rows, err := d.db.QueryContext(ctx, "SELECT missing_fields FROM extractions WHERE missing_fields != '' AND missing_fields IS NOT NULL")
	if err != nil {
		return nil, eris.Wrap(err, "query missing fields")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var fields string
		if err := rows.Scan(&fields); err != nil {
			return nil, eris.Wrap(err, "scan missing fields")
		}
		for _, f := range splitMissing(fields) {
			stats.MissingFields[strings.TrimSpace(f)]++
		}
	}

	return stats, rows.Err()
}

// countBy fills dst with counts grouped by a fixed column name.
func (d *SQLiteStore) countBy(ctx context.Context, column string, dst map[string]int) error {
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM extractions WHERE found = 1 GROUP BY "+column)
	if err != nil {
		return eris.Wrapf(err, "count by %s", column)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name sql.NullString
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return eris.Wrapf(err, "scan %s", column)
		}
		dst[name.String] = count
	}
	return rows.Err()
}
