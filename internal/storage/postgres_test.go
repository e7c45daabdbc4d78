package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardingpass_parser/internal/boardingpass"
	"boardingpass_parser/internal/config"
	"boardingpass_parser/internal/datetime"
	"boardingpass_parser/internal/ocr"
)

// setupTestPostgres creates a test database connection.
// Returns nil if no PostgreSQL connection is available.
func setupTestPostgres(t *testing.T, loc *time.Location) *PostgresStore {
	t.Helper()

	// Check for environment variable or use defaults.
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "boardingpass"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "boardingpass"
	}
	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		database = "boardingpass"
	}

	ctx := context.Background()
	pg, err := OpenPostgres(ctx, config.PostgresConfig{
		Host:     host,
		Port:     5432,
		User:     user,
		Password: password,
		Database: database,
	}, loc)
	if err != nil {
		return nil
	}

	// Ensure schema exists.
	if err := pg.CreateSchema(ctx); err != nil {
		_ = pg.Close()
		return nil
	}

	t.Cleanup(func() { _ = pg.Close() })
	return pg
}

func TestPostgresSaveAndGet(t *testing.T) {
	pg := setupTestPostgres(t, time.UTC)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	ctx := context.Background()

	r := recordFor(t, "NH 123 TOKYO 2025/12/25 14:30 ゲート 15")
	require.NoError(t, pg.Save(ctx, r))
	require.NotZero(t, r.ID)

	got, err := pg.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "NH 123", got.FlightNumber)
	assert.Equal(t, "TOKYO", got.Destination)
	assert.Equal(t, "ゲート 15", got.Gate)
	require.NotNil(t, got.Departure)
	assert.True(t, got.Departure.Equal(*r.Departure))

	require.NoError(t, pg.SetGolden(ctx, r.ID, true, "reviewed"))
	got, err = pg.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.IsGolden)
	assert.Equal(t, "reviewed", got.Annotation)
}

func TestPostgresGetMissing(t *testing.T) {
	pg := setupTestPostgres(t, time.UTC)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}

	_, err := pg.Get(context.Background(), -1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresKeepsWallClock(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	pg := setupTestPostgres(t, jst)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	ctx := context.Background()

	parser := boardingpass.New(
		datetime.WithClock(func() time.Time { return fixedNow }),
		datetime.WithLocation(jst),
	)
	text := "NH 123 羽田 2025/12/25 14:30"
	res, ok := parser.Match(text)
	require.True(t, ok)
	r := NewRecord(&ocr.Recognition{Text: text}, res, ok, fixedNow)
	require.NoError(t, pg.Save(ctx, r))

	var stored string
	require.NoError(t, pg.pool.QueryRow(ctx,
		`SELECT to_char(departure, 'YYYY-MM-DD HH24:MI') FROM extractions WHERE id = $1`, r.ID).Scan(&stored))
	assert.Equal(t, "2025-12-25 14:30", stored)

	got, err := pg.Get(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Departure)
	assert.Equal(t, "2025-12-25 14:30", got.Departure.Format("2006-01-02 15:04"))
	assert.Equal(t, jst, got.Departure.Location())
	assert.True(t, got.Departure.Equal(*r.Departure))
	require.NotNil(t, got.AlarmTime)
	assert.Equal(t, "2025-12-25 12:30", got.AlarmTime.Format("2006-01-02 15:04"))
}

func TestPostgresListAndStats(t *testing.T) {
	pg := setupTestPostgres(t, time.UTC)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	ctx := context.Background()

	before, err := pg.GetStats(ctx)
	require.NoError(t, err)

	// The table is shared between runs, so tag this run's rows.
	tag := fmt.Sprintf("run%d", time.Now().UnixNano())
	records := []*Record{
		recordFor(t, "JAL 516 OSAKA 2025/12/25 14:30 "+tag),
		recordFor(t, "搭乗口ゲート12 12月25日 9時05分 "+tag),
		recordFor(t, "no departure here "+tag),
	}
	for _, r := range records {
		require.NoError(t, pg.Save(ctx, r))
	}

	all, err := pg.List(ctx, QueryParams{FullText: tag})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, records[0].ID, all[0].ID)

	found := true
	hits, err := pg.List(ctx, QueryParams{FullText: tag, Found: &found})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	byFlight, err := pg.List(ctx, QueryParams{FullText: tag, Flight: "jal"})
	require.NoError(t, err)
	require.Len(t, byFlight, 1)
	assert.Equal(t, "JAL 516", byFlight[0].FlightNumber)

	kana, err := pg.List(ctx, QueryParams{FullText: "ゲート12 12月25日 9時05分 " + tag})
	require.NoError(t, err)
	assert.Len(t, kana, 1)

	require.NoError(t, pg.SetGolden(ctx, records[1].ID, true, "kanji"))
	golden, err := pg.List(ctx, QueryParams{FullText: tag, GoldenOnly: true})
	require.NoError(t, err)
	require.Len(t, golden, 1)
	assert.Equal(t, "kanji", golden[0].Annotation)

	desc, err := pg.List(ctx, QueryParams{FullText: tag, OrderDesc: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, desc, 1)
	assert.Equal(t, records[2].ID, desc[0].ID)

	after, err := pg.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Total+3, after.Total)
	assert.Equal(t, before.Found+2, after.Found)
	assert.Equal(t, before.NotFound+1, after.NotFound)
	assert.Equal(t, before.DateFormats[datetime.FormatKanjiDate]+1, after.DateFormats[datetime.FormatKanjiDate])
	assert.Equal(t, before.MissingFields["gate"]+1, after.MissingFields["gate"])
}
