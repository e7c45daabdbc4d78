package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardingpass_parser/internal/config"
)

func setupTestClickHouse(t *testing.T) *ClickHouseStore {
	t.Helper()

	host := os.Getenv("CLICKHOUSE_HOST")
	if host == "" {
		host = "localhost"
	}

	ctx := context.Background()
	ch, err := OpenClickHouse(ctx, config.ClickHouseConfig{
		Host:     host,
		Port:     9000,
		Database: "default",
		User:     "default",
	})
	if err != nil {
		return nil
	}
	if err := ch.CreateSchema(ctx); err != nil {
		_ = ch.Close()
		return nil
	}

	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestClickHouseSaveBatch(t *testing.T) {
	ch := setupTestClickHouse(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	ctx := context.Background()

	beforeFound, beforeMissing, err := ch.CountByOutcome(ctx)
	require.NoError(t, err)

	records := []*Record{
		recordFor(t, "NH 123 TOKYO 2025/12/25 14:30"),
		recordFor(t, "no departure here 42"),
	}
	require.NoError(t, SaveAll(ctx, ch, records))

	found, missing, err := ch.CountByOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeFound+1, found)
	assert.Equal(t, beforeMissing+1, missing)
}
