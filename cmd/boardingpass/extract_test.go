package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardingpass_parser/internal/boardingpass"
	"boardingpass_parser/internal/datetime"
	"boardingpass_parser/internal/extractor"
	"boardingpass_parser/internal/storage"
)

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func testPipeline() *extractor.Pipeline {
	return extractor.New(boardingpass.New(
		datetime.WithClock(func() time.Time { return fixedNow }),
		datetime.WithLocation(time.UTC),
	))
}

const sampleJSONL = `{"id":1,"text":"NH 123 TOKYO 2025/12/25 14:30 GATE 42"}

{"lines":[{"text":"JAL 516"},{"text":"OSAKA"},{"text":"25DEC 9:05"}]}
{"device":{"id":"kiosk"},"recognition":{"text":"no departure here"}}
not json
{"text":""}
`

func setExtractFlags(t *testing.T, all, pretty bool) {
	t.Helper()
	prevAll, prevPretty := extractAll, extractPretty
	extractAll, extractPretty = all, pretty
	t.Cleanup(func() { extractAll, extractPretty = prevAll, prevPretty })
}

func TestRunExtract(t *testing.T) {
	setExtractFlags(t, false, false)

	var out bytes.Buffer
	st, err := runExtract(context.Background(), strings.NewReader(sampleJSONL), &out, testPipeline(), nil)
	require.NoError(t, err)

	assert.Equal(t, 6, st.Lines)
	assert.Equal(t, 1, st.ParsedFlat)
	assert.Equal(t, 1, st.ParsedLines)
	assert.Equal(t, 1, st.ParsedEnv)
	assert.Equal(t, 2, st.SkippedText)
	assert.Equal(t, 2, st.Found)
	assert.Equal(t, 2, st.Emitted)
	assert.Equal(t, 0, st.Stored)

	var got []struct {
		Recognition map[string]any       `json:"recognition"`
		Outcome     boardingpass.Outcome `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "NH 123", got[0].Outcome.Info.FlightNumber)
	assert.Equal(t, "GATE 42", got[0].Outcome.Info.Gate)
	assert.Equal(t, "JAL 516", got[1].Outcome.Info.FlightNumber)
	assert.True(t, got[1].Outcome.Info.Departure.Equal(time.Date(2025, 12, 25, 9, 5, 0, 0, time.UTC)))
}

func TestRunExtractAll(t *testing.T) {
	setExtractFlags(t, true, true)

	var out bytes.Buffer
	st, err := runExtract(context.Background(), strings.NewReader(sampleJSONL), &out, testPipeline(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Emitted)
	assert.Contains(t, out.String(), "\n  ")
	assert.Contains(t, out.String(), `"found": false`)
}

func TestRunExtractEmptyInput(t *testing.T) {
	setExtractFlags(t, false, false)

	var out bytes.Buffer
	_, err := runExtract(context.Background(), strings.NewReader(""), &out, testPipeline(), nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out.String())
}

func TestRunExtractStores(t *testing.T) {
	setExtractFlags(t, false, false)

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "extract.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var out bytes.Buffer
	st, err := runExtract(context.Background(), strings.NewReader(sampleJSONL), &out, testPipeline(), db)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Stored)

	stats, err := db.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Found)
	assert.Equal(t, 1, stats.NotFound)
}

func TestWriteTrace(t *testing.T) {
	prev := debugCompact
	debugCompact = true
	t.Cleanup(func() { debugCompact = prev })

	parser := boardingpass.New(
		datetime.WithClock(func() time.Time { return fixedNow }),
		datetime.WithLocation(time.UTC),
	)

	var out bytes.Buffer
	require.NoError(t, writeTrace(&out, parser, "NH 123 TOKYO 2025/12/25 14:30"))

	var trace map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &trace))
	assert.Contains(t, trace, "quick_check")
	assert.Contains(t, trace, "extractors")
	assert.Contains(t, trace, "date_time")
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}
