package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"boardingpass_parser/internal/boardingpass"
	"boardingpass_parser/internal/extractor"
	"boardingpass_parser/internal/ocr"
	"boardingpass_parser/internal/storage"
)

// storeBatchSize is how many records are written per SaveAll call.
const storeBatchSize = 500

var (
	extractInput  string
	extractOutput string
	extractPretty bool
	extractAll    bool
	extractStats  bool
	extractStore  string
)

// ExtractOut is one line of extract output.
type ExtractOut struct {
	Recognition *ocr.Recognition     `json:"recognition"`
	Outcome     boardingpass.Outcome `json:"outcome"`
}

// extractCounts are the counters printed by --stats.
type extractCounts struct {
	Lines       int
	ParsedEnv   int
	ParsedFlat  int
	ParsedLines int
	SkippedText int
	Emitted     int
	Found       int
	Stored      int
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract flight records from a JSONL file of OCR recognitions",
	Long: "Reads one recognition per line (flat text, line array or device envelope) and " +
		"writes a JSON array of outcomes. Not-found outcomes are only kept with --all.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if extractStore != "" {
			cfg.Store.Driver = extractStore
		}
		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		var r io.Reader = os.Stdin
		if extractInput != "" {
			f, err := os.Open(extractInput)
			if err != nil {
				return eris.Wrap(err, "open input")
			}
			defer func() { _ = f.Close() }()
			r = f
		}

		var w io.Writer = os.Stdout
		if extractOutput != "" {
			f, err := os.Create(extractOutput)
			if err != nil {
				return eris.Wrap(err, "create output")
			}
			defer func() { _ = f.Close() }()
			w = f
		}

		st, err := runExtract(ctx, r, w, env.Pipeline, env.Sink)
		if err != nil {
			return err
		}

		if extractStats {
			fmt.Fprintf(os.Stderr,
				"stats: lines=%d parsed(envelope=%d flat=%d lines=%d) skipped(no_text)=%d emitted=%d found=%d stored=%d\n",
				st.Lines, st.ParsedEnv, st.ParsedFlat, st.ParsedLines, st.SkippedText, st.Emitted, st.Found, st.Stored,
			)
		}
		return nil
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractInput, "input", "", "Input JSONL file (default: stdin)")
	f.StringVar(&extractOutput, "output", "", "Output JSON file (default: stdout)")
	f.BoolVar(&extractPretty, "pretty", false, "Pretty-print JSON output")
	f.BoolVar(&extractAll, "all", false, "Include recognitions with no departure time")
	f.BoolVar(&extractStats, "stats", false, "Print basic counters to stderr")
	f.StringVar(&extractStore, "store", "", "Log attempts to this store driver (sqlite, postgres, clickhouse)")
	rootCmd.AddCommand(extractCmd)
}

// runExtract reads JSONL from r and writes the JSON array to w. When sink is
// set, every decoded recognition is stored in batches alongside extraction.
func runExtract(ctx context.Context, r io.Reader, w io.Writer, p *extractor.Pipeline, sink storage.Sink) (*extractCounts, error) {
	st := &extractCounts{}
	out := make([]ExtractOut, 0, 1024)

	records := make(chan *storage.Record, storeBatchSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(records)

		scanner := bufio.NewScanner(r)
		// JSON lines can be long; bump buffer.
		buf := make([]byte, 0, 1024*1024)
		scanner.Buffer(buf, 16*1024*1024)

		for scanner.Scan() {
			st.Lines++
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			rec, kind := ocr.Decode([]byte(line))
			if rec == nil {
				st.SkippedText++
				continue
			}
			switch kind {
			case "envelope":
				st.ParsedEnv++
			case "flat":
				st.ParsedFlat++
			case "lines":
				st.ParsedLines++
			}

			processed := p.Extract(rec)
			if processed.Found {
				st.Found++
			}
			if processed.Found || extractAll {
				out = append(out, ExtractOut{Recognition: rec, Outcome: processed.Outcome()})
				st.Emitted++
			}

			if sink == nil {
				continue
			}
			select {
			case records <- processed.Record:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		if err := scanner.Err(); err != nil {
			return eris.Wrap(err, "read input")
		}
		return nil
	})

	if sink != nil {
		g.Go(func() error {
			batch := make([]*storage.Record, 0, storeBatchSize)
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				if err := storage.SaveAll(gctx, sink, batch); err != nil {
					return eris.Wrap(err, "store batch")
				}
				st.Stored += len(batch)
				zap.L().Debug("stored batch", zap.Int("records", len(batch)))
				batch = batch[:0]
				return nil
			}

			for rec := range records {
				batch = append(batch, rec)
				if len(batch) == storeBatchSize {
					if err := flush(); err != nil {
						return err
					}
				}
			}
			return flush()
		})
	}

	if err := g.Wait(); err != nil {
		return st, err
	}

	enc, err := marshalJSON(out, extractPretty)
	if err != nil {
		return st, eris.Wrap(err, "encode output")
	}
	if _, err := w.Write(append(enc, '\n')); err != nil {
		return st, eris.Wrap(err, "write output")
	}
	return st, nil
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
