package main

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"boardingpass_parser/internal/boardingpass"
)

var debugCompact bool

var debugCmd = &cobra.Command{
	Use:   "debug [text]",
	Short: "Show how every field of one boarding pass was decided",
	Long: "Runs the extractor with tracing on the given text (or stdin) and prints each " +
		"field lookup and every date/time format tried.",
	RunE: func(cmd *cobra.Command, args []string) error {
		parser, err := newParser()
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		if text == "" {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return eris.Wrap(err, "read stdin")
			}
			text = strings.TrimSpace(string(b))
		}

		return writeTrace(cmd.OutOrStdout(), parser, text)
	},
}

func init() {
	debugCmd.Flags().BoolVar(&debugCompact, "compact", false, "Print the trace on one line")
	rootCmd.AddCommand(debugCmd)
}

func writeTrace(w io.Writer, parser *boardingpass.Parser, text string) error {
	enc, err := marshalJSON(parser.ParseWithTrace(text), !debugCompact)
	if err != nil {
		return eris.Wrap(err, "encode trace")
	}
	_, err = w.Write(append(enc, '\n'))
	return err
}
