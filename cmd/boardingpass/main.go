// Command boardingpass reads flight details from OCR text of boarding passes.
package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"boardingpass_parser/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "boardingpass",
	Short: "Boarding-pass OCR field extraction",
	Long: "Reads flight number, destination, departure time and gate from recognised " +
		"boarding-pass text, as a batch tool, a NATS feed listener or an HTTP API.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
