package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"boardingpass_parser/internal/api"
	"boardingpass_parser/internal/review"
	"boardingpass_parser/internal/storage"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		serverCfg := cfg.Server
		if servePort != 0 {
			serverCfg.Port = servePort
		}

		opts := []api.Option{api.WithLogger(zap.L())}
		if g, ok := env.Sink.(storage.Getter); ok {
			opts = append(opts, api.WithGetter(g))
		}
		if st, ok := env.Sink.(review.Store); ok {
			opts = append(opts, api.WithReview(st))
		}

		return api.NewServer(env.Pipeline, serverCfg, opts...).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
