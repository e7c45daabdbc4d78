package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"boardingpass_parser/internal/feed"
)

var listenMetricsAddr string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Extract recognitions arriving on the NATS feed",
	Long: "Subscribes to the feed subject, extracts every recognition, logs it to the " +
		"configured store and publishes the outcome to the reply or result subject.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		nc, err := feed.Connect(cfg.Feed.URL)
		if err != nil {
			return err
		}
		defer nc.Close()
		zap.L().Info("connected to NATS", zap.String("url", cfg.Feed.URL))

		listener := feed.NewListener(nc, env.Pipeline, env.Metrics, cfg.Feed, zap.L())

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return listener.Run(gctx)
		})
		if listenMetricsAddr != "" {
			g.Go(func() error {
				return serveMetrics(gctx, listenMetricsAddr)
			})
		}
		return g.Wait()
	},
}

func init() {
	listenCmd.Flags().StringVar(&listenMetricsAddr, "metrics-addr", "", "Serve /metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(listenCmd)
}

// serveMetrics exposes the default Prometheus registry until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "metrics server")
	}
	return nil
}
