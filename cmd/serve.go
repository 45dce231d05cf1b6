package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RealSaake/SkillBridge-sub000/internal/probe"
	"github.com/RealSaake/SkillBridge-sub000/internal/server"
)

var (
	servePort     int
	serveInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Monitor configured targets and expose their recovery state over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port

		env, err := initProbes("serve", probe.Options{Interval: serveInterval})
		if err != nil {
			return err
		}

		opts := server.Options{CORSOrigins: cfg.Server.CORSOrigins}
		if env.Metrics != nil {
			opts.Metrics = promhttp.HandlerFor(env.Metrics, promhttp.HandlerOpts{})
		}
		srv := server.New(env.Registry, opts)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			for _, o := range runProbes(gctx, env.Registry, 0) {
				zap.L().Info("runner stopped", zap.String("operation", o.Name), zap.Error(o.Err))
			}
			return nil
		})
		g.Go(func() error {
			return srv.ListenAndServe(gctx, fmt.Sprintf(":%d", port))
		})
		if env.Alerter != nil {
			g.Go(func() error { return env.Alerter.Run(gctx) })
		}
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 30*time.Second, "re-check interval after a success")
	rootCmd.AddCommand(serveCmd)
}
