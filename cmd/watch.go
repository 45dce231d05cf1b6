package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RealSaake/SkillBridge-sub000/internal/probe"
	"github.com/RealSaake/SkillBridge-sub000/internal/recovery"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run every configured target until it succeeds or exhausts its retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := &lockedWriter{w: cmd.OutOrStdout()}
		env, err := initProbes("watch", probe.Options{
			OnSnapshot: func(s recovery.Snapshot) { printSnapshot(out, s) },
		})
		if err != nil {
			return err
		}

		outcomes := runProbes(ctx, env.Registry, cfg.Probe.Concurrency)
		if env.Alerter != nil {
			env.Alerter.Drain(context.WithoutCancel(ctx))
		}

		var failed []string
		for _, o := range outcomes {
			if o.Err != nil {
				failed = append(failed, o.Name)
				zap.L().Error("operation did not recover", zap.String("operation", o.Name), zap.Error(o.Err))
				continue
			}
			fmt.Fprintf(out, "%s: ok\n", o.Name)
		}
		if len(failed) > 0 {
			return eris.Errorf("watch: %d of %d operations failed: %s",
				len(failed), len(outcomes), strings.Join(failed, ", "))
		}
		return nil
	},
}

// printSnapshot renders a transition and its actions on one line.
func printSnapshot(w io.Writer, s recovery.Snapshot) {
	actions := recovery.DeriveActions(s, "")
	labels := make([]string, 0, len(actions))
	for _, a := range actions {
		labels = append(labels, a.Label)
	}
	line := s.String()
	if msg := recovery.Message(s); msg != "" {
		line += " | " + msg
	}
	fmt.Fprintf(w, "%s | [%s]\n", line, strings.Join(labels, "] ["))
}

// lockedWriter serialises writes from concurrent runners.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
