package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RealSaake/SkillBridge-sub000/internal/monitoring"
	"github.com/RealSaake/SkillBridge-sub000/internal/probe"
	"github.com/RealSaake/SkillBridge-sub000/internal/recovery"
)

// probeEnv holds the runners built from probe.targets and the metrics
// registry they report to.
type probeEnv struct {
	Registry *probe.Registry
	Metrics  *prometheus.Registry // nil when metrics are disabled
	Alerter  *monitoring.Alerter  // nil when no webhook is configured
}

// initProbes builds one runner and controller per configured target.
func initProbes(mode string, opts probe.Options) (*probeEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &probeEnv{Registry: probe.NewRegistry()}
	sinks := recovery.MultiSink{recovery.NewZapSink(nil)}
	if cfg.Metrics.Enabled {
		env.Metrics = prometheus.NewRegistry()
		env.Metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		sinks = append(sinks, recovery.NewMetricsSink(env.Metrics, cfg.Metrics.Namespace))
	}
	if cfg.Monitoring.WebhookURL != "" {
		env.Alerter = monitoring.NewAlerter(cfg.Monitoring)
		sinks = append(sinks, env.Alerter)
	}

	httpOpts := probe.HTTPOptions{
		UserAgent: cfg.Probe.UserAgent,
		Timeout:   time.Duration(cfg.Probe.TimeoutSecs) * time.Second,
		Limiter:   probe.NewLimiter(cfg.Probe.RatePerSec, cfg.Probe.Burst),
	}

	for _, t := range cfg.Probe.Targets {
		ctrl, err := recovery.New(cfg.Recovery.ForOperation(t.Name), recovery.WithSink(sinks))
		if err != nil {
			return nil, err
		}
		target := probe.Target{Name: t.Name, URL: t.URL, Method: t.Method}
		runner, err := probe.NewRunner(t.Name, probe.HTTPCheck(target, httpOpts), ctrl, opts)
		if err != nil {
			return nil, err
		}
		if err := env.Registry.Add(runner); err != nil {
			return nil, err
		}
	}

	zap.L().Info("probes initialized",
		zap.Int("targets", env.Registry.Len()),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("alerts", env.Alerter != nil),
	)
	return env, nil
}

// runOutcome is the result of one runner.
type runOutcome struct {
	Name string
	Err  error
}

// runProbes runs every runner, at most limit at a time when limit > 0, and
// returns their outcomes in registry order. Individual failures do not stop
// the others.
func runProbes(ctx context.Context, reg *probe.Registry, limit int) []runOutcome {
	runners := reg.List()
	outcomes := make([]runOutcome, len(runners))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, r := range runners {
		i, r := i, r
		g.Go(func() error {
			outcomes[i] = runOutcome{Name: r.Name(), Err: r.Run(gctx)}
			return nil // one exhausted operation must not cancel the rest
		})
	}
	_ = g.Wait()

	return outcomes
}
