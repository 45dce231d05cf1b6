package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealSaake/SkillBridge-sub000/internal/config"
	"github.com/RealSaake/SkillBridge-sub000/internal/probe"
)

func testConfig(targets ...config.TargetConfig) *config.Config {
	return &config.Config{
		Recovery: config.RecoveryConfig{MaxRetries: 0, BaseDelayMs: 10, RateLimitDelayMs: 10, EscapeTarget: "/dashboard"},
		Probe: config.ProbeConfig{
			Targets:     targets,
			TimeoutSecs: 2,
			RatePerSec:  100,
			Burst:       10,
			Concurrency: 2,
			UserAgent:   "skillbridge-test",
		},
		Server:  config.ServerConfig{Port: 8080},
		Metrics: config.MetricsConfig{Enabled: true, Namespace: "test"},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
}

func setConfig(t *testing.T, c *config.Config) {
	t.Helper()
	old := cfg
	cfg = c
	t.Cleanup(func() { cfg = old })
}

func TestClassifyCommand(t *testing.T) {
	var out bytes.Buffer
	classifyCmd.SetOut(&out)
	defer classifyCmd.SetOut(nil)

	err := classifyCmd.RunE(classifyCmd, []string{"Network request failed", "401 Unauthorized", "weird"})
	require.NoError(t, err)

	lines := out.String()
	assert.Contains(t, lines, "network    auto-retry Network request failed")
	assert.Contains(t, lines, "auth       manual     401 Unauthorized")
	assert.Contains(t, lines, "unknown    auto-retry weird")
}

func TestClassifyCommand_JSON(t *testing.T) {
	var out bytes.Buffer
	classifyCmd.SetOut(&out)
	defer classifyCmd.SetOut(nil)
	classifyJSON = true
	defer func() { classifyJSON = false }()

	require.NoError(t, classifyCmd.RunE(classifyCmd, []string{"429 rate limit"}))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "rate_limit", rows[0]["kind"])
	assert.Equal(t, true, rows[0]["retriable"])
}

func TestSimulateCommand_Builtins(t *testing.T) {
	setConfig(t, testConfig())
	var out bytes.Buffer
	simulateCmd.SetOut(&out)
	defer simulateCmd.SetOut(nil)

	require.NoError(t, simulateCmd.RunE(simulateCmd, nil))
	assert.Contains(t, out.String(), "== backoff")
	assert.Contains(t, out.String(), "-> career insights: exhausted (network) attempt 3/3")
	assert.NotContains(t, out.String(), "FAIL")
}

func TestSimulateCommand_List(t *testing.T) {
	var out bytes.Buffer
	simulateCmd.SetOut(&out)
	defer simulateCmd.SetOut(nil)
	simulateList = true
	defer func() { simulateList = false }()

	require.NoError(t, simulateCmd.RunE(simulateCmd, nil))
	assert.Equal(t, "auth\nbackoff\ndispose\nrate-limit\n", out.String())
}

func TestSimulateCommand_UnknownScenario(t *testing.T) {
	setConfig(t, testConfig())
	err := simulateCmd.RunE(simulateCmd, []string{"no-such-scenario"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-scenario")
}

func TestWatchCommand(t *testing.T) {
	var flaky atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/oauth/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		flaky.Add(1)
	}))
	defer srv.Close()

	setConfig(t, testConfig(
		config.TargetConfig{Name: "healthy", URL: srv.URL + "/ok"},
		config.TargetConfig{Name: "broken", URL: srv.URL + "/oauth/down"},
	))

	var out bytes.Buffer
	watchCmd.SetOut(&out)
	defer watchCmd.SetOut(nil)
	watchCmd.SetContext(context.Background())
	defer watchCmd.SetContext(nil)

	err := watchCmd.RunE(watchCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 operations failed: broken")
	assert.Contains(t, out.String(), "healthy: ok")
	assert.Contains(t, out.String(), "broken: exhausted (server) attempt 0/0")
	assert.Contains(t, out.String(), "[Return to Dashboard]")
	assert.Equal(t, int32(2), flaky.Load())
}

func TestWatchCommand_InvalidConfig(t *testing.T) {
	setConfig(t, testConfig())
	watchCmd.SetContext(context.Background())
	defer watchCmd.SetContext(nil)

	err := watchCmd.RunE(watchCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe.targets is required")
}

func TestInitProbes(t *testing.T) {
	setConfig(t, testConfig(
		config.TargetConfig{Name: "a", URL: "http://127.0.0.1:1/a"},
		config.TargetConfig{Name: "b", URL: "http://127.0.0.1:1/b", Method: http.MethodPost},
	))

	env, err := initProbes("serve", probe.Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, env.Registry.Len())
	require.NotNil(t, env.Metrics)

	r, ok := env.Registry.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", r.Controller().Config().OperationName)
	assert.Equal(t, 0, r.Controller().Config().MaxRetries)
}

func TestInitProbes_MetricsDisabled(t *testing.T) {
	c := testConfig(config.TargetConfig{Name: "a", URL: "http://127.0.0.1:1/a"})
	c.Metrics.Enabled = false
	setConfig(t, c)

	env, err := initProbes("watch", probe.Options{})
	require.NoError(t, err)
	assert.Nil(t, env.Metrics)
}

func TestWatchCommand_SendsAlerts(t *testing.T) {
	var alerts atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			assert.Equal(t, "retries_exhausted", body["type"])
			assert.Equal(t, "broken", body["operation"])
		}
		alerts.Add(1)
	}))
	defer hook.Close()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer target.Close()

	c := testConfig(config.TargetConfig{Name: "broken", URL: target.URL})
	c.Monitoring = config.MonitoringConfig{WebhookURL: hook.URL}
	setConfig(t, c)

	var out bytes.Buffer
	watchCmd.SetOut(&out)
	defer watchCmd.SetOut(nil)
	watchCmd.SetContext(context.Background())
	defer watchCmd.SetContext(nil)

	require.Error(t, watchCmd.RunE(watchCmd, nil))
	assert.Equal(t, int32(1), alerts.Load())
}
