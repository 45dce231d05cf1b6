package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/RealSaake/SkillBridge-sub000/internal/recovery"
)

// Config holds the full application configuration.
type Config struct {
	Recovery   RecoveryConfig   `yaml:"recovery" mapstructure:"recovery"`
	Probe      ProbeConfig      `yaml:"probe" mapstructure:"probe"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// RecoveryConfig configures every recovery controller.
type RecoveryConfig struct {
	MaxRetries       int    `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelayMs      int    `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	RateLimitDelayMs int    `yaml:"rate_limit_delay_ms" mapstructure:"rate_limit_delay_ms"`
	EscapeTarget     string `yaml:"escape_target" mapstructure:"escape_target"`
}

// ForOperation converts the section into a controller config for one
// protected operation.
func (r RecoveryConfig) ForOperation(name string) recovery.Config {
	return recovery.FromSettings(name, r.MaxRetries, r.BaseDelayMs, r.RateLimitDelayMs, r.EscapeTarget)
}

// ProbeConfig configures the protected HTTP operations run by watch and serve.
type ProbeConfig struct {
	Targets     []TargetConfig `yaml:"targets" mapstructure:"targets"`
	TimeoutSecs int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64        `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int            `yaml:"burst" mapstructure:"burst"`
	Concurrency int            `yaml:"concurrency" mapstructure:"concurrency"`
	UserAgent   string         `yaml:"user_agent" mapstructure:"user_agent"`
}

// TargetConfig is one protected HTTP operation.
type TargetConfig struct {
	Name   string `yaml:"name" mapstructure:"name"`
	URL    string `yaml:"url" mapstructure:"url"`
	Method string `yaml:"method" mapstructure:"method"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MetricsConfig configures Prometheus export.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// MonitoringConfig configures webhook alerts for operations that need a
// human. An empty WebhookURL disables alerting.
type MonitoringConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	QueueSize   int    `yaml:"queue_size" mapstructure:"queue_size"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SKILLBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("recovery.max_retries", 3)
	v.SetDefault("recovery.base_delay_ms", 1000)
	v.SetDefault("recovery.rate_limit_delay_ms", 60000)
	v.SetDefault("recovery.escape_target", "/dashboard")
	v.SetDefault("probe.timeout_secs", 10)
	v.SetDefault("probe.rate_per_sec", 5.0)
	v.SetDefault("probe.burst", 5)
	v.SetDefault("probe.concurrency", 4)
	v.SetDefault("probe.user_agent", "skillbridge/1.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "skillbridge")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.queue_size", 64)
	v.SetDefault("monitoring.timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "watch",
// "serve", "simulate".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Recovery.MaxRetries < 0 {
		errs = append(errs, "recovery.max_retries must be >= 0")
	}
	if c.Recovery.BaseDelayMs < 0 {
		errs = append(errs, "recovery.base_delay_ms must be >= 0")
	}
	if c.Recovery.RateLimitDelayMs < 0 {
		errs = append(errs, "recovery.rate_limit_delay_ms must be >= 0")
	}

	switch mode {
	case "simulate":
	case "watch", "serve":
		errs = append(errs, c.validateProbe()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateProbe() []string {
	var errs []string
	if len(c.Probe.Targets) == 0 {
		errs = append(errs, "probe.targets is required")
	}
	seen := make(map[string]bool)
	for i, t := range c.Probe.Targets {
		if t.Name == "" {
			errs = append(errs, fmt.Sprintf("probe.targets[%d].name is required", i))
		} else if seen[t.Name] {
			errs = append(errs, fmt.Sprintf("probe.targets[%d].name %q is duplicated", i, t.Name))
		}
		seen[t.Name] = true
		if t.URL == "" {
			errs = append(errs, fmt.Sprintf("probe.targets[%d].url is required", i))
		}
	}
	if c.Probe.Concurrency < 1 || c.Probe.Concurrency > 64 {
		errs = append(errs, "probe.concurrency must be between 1 and 64")
	}
	if c.Probe.RatePerSec <= 0 {
		errs = append(errs, "probe.rate_per_sec must be > 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		// Console output is for humans; DPanic must not abort the CLI.
		zapCfg.Development = false
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
