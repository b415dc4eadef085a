// Package config loads application configuration from config.yaml and
// OUTREACH_* environment variables, env winning.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/outreach-cli/internal/compose"
	"github.com/sells-group/outreach-cli/internal/delivery"
	"github.com/sells-group/outreach-cli/internal/engine"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/review"
	"github.com/sells-group/outreach-cli/internal/signals"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig            `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig        `yaml:"anthropic" mapstructure:"anthropic"`
	Compose    compose.Config         `yaml:"compose" mapstructure:"compose"`
	Engine     engine.Config          `yaml:"engine" mapstructure:"engine"`
	Delivery   delivery.SESConfig     `yaml:"delivery" mapstructure:"delivery"`
	Signals    signals.ConsumerConfig `yaml:"signals" mapstructure:"signals"`
	Review     review.Config          `yaml:"review" mapstructure:"review"`
	Salesforce SalesforceConfig       `yaml:"salesforce" mapstructure:"salesforce"`
	Import     ImportConfig           `yaml:"import" mapstructure:"import"`
	Server     ServerConfig           `yaml:"server" mapstructure:"server"`
	Log        LogConfig              `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API credentials.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// SalesforceConfig holds Salesforce credential-flow auth settings.
type SalesforceConfig struct {
	Domain         string `yaml:"domain" mapstructure:"domain"`
	Username       string `yaml:"username" mapstructure:"username"`
	Password       string `yaml:"password" mapstructure:"password"`
	SecurityToken  string `yaml:"security_token" mapstructure:"security_token"`
	ConsumerKey    string `yaml:"consumer_key" mapstructure:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret" mapstructure:"consumer_secret"`
}

// ImportConfig configures roster ingestion.
type ImportConfig struct {
	Source  string `yaml:"source" mapstructure:"source"`
	Charset string `yaml:"charset" mapstructure:"charset"`
	Sheet   string `yaml:"sheet" mapstructure:"sheet"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("compose.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("compose.max_tokens", 1024)
	v.SetDefault("compose.timeout_secs", 60)
	v.SetDefault("compose.rate_per_sec", 5)
	v.SetDefault("compose.rate_burst", 5)

	v.SetDefault("engine.workers", 8)
	v.SetDefault("engine.max_per_company", 3)
	v.SetDefault("engine.follow_up_delay", "168h")
	v.SetDefault("engine.classify.fit_threshold", 50)
	v.SetDefault("engine.classify.top_n", 50)
	v.SetDefault("engine.retry.max_attempts", 2)
	v.SetDefault("engine.retry.initial_backoff_ms", 1000)
	v.SetDefault("engine.retry.max_backoff_ms", 0)
	v.SetDefault("engine.retry.multiplier", 0.0)
	v.SetDefault("engine.retry.jitter_fraction", -1.0)
	v.SetDefault("engine.breaker.failure_threshold", 0)
	v.SetDefault("engine.breaker.reset_timeout_secs", 0)

	v.SetDefault("delivery.region", "us-east-1")
	v.SetDefault("signals.queue", "outreach.signals")
	v.SetDefault("signals.prefetch", 8)
	v.SetDefault("salesforce.domain", "https://login.salesforce.com")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	cfg.Engine.SendRetry = resilience.FromRetryConfig(
		v.GetInt("engine.retry.max_attempts"),
		v.GetInt("engine.retry.initial_backoff_ms"),
		v.GetInt("engine.retry.max_backoff_ms"),
		v.GetFloat64("engine.retry.multiplier"),
		v.GetFloat64("engine.retry.jitter_fraction"))
	cfg.Engine.Breaker = resilience.FromCircuitConfig(
		v.GetInt("engine.breaker.failure_threshold"),
		v.GetInt("engine.breaker.reset_timeout_secs"))

	return &cfg, nil
}

// Validate checks the configuration needed for a given mode. Modes map to
// commands: import, classify, compose, send, followup, signals, review,
// serve.
func (c *Config) Validate(mode string) error {
	var problems []string

	need := func(value, name string) {
		if value == "" {
			problems = append(problems, name+" is required")
		}
	}

	need(c.Store.DatabaseURL, "store.database_url")

	switch mode {
	case "import":
		need(c.Import.Source, "import.source")
	case "classify":
		if c.Engine.MaxPerCompany < 1 {
			problems = append(problems, "engine.max_per_company must be >= 1")
		}
	case "compose":
		need(c.Anthropic.Key, "anthropic.key")
	case "send", "followup":
		need(c.Delivery.FromEmail, "delivery.from_email")
		need(c.Delivery.BCC, "delivery.bcc")
		if mode == "followup" && c.Engine.FollowUpDelay <= 0 {
			problems = append(problems, "engine.follow_up_delay must be > 0")
		}
	case "signals":
		need(c.Signals.URL, "signals.url")
	case "review":
		need(c.Review.Token, "review.token")
		need(c.Review.DatabaseID, "review.database_id")
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
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
