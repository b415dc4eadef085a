package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "outreach.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 3, cfg.Engine.MaxPerCompany)
	assert.Equal(t, 168*time.Hour, cfg.Engine.FollowUpDelay)
	assert.Equal(t, 50, cfg.Engine.Classify.FitThreshold)
	assert.Equal(t, 50, cfg.Engine.Classify.TopN)
	assert.Equal(t, 2, cfg.Engine.SendRetry.MaxAttempts)

	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Compose.Model)
	assert.EqualValues(t, 1024, cfg.Compose.MaxTokens)
	assert.Equal(t, "us-east-1", cfg.Delivery.Region)
	assert.Equal(t, "outreach.signals", cfg.Signals.Queue)
	assert.Equal(t, 8, cfg.Signals.Prefetch)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.Domain)
}

func TestLoadFromYAML(t *testing.T) {
	chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/outreach
log:
  level: debug
  format: console
engine:
  max_per_company: 5
  follow_up_delay: 72h
delivery:
  from_email: reps@example.com
  bcc: crm-inbox@example.com
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Engine.MaxPerCompany)
	assert.Equal(t, 72*time.Hour, cfg.Engine.FollowUpDelay)
	assert.Equal(t, "crm-inbox@example.com", cfg.Delivery.BCC)
	// Defaults still apply for unset values
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0644))

	t.Setenv("OUTREACH_STORE_DRIVER", "postgres")
	t.Setenv("OUTREACH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("OUTREACH_SERVER_PORT", "3000")
	t.Setenv("OUTREACH_ENGINE_MAX_PER_COMPANY", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Engine.MaxPerCompany)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "outreach.db"
	cfg.Engine.MaxPerCompany = 3
	cfg.Engine.FollowUpDelay = 168 * time.Hour
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateSend(t *testing.T) {
	cfg := validConfig()
	cfg.Delivery.FromEmail = "reps@example.com"
	cfg.Delivery.BCC = "crm-inbox@example.com"
	assert.NoError(t, cfg.Validate("send"))

	cfg.Delivery.BCC = ""
	err := cfg.Validate("send")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery.bcc is required")
}

func TestValidateCompose(t *testing.T) {
	cfg := validConfig()
	err := cfg.Validate("compose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("compose"))
}

func TestValidateImport(t *testing.T) {
	cfg := validConfig()
	err := cfg.Validate("import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import.source is required")

	cfg.Import.Source = "roster.csv"
	assert.NoError(t, cfg.Validate("import"))
}

func TestValidateReview(t *testing.T) {
	cfg := validConfig()
	err := cfg.Validate("review")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review.token is required")
	assert.Contains(t, err.Error(), "review.database_id is required")
}

func TestValidateSignals(t *testing.T) {
	cfg := validConfig()
	err := cfg.Validate("signals")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signals.url is required")
}

func TestValidateServe(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateMissingDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validConfig().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateClassifyBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.MaxPerCompany = 0
	err := cfg.Validate("classify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_per_company must be >= 1")
}

func TestValidateFollowUpDelay(t *testing.T) {
	cfg := validConfig()
	cfg.Delivery.FromEmail = "reps@example.com"
	cfg.Delivery.BCC = "crm-inbox@example.com"
	cfg.Engine.FollowUpDelay = 0
	err := cfg.Validate("followup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.follow_up_delay must be > 0")
}
