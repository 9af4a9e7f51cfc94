package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 3.0, cfg.Match.NameWeight, 0.001)
	assert.InDelta(t, 1.0, cfg.Match.AddressWeight, 0.001)
	assert.InDelta(t, 70.0, cfg.Match.ConfidenceThreshold, 0.001)
	assert.Equal(t, "token_sort", cfg.Match.Algorithm)
	assert.True(t, cfg.Match.FilterByCountry)
	assert.Equal(t, 1, cfg.Dedupe.GridDecimals)
	assert.Empty(t, cfg.Recency.SeedUploaderIDs)
	assert.Equal(t, 100, cfg.Ingest.PageSize)
	assert.Equal(t, 15*time.Minute, cfg.Ingest.ProcessingTimeout)
	assert.Equal(t, 5, cfg.Ingest.MaxCandidates)
	assert.Equal(t, 0, cfg.Ingest.Concurrency)
	assert.InDelta(t, 10.0, cfg.Ingest.GeocodeRPS, 0.001)
	assert.Equal(t, 3, cfg.Ingest.RetryAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Ingest.RetryBackoff)

	assert.NoError(t, cfg.Validate("cli"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/facilities
log:
  level: debug
  format: console
server:
  port: 9090
match:
  algorithm: jaro_winkler
recency:
  seed_uploader_ids: [seed-1, seed-2]
ingest:
  processing_timeout: 30m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/facilities", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "jaro_winkler", cfg.Match.Algorithm)
	assert.Equal(t, []string{"seed-1", "seed-2"}, cfg.Recency.SeedUploaderIDs)
	assert.Equal(t, 30*time.Minute, cfg.Ingest.ProcessingTimeout)
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.Ingest.PageSize)
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FACILITY_STORE_DRIVER", "memory")
	t.Setenv("FACILITY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("FACILITY_SERVER_PORT", "3000")
	t.Setenv("FACILITY_MATCH_CONFIDENCE_THRESHOLD", "85")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 85.0, cfg.Match.ConfidenceThreshold, 0.001)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = DriverMemory
	cfg.Server.Port = 8080
	cfg.Match.NameWeight = 3
	cfg.Match.AddressWeight = 1
	cfg.Match.ConfidenceThreshold = 70
	cfg.Match.Algorithm = "token_sort"
	cfg.Dedupe.GridDecimals = 1
	cfg.Ingest.PageSize = 100
	cfg.Ingest.ProcessingTimeout = 15 * time.Minute
	cfg.Ingest.MaxCandidates = 5
	cfg.Ingest.RetryAttempts = 3
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"cli", "serve", "ingest"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// Port is irrelevant outside serve.
	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidatePostgresRequiresURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = DriverPostgres

	err := cfg.Validate("cli")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/test"
	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Match.NameWeight = 0
	cfg.Match.Algorithm = "soundex"
	cfg.Ingest.PageSize = 0

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "sqlite"`)
	assert.Contains(t, err.Error(), "match.name_weight")
	assert.Contains(t, err.Error(), `match.algorithm "soundex"`)
	assert.Contains(t, err.Error(), "ingest.page_size")
}

func TestValidateIngestBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Ingest.ProcessingTimeout = 0
	assert.ErrorContains(t, cfg.Validate("ingest"), "ingest.processing_timeout")

	cfg.Ingest.ProcessingTimeout = time.Minute
	cfg.Ingest.Concurrency = -1
	assert.ErrorContains(t, cfg.Validate("ingest"), "ingest.concurrency")

	cfg.Ingest.Concurrency = 8
	cfg.Ingest.MaxCandidates = 0
	assert.ErrorContains(t, cfg.Validate("ingest"), "ingest.max_candidates")

	cfg.Ingest.MaxCandidates = 1
	cfg.Ingest.RetryAttempts = 0
	assert.ErrorContains(t, cfg.Validate("ingest"), "ingest.retry_attempts")

	cfg.Ingest.RetryAttempts = 1
	cfg.Dedupe.GridDecimals = 9
	assert.ErrorContains(t, cfg.Validate("ingest"), "dedupe.grid_decimals")
}
