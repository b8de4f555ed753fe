package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

const minimalYAML = `
app:
  env: test
  port: 9090
mongo:
  uri: mongodb://localhost:27017
  db: chatsync_test
redis:
  addr: localhost:6379
jwt:
  alg: HS256
  hs_secret: s3cret
`

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(minimalYAML), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "9090", cfg.App.PortString())
	assert.Equal(t, "chatsync_test", cfg.Mongo.DB)

	// Defaults and derived durations.
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, int64(500), cfg.RetryBase.Milliseconds())
	assert.Equal(t, int64(10), int64(cfg.SetupTimeout.Seconds()))
	assert.Equal(t, "chat", cfg.Redis.Prefix)
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(minimalYAML), 0o600))
	t.Setenv("SERVICE_PORT", "7001")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.App.Port)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	chdirTemp(t)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsMissingJWTSecret(t *testing.T) {
	dir := chdirTemp(t)
	yaml := `
app:
  port: 9090
mongo:
  uri: mongodb://localhost:27017
  db: x
redis:
  addr: localhost:6379
jwt:
  alg: HS256
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hs_secret")
}
