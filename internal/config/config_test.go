package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.Store.Backend)
	require.Equal(t, 24*time.Hour, cfg.Store.TTL)
	require.Equal(t, 3, cfg.Proactive.Upcoming)
	require.Equal(t, 7, cfg.Proactive.DueSoon)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
store:
  backend: redis
  ttl: 2h
  redis:
    addr: cache:6379
    db: 2
proactive:
  upcoming: 5
log:
  level: debug
directory:
  base_url: https://directory.example
  rate_limit: 2.5
`)
	t.Setenv("ASSISTANT_REDIS_DB", "4")
	t.Setenv("ASSISTANT_LOG_FORMAT", "console")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendRedis, cfg.Store.Backend)
	require.Equal(t, 2*time.Hour, cfg.Store.TTL)
	require.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	require.Equal(t, 4, cfg.Store.Redis.DB)
	require.Equal(t, "assistant:", cfg.Store.Redis.KeyPrefix)
	require.Equal(t, 5, cfg.Proactive.Upcoming)
	require.Equal(t, 7, cfg.Proactive.DueSoon)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "console", cfg.Log.Format)
	require.Equal(t, 2.5, cfg.Directory.RateLimit)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read")

	_, err = Load(writeFile(t, "store: [not, a, map]"))
	require.ErrorContains(t, err, "parse")

	t.Setenv("ASSISTANT_STORE_TTL", "soon")
	_, err = Load("")
	require.ErrorContains(t, err, "ASSISTANT_STORE_TTL")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = BackendDynamoDB
	require.ErrorContains(t, cfg.Validate(), "store.table")
	cfg.Store.Table = "conversations"
	require.NoError(t, cfg.Validate())

	cfg.Store.Backend = BackendRedis
	cfg.Store.Redis.Addr = ""
	require.ErrorContains(t, cfg.Validate(), "store.redis.addr")

	cfg = Default()
	cfg.Store.Backend = "postgres"
	cfg.Proactive.Upcoming = -1
	err := cfg.Validate()
	require.ErrorContains(t, err, "unknown store backend")
	require.ErrorContains(t, err, "proactive windows")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ASSISTANT_STORE_BACKEND":      "dynamodb",
		"ASSISTANT_STATE_TABLE":        "conversations",
		"ASSISTANT_DIRECTORY_BURST":    "3",
		"ASSISTANT_UPCOMING_DAYS":      "4",
		"ASSISTANT_PATTERNS_PARAMETER": "patterns",
	}
	cfg := Default()
	require.NoError(t, applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	require.Equal(t, BackendDynamoDB, cfg.Store.Backend)
	require.Equal(t, "conversations", cfg.Store.Table)
	require.Equal(t, 3, cfg.Directory.Burst)
	require.Equal(t, 4, cfg.Proactive.Upcoming)
	require.Equal(t, "/citizen-assistant/patterns", cfg.PatternParameterName())

	cfg.Patterns.Parameter = "/shared/patterns"
	require.Equal(t, "/shared/patterns", cfg.PatternParameterName())

	err := applyEnv(&cfg, func(k string) (string, bool) {
		if k == "ASSISTANT_REDIS_DB" || k == "ASSISTANT_DIRECTORY_RATE_LIMIT" {
			return "x", true
		}
		return "", false
	})
	require.ErrorContains(t, err, "ASSISTANT_REDIS_DB")
	require.ErrorContains(t, err, "ASSISTANT_DIRECTORY_RATE_LIMIT")
}
