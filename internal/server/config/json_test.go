package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/libsync/internal/flagx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv(flagx.ConfigEnv, "")

	dir := t.TempDir()
	full := writeTempJSON(t, dir, "full.json", map[string]any{
		"endpoint_addr_http":     "www.example:9000",
		"database_dsn":           "libsync-db",
		"secret_key":             "my_secret_key",
		"s3_bucket":              "bucket",
		"s3_region":              "region",
		"storage_root":           "tenants",
		"signed_url_ttl":         "5m",
		"max_file_size":          1024,
		"max_parallel_transfers": 4,
		"redis_addr":             "redis:6379",
		"sweep_schedule":         "@hourly",
		"default_plan":           "PLUS",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", full}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "libsync-db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "tenants", cfg.StorageRoot)
		assert.Equal(t, 5*time.Minute, cfg.SignedURLTTL)
		assert.Equal(t, int64(1024), cfg.MaxFileSize)
		assert.Equal(t, 4, cfg.MaxParallelTransfers)
		assert.Equal(t, "redis:6379", cfg.RedisAddr)
		assert.Equal(t, "@hourly", cfg.SweepSchedule)
		assert.Equal(t, "PLUS", cfg.DefaultPlan)
	})

	t.Run("absent fields keep defaults", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"s3_bucket": "other"})
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		want := &Config{}
		want.LoadDefaults()
		want.S3Bucket = "other"
		assert.Equal(t, want, cfg)
	})

	t.Run("no config file leaves config untouched", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{EndpointAddrHTTP: "defaults:1234", MaxBatchSize: 7}
		parseJson(cfg)

		assert.Equal(t, &Config{EndpointAddrHTTP: "defaults:1234", MaxBatchSize: 7}, cfg)
	})

	t.Run("environment names the file", func(t *testing.T) {
		t.Setenv(flagx.ConfigEnv, full)
		os.Args = []string{"testbin"}

		cfg := &Config{}
		parseJson(cfg)
		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		os.Args = []string{"testbin", "-config", bad}

		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "nope.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
