package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func Test_parseFile_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("json", func(t *testing.T) {
		path := writeTemp(t, "cfg.json", `{
			"database_path": "x.db",
			"max_retries": 0,
			"dispatch_interval": "250ms",
			"retry_delay": "5s",
			"failed_retention": 60000000000,
			"s3_part_size": 6291456,
			"log_format": "json"
		}`)
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFile(cfg)

		assert.Equal(t, "x.db", cfg.DatabasePath)
		assert.Equal(t, 0, cfg.MaxRetries)
		assert.Equal(t, 250*time.Millisecond, cfg.DispatchInterval)
		assert.Equal(t, 5*time.Second, cfg.RetryDelay)
		assert.Equal(t, time.Minute, cfg.FailedRetention)
		assert.Equal(t, int64(6<<20), cfg.S3PartSize)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, 3, cfg.MaxConcurrent, "absent keys keep defaults")
		assert.Equal(t, "spool", cfg.SpoolDir)
	})

	t.Run("yaml", func(t *testing.T) {
		path := writeTemp(t, "cfg.yml", "spool_dir: /var/spool/up\nsucceeded_grace: 45s\nportal_dsn: postgres://p\n")
		os.Args = []string{"testbin", "-c", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFile(cfg)

		assert.Equal(t, "/var/spool/up", cfg.SpoolDir)
		assert.Equal(t, 45*time.Second, cfg.SucceededGrace)
		assert.Equal(t, "postgres://p", cfg.PortalDSN)
		assert.Equal(t, 3, cfg.MaxRetries)
	})

	t.Run("no file flag → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{DatabasePath: "defaults.db", ProbeInterval: 42 * time.Second}
		parseFile(cfg)

		assert.Equal(t, "defaults.db", cfg.DatabasePath)
		assert.Equal(t, 42*time.Second, cfg.ProbeInterval)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := writeTemp(t, "bad.json", `{ this is not valid json`)
		os.Args = []string{"testbin", "-config", bad}

		require.Panics(t, func() { parseFile(&Config{}) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(t.TempDir(), "none.json")}

		require.Panics(t, func() { parseFile(&Config{}) })
	})
}
