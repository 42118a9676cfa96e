package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppConfig(t *testing.T) {
	t.Parallel()

	t.Run("partial config keeps defaults", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "app.json", `{"base_url": "https://road.example.com", "interval_ms": 500}`)

		cfg, err := LoadAppConfig(path)
		require.NoError(t, err)

		assert.Equal(t, "https://road.example.com", cfg.GetBaseURL())
		assert.Equal(t, 500*time.Millisecond, cfg.GetInterval())
		assert.Equal(t, 3, cfg.GetMaxRetries(), "unset fields fall back to defaults")
		assert.Equal(t, 2*time.Second, cfg.GetRetryDelay())
		assert.Equal(t, 5*time.Second, cfg.GetWarningTTL())
		assert.True(t, cfg.GetEnableRetry())
	})

	t.Run("full config overrides everything", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "app.json", `{
			"base_url": "https://road.example.com",
			"request_timeout_ms": 3000,
			"interval_ms": 2000,
			"enable_retry": false,
			"max_retries": 5,
			"retry_delay_ms": 100,
			"warning_ttl_ms": 8000,
			"nearby_radius_km": 2.5,
			"identity_db_path": "/var/lib/telemetry/id.db"
		}`)

		cfg, err := LoadAppConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 3*time.Second, cfg.GetRequestTimeout())
		assert.Equal(t, 2*time.Second, cfg.GetInterval())
		assert.False(t, cfg.GetEnableRetry())
		assert.Equal(t, 5, cfg.GetMaxRetries())
		assert.Equal(t, 100*time.Millisecond, cfg.GetRetryDelay())
		assert.Equal(t, 8*time.Second, cfg.GetWarningTTL())
		assert.Equal(t, 2.5, cfg.GetNearbyRadiusKm())
		assert.Equal(t, "/var/lib/telemetry/id.db", cfg.GetIdentityDBPath())
	})

	t.Run("non-json extension rejected", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "app.yaml", `{}`)
		_, err := LoadAppConfig(path)
		assert.ErrorContains(t, err, ".json extension")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadAppConfig(filepath.Join(t.TempDir(), "missing.json"))
		assert.ErrorContains(t, err, "failed to stat")
	})

	t.Run("malformed JSON", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "app.json", `{"interval_ms": `)
		_, err := LoadAppConfig(path)
		assert.ErrorContains(t, err, "parse config JSON")
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		t.Parallel()
		cases := map[string]string{
			"zero interval":    `{"interval_ms": 0}`,
			"zero retries":     `{"max_retries": 0}`,
			"negative delay":   `{"retry_delay_ms": -1}`,
			"zero warning ttl": `{"warning_ttl_ms": 0}`,
			"empty base url":   `{"base_url": ""}`,
			"negative radius":  `{"nearby_radius_km": -1}`,
			"zero timeout":     `{"request_timeout_ms": 0}`,
		}
		for name, body := range cases {
			body := body
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				path := writeConfig(t, "app.json", body)
				_, err := LoadAppConfig(path)
				assert.ErrorContains(t, err, "invalid configuration")
			})
		}
	})
}

func TestDefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	cfg := EmptyAppConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:8080", cfg.GetBaseURL())
	assert.Equal(t, time.Second, cfg.GetInterval())
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 5.0, cfg.GetNearbyRadiusKm())
	assert.Equal(t, "telemetry.db", cfg.GetIdentityDBPath())
}
