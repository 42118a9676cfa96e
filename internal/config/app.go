// Package config loads the application configuration from a JSON file with
// partial-config semantics: omitted fields keep their defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AppConfig is the root configuration. All fields are optional; the Get*
// accessors supply defaults, so a partial JSON file is safe.
type AppConfig struct {
	// Backend
	BaseURL          *string `json:"base_url,omitempty"`
	RequestTimeoutMs *int    `json:"request_timeout_ms,omitempty"`

	// Reporting loop
	IntervalMs   *int  `json:"interval_ms,omitempty"`
	EnableRetry  *bool `json:"enable_retry,omitempty"`
	MaxRetries   *int  `json:"max_retries,omitempty"`
	RetryDelayMs *int  `json:"retry_delay_ms,omitempty"`

	// Warning display
	WarningTTLMs *int `json:"warning_ttl_ms,omitempty"`

	// Coverage queries
	NearbyRadiusKm *float64 `json:"nearby_radius_km,omitempty"`

	// Identity persistence
	IdentityDBPath *string `json:"identity_db_path,omitempty"`
}

// EmptyAppConfig returns an AppConfig with all fields unset.
func EmptyAppConfig() *AppConfig {
	return &AppConfig{}
}

// LoadAppConfig loads an AppConfig from a JSON file. The file must have a
// .json extension and stay under the max file size.
func LoadAppConfig(path string) (*AppConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAppConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the set fields carry usable values.
func (c *AppConfig) Validate() error {
	if c.BaseURL != nil && *c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty when set")
	}
	if c.IntervalMs != nil && *c.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms must be positive, got %d", *c.IntervalMs)
	}
	if c.MaxRetries != nil && *c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", *c.MaxRetries)
	}
	if c.RetryDelayMs != nil && *c.RetryDelayMs < 0 {
		return fmt.Errorf("retry_delay_ms must be non-negative, got %d", *c.RetryDelayMs)
	}
	if c.WarningTTLMs != nil && *c.WarningTTLMs <= 0 {
		return fmt.Errorf("warning_ttl_ms must be positive, got %d", *c.WarningTTLMs)
	}
	if c.RequestTimeoutMs != nil && *c.RequestTimeoutMs <= 0 {
		return fmt.Errorf("request_timeout_ms must be positive, got %d", *c.RequestTimeoutMs)
	}
	if c.NearbyRadiusKm != nil && *c.NearbyRadiusKm <= 0 {
		return fmt.Errorf("nearby_radius_km must be positive, got %f", *c.NearbyRadiusKm)
	}
	return nil
}

// GetBaseURL returns the backend base URL or the default.
func (c *AppConfig) GetBaseURL() string {
	if c.BaseURL == nil {
		return "http://localhost:8080"
	}
	return *c.BaseURL
}

// GetRequestTimeout returns the per-request HTTP timeout or the default.
func (c *AppConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeoutMs == nil {
		return 10 * time.Second
	}
	return time.Duration(*c.RequestTimeoutMs) * time.Millisecond
}

// GetInterval returns the reporting interval or the default.
func (c *AppConfig) GetInterval() time.Duration {
	if c.IntervalMs == nil {
		return time.Second
	}
	return time.Duration(*c.IntervalMs) * time.Millisecond
}

// GetEnableRetry returns the enable_retry value or the default.
func (c *AppConfig) GetEnableRetry() bool {
	if c.EnableRetry == nil {
		return true
	}
	return *c.EnableRetry
}

// GetMaxRetries returns the max_retries value or the default.
func (c *AppConfig) GetMaxRetries() int {
	if c.MaxRetries == nil {
		return 3
	}
	return *c.MaxRetries
}

// GetRetryDelay returns the pause between send attempts or the default.
func (c *AppConfig) GetRetryDelay() time.Duration {
	if c.RetryDelayMs == nil {
		return 2 * time.Second
	}
	return time.Duration(*c.RetryDelayMs) * time.Millisecond
}

// GetWarningTTL returns how long a warning stays shown or the default.
func (c *AppConfig) GetWarningTTL() time.Duration {
	if c.WarningTTLMs == nil {
		return 5 * time.Second
	}
	return time.Duration(*c.WarningTTLMs) * time.Millisecond
}

// GetNearbyRadiusKm returns the nearby-zone query radius or the default.
func (c *AppConfig) GetNearbyRadiusKm() float64 {
	if c.NearbyRadiusKm == nil {
		return 5.0
	}
	return *c.NearbyRadiusKm
}

// GetIdentityDBPath returns the identity database path or the default.
func (c *AppConfig) GetIdentityDBPath() string {
	if c.IdentityDBPath == nil {
		return "telemetry.db"
	}
	return *c.IdentityDBPath
}
