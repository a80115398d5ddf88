package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go2tv.app/castbutton/devices"
)

// Config is the on-disk settings file.
type Config struct {
	Discovery           string  `json:"discovery" mapstructure:"discovery"`
	QueryTimeoutMS      int     `json:"query_timeout_ms" mapstructure:"query_timeout_ms"`
	VolumeStep          float64 `json:"volume_step" mapstructure:"volume_step"`
	VolumeKeysPerSecond float64 `json:"volume_keys_per_second" mapstructure:"volume_keys_per_second"`
	LogFile             string  `json:"log_file" mapstructure:"log_file"`
	Debug               bool    `json:"debug" mapstructure:"debug"`
}

// Default returns the settings written when no file exists.
func Default() *Config {
	return &Config{
		Discovery:           string(devices.BrowserMDNS),
		QueryTimeoutMS:      int(devices.DefaultQueryTimeout / time.Millisecond),
		VolumeStep:          0.05,
		VolumeKeysPerSecond: 8,
	}
}

// GetAppConfig loads the settings at path, or at the per-user default
// location when path is empty. A missing file is created with defaults.
func GetAppConfig(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = appPath()
		if err != nil {
			return nil, fmt.Errorf("GetAppConfig: failed to access config path due to error: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				return nil, fmt.Errorf("GetAppConfig: failed to create default path due to error: %w", err)
			}

			conf := Default()
			if err := conf.SaveAppConfig(path); err != nil {
				return nil, fmt.Errorf("GetAppConfig: %w", err)
			}

			return conf, nil
		}

		return nil, fmt.Errorf("GetAppConfig: failed to open config due to error: %w", err)
	}

	conf, err := decode(b)
	if err != nil {
		return nil, fmt.Errorf("GetAppConfig: failed to decode config due to error: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("GetAppConfig: %w", err)
	}

	return conf, nil
}

// decode applies a settings document on top of the defaults. Values are
// weakly typed so hand edited files may quote numbers and booleans.
func decode(b []byte) (*Config, error) {
	raw := make(map[string]any)
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}

	conf := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           conf,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(raw); err != nil {
		return nil, err
	}

	return conf, nil
}

// Validate rejects settings the application cannot run with.
func (s *Config) Validate() error {
	switch devices.Browser(s.Discovery) {
	case devices.BrowserMDNS, devices.BrowserZeroconf:
	default:
		return fmt.Errorf("invalid discovery %q, want %q or %q", s.Discovery, devices.BrowserMDNS, devices.BrowserZeroconf)
	}

	if s.QueryTimeoutMS <= 0 {
		return fmt.Errorf("invalid query_timeout_ms %d", s.QueryTimeoutMS)
	}

	if s.VolumeStep <= 0 || s.VolumeStep > 1 {
		return fmt.Errorf("invalid volume_step %v, want a value in (0, 1]", s.VolumeStep)
	}

	if s.VolumeKeysPerSecond <= 0 {
		return fmt.Errorf("invalid volume_keys_per_second %v", s.VolumeKeysPerSecond)
	}

	return nil
}

// QueryTimeout is query_timeout_ms as a duration.
func (s *Config) QueryTimeout() time.Duration {
	return time.Duration(s.QueryTimeoutMS) * time.Millisecond
}

func appPath() (string, error) {
	oscfg, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("appPath: failed to get config file due to error: %w", err)
	}

	return filepath.Join(oscfg, "castbutton", "settings.json"), nil
}

// SaveAppConfig writes the settings to path, or to the default location
// when path is empty.
func (s *Config) SaveAppConfig(path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("SaveAppConfig: failed to marshal json due to error: %w", err)
	}

	if path == "" {
		path, err = appPath()
		if err != nil {
			return fmt.Errorf("SaveAppConfig: failed to access config path due to error: %w", err)
		}
	}

	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("SaveAppConfig: failed save config due to error: %w", err)
	}

	return nil
}
