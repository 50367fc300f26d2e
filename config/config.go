// Package config loads and validates the collector configuration
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/researchaccelerator-hub/ytstats/common"
	"github.com/researchaccelerator-hub/ytstats/model/youtube"
)

// Configuration keys. Each can come from the config file, a flag or the
// environment (YTSTATS_ prefix, dots replaced by underscores).
const (
	KeyAPIKey         = "api_key"
	KeyChannels       = "channels"
	KeyChannelsFile   = "channels_file"
	KeyDataDir        = "data_dir"
	KeyOverridesFile  = "overrides_file"
	KeyChannelWorkers = "channel_workers"
	KeyShortWorkers   = "short_workers"
	KeyProbeTimeout   = "probe_timeout"
	KeyProbeRPS       = "probe_rps"
	KeyAPITimeout     = "api_timeout"
	KeyUTCOffset      = "utc_offset_hours"
	KeyLockFile       = "lock_file"
	KeyShortsBaseURL  = "shorts_base_url"
	KeyAPIEndpoint    = "api_endpoint"
	KeyMetricsFile    = "metrics_file"
	KeyPublishBucket  = "publish.bucket"
	KeyPublishPrefix  = "publish.prefix"
	KeyPublishRegion  = "publish.region"

	envPrefix = "YTSTATS"
)

// ErrNoAPIKey is returned when no YouTube Data API key was configured
var ErrNoAPIKey = errors.New("YOUTUBE_API_KEY is not set")

// Config holds everything a collection run needs
type Config struct {
	APIKey   string
	Channels []youtube.ChannelConfig

	DataDir       string
	OverridesFile string // relative paths are resolved against DataDir
	LockFile      string // empty means <DataDir>/.ytstats.lock

	ChannelWorkers int           // channels ingested in parallel
	ShortWorkers   int           // short-form probes in flight per channel
	ProbeTimeout   time.Duration // per short-form probe
	ProbeRPS       float64       // short-form probe rate cap, 0 for none
	APITimeout     time.Duration // per Data API call
	UTCOffsetHours int           // zone that decides the calendar day of a run
	ShortsBaseURL  string
	APIEndpoint    string // Data API base URL override, empty for the public endpoint

	MetricsFile string // Prometheus textfile output, disabled when empty
	Publish     PublishConfig
}

// PublishConfig controls the optional upload of the documents to S3
type PublishConfig struct {
	Bucket string
	Prefix string
	Region string
}

// Enabled reports whether publication is configured
func (p PublishConfig) Enabled() bool {
	return p.Bucket != ""
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:        ".",
		OverridesFile:  "video_type_overrides.json",
		ChannelWorkers: 3,
		ShortWorkers:   10,
		ProbeTimeout:   5 * time.Second,
		APITimeout:     30 * time.Second,
		UTCOffsetHours: 9,
		ShortsBaseURL:  "https://www.youtube.com",
	}
}

// SetDefaults registers the defaults with v so flags and files layer over them
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault(KeyDataDir, d.DataDir)
	v.SetDefault(KeyOverridesFile, d.OverridesFile)
	v.SetDefault(KeyChannelWorkers, d.ChannelWorkers)
	v.SetDefault(KeyShortWorkers, d.ShortWorkers)
	v.SetDefault(KeyProbeTimeout, d.ProbeTimeout)
	v.SetDefault(KeyAPITimeout, d.APITimeout)
	v.SetDefault(KeyUTCOffset, d.UTCOffsetHours)
	v.SetDefault(KeyShortsBaseURL, d.ShortsBaseURL)
}

// Load reads the configuration from v. When configFile is set it is read first;
// environment variables and bound flags take precedence over it.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// these two are also read without the prefix
	if err := v.BindEnv(KeyAPIKey, "YOUTUBE_API_KEY", envPrefix+"_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api key env: %w", err)
	}
	if err := v.BindEnv(KeyChannels, "CHANNELS", envPrefix+"_CHANNELS"); err != nil {
		return nil, fmt.Errorf("bind channels env: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		log.Debug().Str("config_file", v.ConfigFileUsed()).Msg("Loaded config file")
	}

	cfg := &Config{
		APIKey:         strings.TrimSpace(v.GetString(KeyAPIKey)),
		DataDir:        v.GetString(KeyDataDir),
		OverridesFile:  v.GetString(KeyOverridesFile),
		LockFile:       v.GetString(KeyLockFile),
		ChannelWorkers: v.GetInt(KeyChannelWorkers),
		ShortWorkers:   v.GetInt(KeyShortWorkers),
		ProbeTimeout:   v.GetDuration(KeyProbeTimeout),
		ProbeRPS:       v.GetFloat64(KeyProbeRPS),
		APITimeout:     v.GetDuration(KeyAPITimeout),
		UTCOffsetHours: v.GetInt(KeyUTCOffset),
		ShortsBaseURL:  v.GetString(KeyShortsBaseURL),
		APIEndpoint:    v.GetString(KeyAPIEndpoint),
		MetricsFile:    v.GetString(KeyMetricsFile),
		Publish: PublishConfig{
			Bucket: v.GetString(KeyPublishBucket),
			Prefix: v.GetString(KeyPublishPrefix),
			Region: v.GetString(KeyPublishRegion),
		},
	}

	channels, err := loadChannels(v)
	if err != nil {
		return nil, err
	}
	cfg.Channels = channels

	return cfg, nil
}

// loadChannels accepts the roster as a JSON string (environment), a list (config
// file) or, failing both, a JSON document referenced by channels_file.
func loadChannels(v *viper.Viper) ([]youtube.ChannelConfig, error) {
	switch raw := v.Get(KeyChannels).(type) {
	case nil:
	case string:
		if strings.TrimSpace(raw) != "" {
			return ParseChannels([]byte(raw))
		}
	default:
		var channels []youtube.ChannelConfig
		if err := v.UnmarshalKey(KeyChannels, &channels); err != nil {
			return nil, fmt.Errorf("invalid channels list: %w", err)
		}
		return channels, nil
	}

	if source := v.GetString(KeyChannelsFile); source != "" {
		data, err := common.ReadSource(source)
		if err != nil {
			return nil, fmt.Errorf("failed to load channels from %s: %w", source, err)
		}
		return ParseChannels(data)
	}
	return nil, nil
}

// ParseChannels decodes a JSON array of {"name", "url"} objects
func ParseChannels(data []byte) ([]youtube.ChannelConfig, error) {
	var channels []youtube.ChannelConfig
	if err := json.Unmarshal(data, &channels); err != nil {
		return nil, fmt.Errorf("CHANNELS is not a valid JSON list: %w", err)
	}
	return channels, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("no channels configured")
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if strings.TrimSpace(ch.Name) == "" {
			return fmt.Errorf("channel %d has no name", i)
		}
		if strings.TrimSpace(ch.URL) == "" {
			return fmt.Errorf("channel %q has no url", ch.Name)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channel %q is configured more than once", ch.Name)
		}
		seen[ch.Name] = true
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}

	if c.ChannelWorkers < 1 {
		return fmt.Errorf("channel_workers must be at least 1")
	}

	if c.ShortWorkers < 1 {
		return fmt.Errorf("short_workers must be at least 1")
	}

	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}

	if c.ProbeRPS < 0 {
		return fmt.Errorf("probe_rps cannot be negative")
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be positive")
	}

	if c.UTCOffsetHours < -12 || c.UTCOffsetHours > 14 {
		return fmt.Errorf("utc_offset_hours %d is out of range", c.UTCOffsetHours)
	}

	if c.ShortsBaseURL == "" {
		return fmt.Errorf("shorts_base_url cannot be empty")
	}

	return nil
}

// OverridesPath is the override table location, resolved against DataDir
func (c *Config) OverridesPath() string {
	if filepath.IsAbs(c.OverridesFile) {
		return c.OverridesFile
	}
	return filepath.Join(c.DataDir, c.OverridesFile)
}

// LockPath is the run lock location
func (c *Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return filepath.Join(c.DataDir, ".ytstats.lock")
}
