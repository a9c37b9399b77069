// Copyright 2024-2026 Aiku AI

package aggregator

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// FacebookConfig holds the Facebook Graph endpoints. The base URL is
// overridable so tests can point the service at a fake server.
type FacebookConfig struct {
	GraphURL string `yaml:"graph_url"`
}

// TwitterConfig holds the Twitter REST and search endpoints.
type TwitterConfig struct {
	APIURL    string `yaml:"api_url"`
	SearchURL string `yaml:"search_url"`
}

// Config holds the aggregation engine configuration.
type Config struct {
	DatabasePath string `yaml:"database_path"`

	// UTCOffsetHours is the site's configured offset from UTC, applied to
	// service-reported creation times for the localized comment date.
	UTCOffsetHours float64 `yaml:"utc_offset_hours"`

	// CommentsNotify enables post-author notifications for approved
	// aggregated comments.
	CommentsNotify bool `yaml:"comments_notify"`

	// ServerIP is recorded as the author IP on aggregated comments.
	ServerIP string `yaml:"server_ip"`

	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds"`

	// LikePageLimit bounds the like/retweet page-walk per remote item.
	LikePageLimit int `yaml:"like_page_limit"`

	AggregationIntervalSeconds int `yaml:"aggregation_interval_seconds"`

	// AggregationWindowHours is how long after publication a post keeps
	// being re-aggregated.
	AggregationWindowHours int `yaml:"aggregation_window_hours"`

	Facebook FacebookConfig `yaml:"facebook"`
	Twitter  TwitterConfig  `yaml:"twitter"`

	utcOffset time.Duration `yaml:"-"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess applies defaults and derives computed fields. Call after
// unmarshaling and before use.
func (c *Config) PostProcess() error {
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = 10
	}
	if c.LikePageLimit <= 0 {
		c.LikePageLimit = 50
	}
	if c.AggregationIntervalSeconds <= 0 {
		c.AggregationIntervalSeconds = 300
	}
	if c.AggregationWindowHours <= 0 {
		c.AggregationWindowHours = 24
	}
	if c.Facebook.GraphURL == "" {
		c.Facebook.GraphURL = "https://graph.facebook.com"
	}
	if c.Twitter.APIURL == "" {
		c.Twitter.APIURL = "https://api.twitter.com/1"
	}
	if c.Twitter.SearchURL == "" {
		c.Twitter.SearchURL = "https://search.twitter.com"
	}
	if c.UTCOffsetHours < -12 || c.UTCOffsetHours > 14 {
		return fmt.Errorf("utc_offset_hours out of range: %v", c.UTCOffsetHours)
	}
	c.utcOffset = time.Duration(c.UTCOffsetHours * float64(time.Hour))
	return nil
}

// UTCOffset returns the site's offset from UTC as a duration.
func (c *Config) UTCOffset() time.Duration {
	return c.utcOffset
}

// HTTPTimeout returns the per-call transport timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// AggregationInterval returns the scheduler tick interval.
func (c *Config) AggregationInterval() time.Duration {
	return time.Duration(c.AggregationIntervalSeconds) * time.Second
}

// AggregationWindow returns how long after publication a post stays
// eligible for re-aggregation.
func (c *Config) AggregationWindow() time.Duration {
	return time.Duration(c.AggregationWindowHours) * time.Hour
}

// LoadConfig reads and post-processes a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("failed to post-process config: %w", err)
	}
	return &cfg, nil
}
