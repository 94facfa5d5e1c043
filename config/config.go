package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration inconsistencies are fatal before any listing begins.
var (
	ErrNoSource        = errors.New("no source configured: set source.path or source.bucket")
	ErrAmbiguousSource = errors.New("both source.path and source.bucket configured")
	ErrNoTarget        = errors.New("no target configured: set target.bucket")
)

// Config is the complete blobsync configuration, read from an optional YAML
// file and overridable through BLOBSYNC_* environment variables.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Target   TargetConfig   `yaml:"target"`
	AWS      AWSConfig      `yaml:"aws"`
	Sync     SyncConfig     `yaml:"sync"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// SourceConfig names what gets mirrored: a local directory tree, or a source
// bucket. Exactly one of Path and Bucket must be set.
type SourceConfig struct {
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"` // key prefix within the source bucket
}

type TargetConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"` // key prefix within the target bucket
}

type AWSConfig struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // optional, for MinIO-style stores
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// SyncConfig carries the per-run policy.
type SyncConfig struct {
	Prefix          string `yaml:"prefix"`
	SkipCopy        bool   `yaml:"skip_copy"`
	SkipUpdates     bool   `yaml:"skip_updates"`
	SkipDelete      bool   `yaml:"skip_delete"`
	MetadataURLBase string `yaml:"metadata_url_base"`
	Concurrency     int    `yaml:"concurrency"`
}

// ScheduleConfig configures repeated runs. Either a weekday/time-of-day pair
// or a fixed interval; empty means run once and exit.
type ScheduleConfig struct {
	Weekday string `yaml:"weekday"` // e.g. "Sunday", optional
	At      string `yaml:"at"`      // "15:04" local time
	Every   string `yaml:"every"`   // e.g. "6h", used when At is empty
}

// Interval parses the Every field. Zero when unset.
func (s ScheduleConfig) Interval() (time.Duration, error) {
	if s.Every == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Every)
	if err != nil {
		return 0, fmt.Errorf("schedule.every: %w", err)
	}
	return d, nil
}

// Enabled reports whether any repeat schedule is configured.
func (s ScheduleConfig) Enabled() bool {
	return s.At != "" || s.Every != ""
}

// Load reads the YAML file when path is non-empty, applies environment
// overrides, and validates. An empty path configures purely from the
// environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(os.ExpandEnv(path))
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Source.Path, "BLOBSYNC_SOURCE_PATH")
	setString(&c.Source.Bucket, "BLOBSYNC_SOURCE_BUCKET")
	setString(&c.Source.Prefix, "BLOBSYNC_SOURCE_PREFIX")
	setString(&c.Target.Bucket, "BLOBSYNC_TARGET_BUCKET")
	setString(&c.Target.Prefix, "BLOBSYNC_TARGET_PREFIX")
	setString(&c.AWS.Region, "BLOBSYNC_AWS_REGION")
	setString(&c.AWS.Endpoint, "BLOBSYNC_AWS_ENDPOINT")
	setString(&c.AWS.AccessKey, "BLOBSYNC_AWS_ACCESS_KEY")
	setString(&c.AWS.SecretKey, "BLOBSYNC_AWS_SECRET_KEY")
	setString(&c.Sync.Prefix, "BLOBSYNC_PREFIX")
	setString(&c.Sync.MetadataURLBase, "BLOBSYNC_METADATA_URL_BASE")
	setBool(&c.Sync.SkipCopy, "BLOBSYNC_SKIP_COPY")
	setBool(&c.Sync.SkipUpdates, "BLOBSYNC_SKIP_UPDATES")
	setBool(&c.Sync.SkipDelete, "BLOBSYNC_SKIP_DELETE")
	setString(&c.Schedule.Weekday, "BLOBSYNC_SCHEDULE_WEEKDAY")
	setString(&c.Schedule.At, "BLOBSYNC_SCHEDULE_AT")
	setString(&c.Schedule.Every, "BLOBSYNC_SCHEDULE_EVERY")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate rejects configurations the orchestrator cannot act on.
func (c *Config) Validate() error {
	if c.Source.Path == "" && c.Source.Bucket == "" {
		return ErrNoSource
	}
	if c.Source.Path != "" && c.Source.Bucket != "" {
		return ErrAmbiguousSource
	}
	if c.Target.Bucket == "" {
		return ErrNoTarget
	}
	if _, err := c.Schedule.Interval(); err != nil {
		return err
	}
	if c.Sync.Concurrency < 0 {
		return fmt.Errorf("sync.concurrency must be non-negative, got %d", c.Sync.Concurrency)
	}
	return nil
}
