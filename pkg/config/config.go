package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/stripefs/pkg/layout"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "STRIPEFS"

// Config represents the complete StripeFS client configuration.
//
// This structure captures all configurable aspects of a mount:
//   - Logging configuration
//   - Client identity and mount root
//   - Default file layout for new files
//   - Metadata store selection and configuration (store-specific)
//   - Object pool selection, replication and configuration (store-specific)
//   - Metrics and garbage collection
//
// Configuration sources (in order of precedence):
//  1. Values set at runtime (Mount.ConfSet, CLI flags)
//  2. Environment variables (STRIPEFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The
// Config struct holds one option map per store type and only the map
// matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Client identifies the session and where it is rooted
	Client ClientConfig `mapstructure:"client" yaml:"client"`

	// Layout is the default layout given to new files
	Layout layout.FileLayout `mapstructure:"layout" yaml:"layout"`

	// Metadata specifies the metadata store type and type-specific configuration
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// Objects specifies the object pool and its replica stores
	Objects ObjectsConfig `mapstructure:"objects" yaml:"objects"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// GC controls the orphan object collector
	GC GCConfig `mapstructure:"gc" yaml:"gc"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ClientConfig identifies a client session.
type ClientConfig struct {
	// ID is the user identity of the session
	ID string `mapstructure:"id" yaml:"id" validate:"required"`

	// Root is the directory mounted when Mount is given no root
	Root string `mapstructure:"root" yaml:"root" validate:"required,startswith=/"`

	// UID and GID own the files and directories the client creates
	UID uint32 `mapstructure:"uid" yaml:"uid"`
	GID uint32 `mapstructure:"gid" yaml:"gid"`

	// MountTimeout bounds store initialization during Mount
	MountTimeout time.Duration `mapstructure:"mount_timeout" yaml:"mount_timeout" validate:"required,gt=0"`
}

// MetadataConfig specifies metadata store configuration.
type MetadataConfig struct {
	// Type specifies which metadata store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// ObjectsConfig specifies the object pool.
//
// The pool keeps Replication full copies of every object, one per
// replica store. Replica stores are derived from the type-specific map:
// filesystem replicas live in numbered subdirectories of path, S3
// replicas under numbered key prefixes.
type ObjectsConfig struct {
	// Type specifies which object store implementation backs each replica
	// Valid values: memory, filesystem, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory filesystem s3"`

	// Pool is the pool name files refer to in their layout
	Pool string `mapstructure:"pool" yaml:"pool" validate:"required"`

	// Replication is the number of replica stores
	Replication int `mapstructure:"replication" yaml:"replication" validate:"required,gte=1,lte=16"`

	// Concurrency bounds concurrent object operations per file operation
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" validate:"required,gte=1,lte=256"`

	// OpsPerSecond caps object operations per second (0 = unlimited)
	OpsPerSecond uint `mapstructure:"ops_per_second" yaml:"ops_per_second"`

	// OpsBurst is the burst allowed above OpsPerSecond (0 = OpsPerSecond)
	OpsBurst uint `mapstructure:"ops_burst" yaml:"ops_burst"`

	// Memory contains memory-specific configuration
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Filesystem contains filesystem-specific configuration
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// S3 contains S3-specific configuration
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	// Enabled turns on Prometheus collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the metrics endpoint
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,gt=0,lt=65536"`
}

// GCConfig controls orphan object collection.
type GCConfig struct {
	// Enabled starts the periodic collector on mount
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is the time between collection runs
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"required,gt=0"`

	// BatchSize is the number of objects removed per batch
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" validate:"required,gt=0"`

	// DryRun reports orphans without removing them
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := NewViper()

	if err := ReadConfigFile(v, configPath); err != nil {
		return nil, err
	}

	return FromViper(v)
}

// NewViper returns a viper instance wired for STRIPEFS_* environment
// overrides. Every known key is registered with its default so that
// environment variables apply even when no file sets the key.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetViperDefaults(v)
	return v
}

// ReadConfigFile reads configPath into v. An empty configPath searches the
// default location; a missing file is not an error.
func ReadConfigFile(v *viper.Viper, configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// FromViper decodes, defaults and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MergeConfig layers cfg into v. Values set with v.Set and environment
// overrides keep precedence over the merged values.
func MergeConfig(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	v.SetConfigType("yaml")
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "stripefs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "stripefs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
