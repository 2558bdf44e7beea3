package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/stripefs/pkg/layout"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyClientDefaults(&cfg.Client)
	applyObjectsDefaults(&cfg.Objects)
	applyLayoutDefaults(&cfg.Layout, cfg.Objects.Pool)
	applyMetadataDefaults(&cfg.Metadata)
	applyMetricsDefaults(&cfg.Metrics)
	applyGCDefaults(&cfg.GC)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.ID == "" {
		cfg.ID = "admin"
	}
	if cfg.Root == "" {
		cfg.Root = "/"
	}
	if cfg.MountTimeout == 0 {
		cfg.MountTimeout = 30 * time.Second
	}
}

// applyLayoutDefaults fills unset layout fields from layout.DefaultLayout.
// The pool defaults to the configured object pool.
func applyLayoutDefaults(cfg *layout.FileLayout, pool string) {
	def := layout.DefaultLayout()
	if cfg.StripeUnit == 0 {
		cfg.StripeUnit = def.StripeUnit
	}
	if cfg.StripeCount == 0 {
		cfg.StripeCount = def.StripeCount
	}
	if cfg.ObjectSize == 0 {
		cfg.ObjectSize = def.ObjectSize
	}
	if cfg.Pool == "" {
		cfg.Pool = pool
	}
}

func applyObjectsDefaults(cfg *ObjectsConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Pool == "" {
		cfg.Pool = layout.DefaultPool
	}
	if cfg.Replication == 0 {
		cfg.Replication = 1
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 8
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	// Defaults for all store types (for config file generation)
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = "/tmp/stripefs-objects"
	}
	if _, ok := cfg.Memory["max_size"]; !ok {
		cfg.Memory["max_size"] = uint64(0)
	}
}

func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/stripefs-metadata"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyGCDefaults(cfg *GCConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// SetViperDefaults registers the scalar defaults with v so that
// environment overrides are seen by Unmarshal.
func SetViperDefaults(v *viper.Viper) {
	def := GetDefaultConfig()

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.output", def.Logging.Output)

	v.SetDefault("client.id", def.Client.ID)
	v.SetDefault("client.root", def.Client.Root)
	v.SetDefault("client.uid", def.Client.UID)
	v.SetDefault("client.gid", def.Client.GID)
	v.SetDefault("client.mount_timeout", def.Client.MountTimeout)

	v.SetDefault("layout.stripe_unit", def.Layout.StripeUnit)
	v.SetDefault("layout.stripe_count", def.Layout.StripeCount)
	v.SetDefault("layout.object_size", def.Layout.ObjectSize)
	v.SetDefault("layout.pool", "")

	v.SetDefault("metadata.type", def.Metadata.Type)

	v.SetDefault("objects.type", def.Objects.Type)
	v.SetDefault("objects.pool", def.Objects.Pool)
	v.SetDefault("objects.replication", def.Objects.Replication)
	v.SetDefault("objects.concurrency", def.Objects.Concurrency)
	v.SetDefault("objects.ops_per_second", def.Objects.OpsPerSecond)
	v.SetDefault("objects.ops_burst", def.Objects.OpsBurst)

	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.port", def.Metrics.Port)

	v.SetDefault("gc.enabled", def.GC.Enabled)
	v.SetDefault("gc.interval", def.GC.Interval)
	v.SetDefault("gc.batch_size", def.GC.BatchSize)
	v.SetDefault("gc.dry_run", def.GC.DryRun)
}
