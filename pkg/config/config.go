// Package config loads and validates the gateway's static configuration:
// gateway identity, on-disk cache, sync pipeline, replication, the MS
// client's view-cache store, and ambient concerns (logging, telemetry,
// metrics, the operator HTTP surface).
//
// Dynamic state (volume membership, gateway certificates, file metadata)
// lives on the MS and is never read from this file; it only configures how
// to reach the MS.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/syndicate-project/gateway/internal/bytesize"
)

// Config is the gateway's complete static configuration.
//
// Configuration sources, highest precedence first:
//  1. CLI flags
//  2. Environment variables (SYNDICATE_*)
//  3. Configuration file (YAML)
//  4. Built-in defaults
type Config struct {
	// Identity configures this gateway's registration with the MS.
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout bounds graceful shutdown: draining the sync pipeline,
	// flushing the cache, and closing the MS client.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Cache configures the on-disk block cache.
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Downloader configures the concurrent block/manifest downloader.
	Downloader DownloaderConfig `mapstructure:"downloader" yaml:"downloader"`

	// Sync configures the write/sync pipeline.
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Replication configures the replica client and vacuumer.
	Replication ReplicationConfig `mapstructure:"replication" yaml:"replication"`

	// ViewStore configures the MS client's local persisted view cache.
	ViewStore ViewStoreConfig `mapstructure:"view_store" yaml:"view_store"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// HTTPAPI contains the operator-facing HTTP surface configuration.
	HTTPAPI HTTPAPIConfig `mapstructure:"httpapi" yaml:"httpapi"`
}

// IdentityConfig configures how this process registers and authenticates
// itself as a gateway with the MS.
type IdentityConfig struct {
	// GatewayType is one of "UG", "RG", "AG".
	GatewayType string `mapstructure:"gateway_type" validate:"required,oneof=UG RG AG" yaml:"gateway_type"`

	// GatewayID is the numeric gateway ID assigned by the MS at
	// registration time (out-of-band; not discoverable from this file
	// alone).
	GatewayID uint64 `mapstructure:"gateway_id" validate:"required" yaml:"gateway_id"`

	// GatewayName is the human-readable gateway name registered with the MS.
	GatewayName string `mapstructure:"gateway_name" validate:"required" yaml:"gateway_name"`

	// VolumeID is the numeric volume ID this gateway serves, assigned at
	// volume creation time.
	VolumeID uint64 `mapstructure:"volume_id" validate:"required" yaml:"volume_id"`

	// VolumeName is the volume this gateway serves.
	VolumeName string `mapstructure:"volume_name" validate:"required" yaml:"volume_name"`

	// BlockSize is the volume's fixed block size in bytes, mirrored from
	// the volume certificate so the sync pipeline and cache can be
	// constructed before the first view load completes.
	BlockSize uint32 `mapstructure:"block_size" validate:"required,gt=0" yaml:"block_size"`

	// VolumePublicKeyFile is the volume owner's RSA public key (PEM),
	// used to verify the volume certificate and root manifest signatures.
	VolumePublicKeyFile string `mapstructure:"volume_public_key_file" validate:"required" yaml:"volume_public_key_file"`

	// MSURL is the base URL of the MS (metadata service).
	MSURL string `mapstructure:"ms_url" validate:"required,url" yaml:"ms_url"`

	// SessionPasswordFile points at a file containing the session password
	// issued by the MS out-of-band. Never stored inline in the config file.
	SessionPasswordFile string `mapstructure:"session_password_file" validate:"required" yaml:"session_password_file"`

	// PrivateKeyFile is this gateway's RSA private key (PEM, PKCS#1 or
	// PKCS#8), used to sign outgoing ms_updates and WriteMsg messages.
	PrivateKeyFile string `mapstructure:"private_key_file" validate:"required" yaml:"private_key_file"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry tracing and continuous profiling.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing of sync pipeline phases
	// is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) OTLP connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the /metrics endpoint
	// are active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is not read by the gateway: when Enabled, /metrics is mounted on
	// the operator HTTP API router and served on HTTPAPI.Port.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// HTTPAPIConfig configures the operator-facing HTTP surface
// (/healthz, /stats, /schema).
type HTTPAPIConfig struct {
	// Enabled controls whether the operator HTTP API is served.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP listen port.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// CacheConfig specifies the on-disk block cache.
type CacheConfig struct {
	// Path is the directory holding cached block files and the badger LRU
	// index. Required.
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// SoftLimit is the size at which background eviction starts trying to
	// make room. Supports human-readable sizes: "1GB", "512MB", "10Gi".
	SoftLimit bytesize.ByteSize `mapstructure:"soft_limit" yaml:"soft_limit,omitempty"`

	// HardLimit is the size at which writers block until eviction frees
	// space. Must be >= SoftLimit.
	HardLimit bytesize.ByteSize `mapstructure:"hard_limit" yaml:"hard_limit,omitempty"`
}

// DownloaderConfig specifies the concurrent block/manifest downloader.
type DownloaderConfig struct {
	// MaxConcurrentTransfers bounds how many block/manifest downloads run
	// at once, mirroring CURL-multi's concurrency cap.
	MaxConcurrentTransfers int `mapstructure:"max_concurrent_transfers" validate:"omitempty,min=1" yaml:"max_concurrent_transfers"`

	// RequestTimeout bounds a single block/manifest HTTP request.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// ManifestCacheEntries bounds the in-memory parsed-manifest cache size.
	ManifestCacheEntries int `mapstructure:"manifest_cache_entries" yaml:"manifest_cache_entries"`
}

// SyncConfig specifies the write/sync pipeline.
type SyncConfig struct {
	// Workers is the number of goroutines draining the metadata-sync queue.
	Workers int `mapstructure:"workers" validate:"omitempty,min=1" yaml:"workers"`

	// GCInterval is how often background garbage-block collection
	// (phase 5) runs for files with pending garbage_blocks.
	GCInterval time.Duration `mapstructure:"gc_interval" yaml:"gc_interval"`
}

// ReplicationConfig specifies the replica client and vacuumer.
type ReplicationConfig struct {
	// QueueSize bounds the replica request queue.
	QueueSize int `mapstructure:"queue_size" validate:"omitempty,min=1" yaml:"queue_size"`

	// Workers is the number of concurrent replica-request workers.
	Workers int `mapstructure:"workers" validate:"omitempty,min=1" yaml:"workers"`

	// VacuumInterval is how often the vacuumer polls the MS for this
	// gateway's pending vacuum log on top of reacting to live completions.
	VacuumInterval time.Duration `mapstructure:"vacuum_interval" yaml:"vacuum_interval"`

	// S3 configures the S3-compatible object-storage RG transport.
	S3 S3ReplicaConfig `mapstructure:"s3" yaml:"s3"`
}

// S3ReplicaConfig configures an S3-compatible RG transport.
type S3ReplicaConfig struct {
	// Enabled controls whether the S3 RG transport is registered.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Bucket is the destination bucket for block and manifest replicas.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region (or compatible endpoint's region).
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the default AWS endpoint, for S3-compatible
	// services (MinIO, Ceph RGW, etc). Empty uses the AWS default resolver.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// Prefix is prepended to every object key written by this gateway.
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`
}

// ViewStoreConfig configures the MS client's persisted view cache
// (volume metadata and gateway certificates), so a restart doesn't need a
// full reload before serving reads.
type ViewStoreConfig struct {
	// Driver selects the GORM backend: "sqlite" (default, pure-Go, single
	// process) or "postgres" (shared across a gateway fleet).
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres" yaml:"driver"`

	// DSN is the data source name. For sqlite, a file path (or ":memory:").
	// For postgres, a standard libpq connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// MigrationsPath points at the golang-migrate migration directory
	// (file://... URL), empty uses the embedded default migrations.
	MigrationsPath string `mapstructure:"migrations_path" yaml:"migrations_path,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  syndicate-gateway init\n\n"+
				"Or specify a custom config file:\n"+
				"  syndicate-gateway start --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SYNDICATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "syndicate-gateway")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "syndicate-gateway")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
