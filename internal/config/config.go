// Package config loads the sync core's settings from an optional file,
// CONTENTSYNC_* environment variables and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/kimhsiao/memonexus/contentsync/internal/crypto"
	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
	"github.com/kimhsiao/memonexus/contentsync/internal/logging"
	syncpkg "github.com/kimhsiao/memonexus/contentsync/internal/sync"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/scheduler"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/transport"
)

// EnvPrefix prefixes every environment override, e.g. CONTENTSYNC_TRANSPORT_BUCKET.
const EnvPrefix = "CONTENTSYNC"

// Config is the root configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" validate:"required"`
	Log       LogConfig       `mapstructure:"log"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Transport TransportConfig `mapstructure:"transport"`
	Server    ServerConfig    `mapstructure:"server"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// SyncConfig configures the queue and executor.
type SyncConfig struct {
	Durable         bool          `mapstructure:"durable"`
	MaxQueueSize    int           `mapstructure:"max_queue_size" validate:"min=1"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"min=0"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout" validate:"gt=0"`
	MaxPayloadBytes int           `mapstructure:"max_payload_bytes"`
}

type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	SyncInterval time.Duration `mapstructure:"sync_interval" validate:"gt=0"`
	PassTimeout  time.Duration `mapstructure:"pass_timeout" validate:"gt=0"`
}

// TransportConfig selects and authenticates the object store.
type TransportConfig struct {
	Provider       string  `mapstructure:"provider" validate:"oneof=aws minio r2"`
	Bucket         string  `mapstructure:"bucket" validate:"required"`
	Region         string  `mapstructure:"region"`
	Endpoint       string  `mapstructure:"endpoint" validate:"required_if=Provider minio"`
	AccountID      string  `mapstructure:"account_id" validate:"required_if=Provider r2"`
	AccessKey      string  `mapstructure:"access_key" validate:"required_with=SecretKey"`
	SecretKey      string  `mapstructure:"secret_key" validate:"required_with=AccessKey"`
	MachineID      string  `mapstructure:"machine_id"` // key for sealed credentials; empty uses this machine's ID
	UseSSL         bool    `mapstructure:"use_ssl"`
	ForcePathStyle bool    `mapstructure:"force_path_style"`
	RatePerSecond  float64 `mapstructure:"rate_per_second" validate:"min=0"`
	Burst          int     `mapstructure:"burst" validate:"min=1"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

var validate = validator.New()

// SetDefaults registers every key with its default so environment overrides
// apply even when no config file is present.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log.level", "info")

	v.SetDefault("sync.durable", true)
	v.SetDefault("sync.max_queue_size", 1000)
	v.SetDefault("sync.max_attempts", 0)
	v.SetDefault("sync.attempt_timeout", syncpkg.DefaultAttemptTimeout)
	v.SetDefault("sync.max_payload_bytes", syncpkg.DefaultMaxPayloadBytes)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sync_interval", time.Minute)
	v.SetDefault("scheduler.pass_timeout", scheduler.DefaultPassTimeout)

	v.SetDefault("transport.provider", string(transport.ProviderAWS))
	v.SetDefault("transport.bucket", "")
	v.SetDefault("transport.region", "")
	v.SetDefault("transport.endpoint", "")
	v.SetDefault("transport.account_id", "")
	v.SetDefault("transport.access_key", "")
	v.SetDefault("transport.secret_key", "")
	v.SetDefault("transport.machine_id", "")
	v.SetDefault("transport.use_ssl", true)
	v.SetDefault("transport.force_path_style", false)
	v.SetDefault("transport.rate_per_second", 0.0)
	v.SetDefault("transport.burst", 1)

	v.SetDefault("server.addr", "localhost:8090")
}

// Load reads the config file at path (skipped when empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, fmt.Sprintf("failed to read config file %s", path), err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.openSecrets(); err != nil {
		return nil, err
	}

	logging.Debug("Configuration loaded", map[string]interface{}{
		"config_file": v.ConfigFileUsed(),
		"provider":    cfg.Transport.Provider,
		"bucket":      cfg.Transport.Bucket,
		"durable":     cfg.Sync.Durable,
	})
	return &cfg, nil
}

// Validate checks field constraints and returns a CONFIG_INVALID error
// naming every offending key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "invalid configuration", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return apperrors.Wrap(apperrors.ErrConfigInvalid,
		"invalid configuration: "+strings.Join(fields, ", "), err)
}

// openSecrets replaces sealed credentials with their plaintext.
func (c *Config) openSecrets() error {
	for _, field := range []*string{&c.Transport.AccessKey, &c.Transport.SecretKey} {
		plain, err := crypto.Open(*field, c.Transport.MachineID)
		if err != nil {
			return err
		}
		*field = plain
	}
	return nil
}

// LogLevel returns the configured logging level.
func (c *Config) LogLevel() logging.LogLevel {
	return logging.ParseLevel(c.Log.Level)
}

// ServiceConfig maps the sync section onto the service configuration.
func (c *Config) ServiceConfig() syncpkg.Config {
	return syncpkg.Config{
		Executor: syncpkg.ExecutorConfig{
			AttemptTimeout: c.Sync.AttemptTimeout,
			MaxAttempts:    c.Sync.MaxAttempts,
		},
		MaxPayloadBytes: c.Sync.MaxPayloadBytes,
	}
}

// SchedulerConfig maps the scheduler section.
func (c *Config) SchedulerConfig() *scheduler.SchedulerConfig {
	return &scheduler.SchedulerConfig{
		SyncInterval: c.Scheduler.SyncInterval,
		PassTimeout:  c.Scheduler.PassTimeout,
	}
}

// S3Config maps the transport section onto the S3 transport configuration.
func (c *Config) S3Config() transport.S3Config {
	t := c.Transport
	return transport.S3Config{
		Provider:       transport.Provider(t.Provider),
		Bucket:         t.Bucket,
		Region:         t.Region,
		Endpoint:       t.Endpoint,
		AccountID:      t.AccountID,
		AccessKey:      t.AccessKey,
		SecretKey:      t.SecretKey,
		UseSSL:         t.UseSSL,
		ForcePathStyle: t.ForcePathStyle,
	}
}
