package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/vaultbox"
	"github.com/sagarc03/vaultbox/database"
	vaultboxhttp "github.com/sagarc03/vaultbox/http"
	"github.com/sagarc03/vaultbox/jobs"
	"github.com/sagarc03/vaultbox/s3"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for vaultbox.
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`
	Service  ServiceConfig           `mapstructure:"service"`
	Database database.Config         `mapstructure:"database"`
	Storage  StorageConfig           `mapstructure:"storage"`
	Queue    QueueConfig             `mapstructure:"queue"`
	CORS     vaultboxhttp.CORSConfig `mapstructure:"cors"`
	Log      LogConfig               `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// ServiceConfig holds the file service settings.
type ServiceConfig struct {
	Bucket         string        `mapstructure:"bucket" validate:"required"`
	ChunkSize      int64         `mapstructure:"chunk_size" validate:"min=1"`
	MaxFileSize    int64         `mapstructure:"max_file_size" validate:"min=0"`
	ServeDeleted   bool          `mapstructure:"serve_deleted"`
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout" validate:"gt=0"`
}

// FileService converts the section to vaultbox.ServiceConfig.
func (c ServiceConfig) FileService() vaultbox.ServiceConfig {
	return vaultbox.ServiceConfig{
		Bucket:         c.Bucket,
		ChunkSize:      c.ChunkSize,
		MaxFileSize:    c.MaxFileSize,
		ServeDeleted:   c.ServeDeleted,
		CleanupTimeout: c.CleanupTimeout,
	}
}

// StorageConfig selects the object store.
type StorageConfig struct {
	Type string    `mapstructure:"type" validate:"required,oneof=filesystem s3"`
	Path string    `mapstructure:"path" validate:"required_if=Type filesystem"`
	S3   s3.Config `mapstructure:"s3"`
}

// QueueConfig selects the deferred job broker and tunes the worker.
type QueueConfig struct {
	Type          string        `mapstructure:"type" validate:"required,oneof=memory redis"`
	Addr          string        `mapstructure:"addr" validate:"required_if=Type redis"`
	Prefix        string        `mapstructure:"prefix"`
	Workers       int           `mapstructure:"workers" validate:"min=1"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"min=1"`
	MinBackoff    time.Duration `mapstructure:"min_backoff" validate:"gt=0"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff" validate:"gtefield=MinBackoff"`
	PollWait      time.Duration `mapstructure:"poll_wait" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	SweepLimit    int           `mapstructure:"sweep_limit" validate:"min=1"`
}

// Worker converts the section to jobs.WorkerConfig.
func (c QueueConfig) Worker() jobs.WorkerConfig {
	return jobs.WorkerConfig{
		Concurrency: c.Workers,
		MaxAttempts: c.MaxAttempts,
		MinBackoff:  c.MinBackoff,
		MaxBackoff:  c.MaxBackoff,
		PollWait:    c.PollWait,
	}
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	// Env selects the handler: dev writes colored text, prod writes JSON.
	Env string `mapstructure:"env" validate:"required,oneof=dev prod"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type":      "database.type",
	"db-dsn":       "database.dsn",
	"storage-type": "storage.type",
	"storage-path": "storage.path",
	"bucket":       "service.bucket",
	"queue-type":   "queue.type",
	"queue-addr":   "queue.addr",
	"port":         "server.port",
	"log-level":    "log.level",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		// Use custom mapping if it exists, otherwise use flag name as-is
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance. Every key needs a
// default so AutomaticEnv can find it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("service.bucket", vaultbox.DefaultBucket)
	v.SetDefault("service.chunk_size", vaultbox.DefaultChunkSize)
	v.SetDefault("service.max_file_size", vaultbox.DefaultMaxFileSize)
	v.SetDefault("service.serve_deleted", true)
	v.SetDefault("service.cleanup_timeout", vaultbox.DefaultCleanupTimeout)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "vaultbox.db")

	v.SetDefault("storage.type", "filesystem")
	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.s3.endpoint", "localhost:9000")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.create_bucket", false)

	v.SetDefault("queue.type", "memory")
	v.SetDefault("queue.addr", "")
	v.SetDefault("queue.prefix", jobs.DefaultRedisPrefix)
	v.SetDefault("queue.workers", jobs.DefaultConcurrency)
	v.SetDefault("queue.max_attempts", jobs.DefaultMaxAttempts)
	v.SetDefault("queue.min_backoff", jobs.DefaultMinBackoff)
	v.SetDefault("queue.max_backoff", jobs.DefaultMaxBackoff)
	v.SetDefault("queue.poll_wait", jobs.DefaultPollWait)
	v.SetDefault("queue.sweep_interval", 10*time.Minute)
	v.SetDefault("queue.sweep_limit", 100)

	v.SetDefault("cors.enabled", false)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"*"})
	v.SetDefault("cors.exposed_headers", []string{"Content-Disposition", "Content-Length"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.env", "dev")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("VAULTBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
