// Package rpcconfig loads librpcd's static configuration: bound transport
// URIs, worker pool sizing, timeouts, the default serializer, and logging.
// Grounded on the teacher's pkg/config (spf13/viper + mitchellh/mapstructure
// + go-playground/validator/v10 + gopkg.in/yaml.v3), restructured around
// librpc's own settings instead of the teacher's store/share/cache settings.
package rpcconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/twoporeguys/go-librpc/internal/bytesize"
)

// Config is librpcd's static configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (highest priority): LIBRPC_ plus the
//     upper-cased dotted key (LIBRPC_SERVER.WORKERS), only for keys the
//     configuration file sets
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Load binds no CLI flags.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging" validate:"required"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Listen   []ListenConfig `mapstructure:"listen" yaml:"listen"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	Output string `mapstructure:"output" yaml:"output"`
}

// ServerConfig controls Context/worker-pool sizing and call/connection
// timeouts (spec §4.6, §5).
type ServerConfig struct {
	// Workers sizes the Context's dispatch pool. Zero means "host parallelism",
	// matching the teacher's runtime.NumCPU()-derived default.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"gte=0"`

	// DefaultSerializer names the codec the Context uses for every
	// byte-mode connection (spec §6.2); there is no per-peer negotiation.
	DefaultSerializer string `mapstructure:"default_serializer" yaml:"default_serializer" validate:"oneof=json msgpack yaml"`

	// CallTimeout is a per-call deadline setting (spec §4.3, CALL_TIMEOUT).
	// It is loaded but librpcd passes it to no component.
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`

	// PingInterval and PingGrace are CONNECTION_TIMEOUT detection settings
	// (spec §4.3). They are loaded but librpcd passes them to no component.
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PingGrace    time.Duration `mapstructure:"ping_grace" yaml:"ping_grace"`

	// ShutdownTimeout bounds the metrics HTTP server's shutdown when librpcd
	// stops; Context.Close takes no deadline.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// MaxFrameSize is an inbound frame size cap for length-prefixed
	// transports. It is loaded but no transport reads it.
	MaxFrameSize bytesize.ByteSize `mapstructure:"max_frame_size" yaml:"max_frame_size"`

	// DefaultPrefetch is a default streaming prefetch (spec §4.3); zero
	// means unlimited. It is loaded but librpcd passes it to no component.
	DefaultPrefetch int `mapstructure:"default_prefetch" yaml:"default_prefetch"`
}

// MetricsConfig controls the prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ListenConfig binds a transport at startup (spec §6.4 URI forms).
type ListenConfig struct {
	URI    string `mapstructure:"uri" yaml:"uri" validate:"required"`
	Params map[string]string `mapstructure:"params" yaml:"params"`
}

// Load reads configPath (YAML), overlays environment variables prefixed
// LIBRPC_, and applies Defaults() for anything left unset.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found && configPath != "" {
		return nil, fmt.Errorf("rpcconfig: config file %q not found", configPath)
	}

	cfg := Defaults()
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		byteSizeDecodeHook(),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("rpcconfig: decode: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad calls Load and panics on error, for callers where a bad config
// is a fatal misconfiguration, not a recoverable error.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate runs struct tag validation (go-playground/validator/v10) over cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("rpcconfig: validation: %w", err)
	}
	return nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("rpcconfig: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("rpcconfig: mkdir: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("LIBRPC")
	v.AutomaticEnv()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("librpcd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultConfigDir())
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if ok := isConfigFileNotFound(err, &notFound); ok {
			return false, nil
		}
		return false, fmt.Errorf("rpcconfig: read config: %w", err)
	}
	return true, nil
}

func isConfigFileNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}

// byteSizeDecodeHook lets ServerConfig.MaxFrameSize accept human-readable
// strings ("16Mi") via mapstructure, grounded on the teacher's identical
// hook over internal/bytesize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		return bytesize.ParseByteSize(s)
	}
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "librpc")
}
