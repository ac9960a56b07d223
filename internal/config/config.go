// Package config loads server settings from an optional YAML file, the
// environment and built-in defaults
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LABEL_DISPATCH_SERVER_ADDRESS
const EnvPrefix = "LABEL_DISPATCH"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Registry RegistryConfig `mapstructure:"registry"`
	USB      USBConfig      `mapstructure:"usb"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// QueueBinding binds an installed printer name to its logical port
type QueueBinding struct {
	Name string `mapstructure:"name"`
	Port string `mapstructure:"port"`
}

type USBConfig struct {
	VendorID        uint16         `mapstructure:"vendor_id"`
	ReadTimeout     time.Duration  `mapstructure:"read_timeout"`
	MonitorInterval time.Duration  `mapstructure:"monitor_interval"`
	Queues          []QueueBinding `mapstructure:"queues"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RedisConfig enables event publishing when Addr is set
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	Channel    string `mapstructure:"channel"`
	HistoryLen int64  `mapstructure:"history_len"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "localhost:8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("registry.path", "profiles.json")

	v.SetDefault("usb.vendor_id", 0x0A5F)
	v.SetDefault("usb.read_timeout", "1s")
	v.SetDefault("usb.monitor_interval", "2s")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "label_dispatch_events")
	v.SetDefault("redis.history_len", 100)
}

// Load reads path when it is non-empty. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// QueueMap returns the configured queue bindings keyed by printer name
func (c USBConfig) QueueMap() map[string]string {
	queues := make(map[string]string, len(c.Queues))
	for _, q := range c.Queues {
		queues[q.Name] = q.Port
	}
	return queues
}
