package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"xprobe/internal/paths"
)

// Config represents application configuration
type Config struct {
	Probe        ProbeConfig        `mapstructure:"probe"`
	Core         CoreConfig         `mapstructure:"core"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Log          LogConfig          `mapstructure:"log"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
}

// ProbeConfig holds the latency probe settings.
type ProbeConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     int           `mapstructure:"timeout"` // seconds
	URL         string        `mapstructure:"url"`
	SocksPort   int           `mapstructure:"socks_port"`
	InboundPort int           `mapstructure:"inbound_port"`
	TrafficPort int           `mapstructure:"traffic_port"`
	DatDir      string        `mapstructure:"dat_dir"`
	Strategy    string        `mapstructure:"strategy"` // http, tcp
	Launch      bool          `mapstructure:"launch"`   // start a private xray per probe
}

// CoreConfig holds tunnel core settings.
type CoreConfig struct {
	SocksPort int    `mapstructure:"socks_port"`
	APIPort   int    `mapstructure:"api_port"`
	LogLevel  string `mapstructure:"log_level"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console, json
	Output string `mapstructure:"output"` // stdout, stderr, or a file path
}

// SubscriptionConfig holds subscription fetcher settings.
type SubscriptionConfig struct {
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// LoadConfig reads configuration from file, environment and defaults.
// An explicit path that cannot be read is an error; a missing default
// config file is not.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("XPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := paths.ConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Storage.DBPath == "" {
		dataDir, err := paths.DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}
		cfg.Storage.DBPath = filepath.Join(dataDir, "xprobe.db")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Probe defaults
	v.SetDefault("probe.interval", 10*time.Second)
	v.SetDefault("probe.timeout", 30)
	v.SetDefault("probe.url", "https://www.google.com")
	v.SetDefault("probe.socks_port", 10808)
	v.SetDefault("probe.inbound_port", 10808)
	v.SetDefault("probe.traffic_port", 49227)
	v.SetDefault("probe.dat_dir", "")
	v.SetDefault("probe.strategy", "http")
	v.SetDefault("probe.launch", true)

	// Core defaults
	v.SetDefault("core.socks_port", 1080)
	v.SetDefault("core.api_port", 10085)
	v.SetDefault("core.log_level", "none")

	// Storage defaults
	v.SetDefault("storage.db_path", "")

	// Logger defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")

	// Subscription defaults
	v.SetDefault("subscription.user_agent", "xprobe/1.0")
	v.SetDefault("subscription.timeout", 30*time.Second)
	v.SetDefault("subscription.max_retries", 3)
}
