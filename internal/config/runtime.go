package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RuntimeConfig tunes process-local behavior: how the bot talks to the
// wiki, not what it does there. It is strictly separate from SiteConfig
// and TaskConfig, which live on-wiki and are fetched by the Finder.
type RuntimeConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	FinderInterval   time.Duration `mapstructure:"finder_interval"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
	RetryMax         int           `mapstructure:"retry_max"`
	CacheSize        int           `mapstructure:"cache_size"`
	OTLPEndpoint     string        `mapstructure:"otlp_endpoint"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
}

// DefaultRuntimeConfig mirrors the original implementation's hardcoded
// 10-minute Finder sleep and hourly keep-alive wake.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		LogLevel:          "info",
		FinderInterval:    10 * time.Minute,
		KeepAliveInterval: time.Hour,
		HTTPTimeout:       30 * time.Second,
		RetryMax:          4,
		CacheSize:         4096,
		MetricsAddr:       ":9090",
	}
}

// LoadRuntimeConfig reads an optional plbot.yaml (searched at configPath,
// or ./plbot.yaml, or /etc/plbot/plbot.yaml) and PLBOT_*-prefixed
// environment variables, layered over DefaultRuntimeConfig. When
// configPath is empty, finding no plbot.yaml is not an error; the defaults
// (and any env overrides) apply. A non-empty configPath that cannot be
// read is an error.
func LoadRuntimeConfig(configPath string) (RuntimeConfig, error) {
	v := viper.New()
	def := DefaultRuntimeConfig()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("finder_interval", def.FinderInterval)
	v.SetDefault("keepalive_interval", def.KeepAliveInterval)
	v.SetDefault("http_timeout", def.HTTPTimeout)
	v.SetDefault("retry_max", def.RetryMax)
	v.SetDefault("cache_size", def.CacheSize)
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("metrics_addr", def.MetricsAddr)

	v.SetEnvPrefix("plbot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("plbot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/plbot")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return RuntimeConfig{}, err
		}
	}

	var rc RuntimeConfig
	if err := v.Unmarshal(&rc); err != nil {
		return RuntimeConfig{}, err
	}
	return rc, nil
}
