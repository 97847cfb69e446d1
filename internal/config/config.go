package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Delivery  DeliveryConfig            `mapstructure:"delivery"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Retention RetentionConfig           `mapstructure:"retention"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type DeliveryConfig struct {
	Timeout       time.Duration   `mapstructure:"timeout"`
	MaxRetries    int             `mapstructure:"max_retries"`
	RetrySchedule []time.Duration `mapstructure:"retry_schedule"`
	FanoutWorkers int             `mapstructure:"fanout_workers"`
	SweepInterval time.Duration   `mapstructure:"sweep_interval"`
}

// ProviderConfig holds the per-provider inbound shared secret and, when the
// provider exposes a synchronous API (alert detail fetch, subject checks),
// its client settings. A missing secret disables signature verification for
// that provider; events are then stored unverified and never fanned out.
type ProviderConfig struct {
	Secret     string        `mapstructure:"secret"`
	APIBaseURL string        `mapstructure:"api_base_url"`
	APIKey     string        `mapstructure:"api_key"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RetentionConfig struct {
	EventTTL      time.Duration `mapstructure:"event_ttl"`
	AttemptTTL    time.Duration `mapstructure:"attempt_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("bizrelay")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/bizrelay")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BIZRELAY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/bizrelay.db")

	viper.SetDefault("delivery.timeout", 10*time.Second)
	viper.SetDefault("delivery.max_retries", 3)
	viper.SetDefault("delivery.retry_schedule", []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
	})
	viper.SetDefault("delivery.fanout_workers", 8)
	viper.SetDefault("delivery.sweep_interval", 1*time.Minute)

	viper.SetDefault("providers.bizradar.api_timeout", 5*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("retention.event_ttl", 30*24*time.Hour)
	viper.SetDefault("retention.attempt_ttl", 7*24*time.Hour)
	viper.SetDefault("retention.sweep_interval", 1*time.Hour)
}
