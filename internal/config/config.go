package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	MDNS     MDNSConfig     `mapstructure:"mdns"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Reports  ReportsConfig  `mapstructure:"reports"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      byte   `mapstructure:"qos"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type MDNSConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	LocalName string `mapstructure:"local_name"`
}

// RealtimeConfig selects where device change events come from ("mqtt" or "postgres").
type RealtimeConfig struct {
	Source     string `mapstructure:"source"`
	Topic      string `mapstructure:"topic"`
	Channel    string `mapstructure:"channel"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// CacheConfig bounds the device-type and location lookup caches.
type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WorkersConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ReportsConfig controls how often report schedules are reloaded from the
// database.
type ReportsConfig struct {
	Refresh time.Duration `mapstructure:"refresh"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cropwatch")
	v.SetDefault("app.port", 5069)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("mqtt.client_id", "cropwatch-backend")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mdns.local_name", "cropwatch.local")
	v.SetDefault("realtime.source", "mqtt")
	v.SetDefault("realtime.topic", "cropwatch/db/cw_devices/+")
	v.SetDefault("realtime.channel", "cw_devices_changes")
	v.SetDefault("realtime.buffer_size", 256)
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("workers.concurrency", 10)
	v.SetDefault("reports.refresh", 5*time.Minute)
}

// LoadConfig reads configuration from config.yaml, .env, or env vars.
// Env vars use the section prefix, e.g. DATABASE_URL or MQTT_BROKER.
func LoadConfig() (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about
	for _, key := range []string{"database.url", "redis.password", "redis.db", "mqtt.broker",
		"mqtt.username", "mqtt.password", "jwt.secret", "mdns.enabled"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database url is required")
	}
	switch c.Realtime.Source {
	case "mqtt":
		if c.MQTT.Broker == "" {
			return errors.New("mqtt broker is required when realtime source is mqtt")
		}
	case "postgres":
	default:
		return fmt.Errorf("unknown realtime source %q", c.Realtime.Source)
	}
	if c.Cache.Size <= 0 {
		return errors.New("cache size must be positive")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret is required")
	}
	return nil
}
