// Package config loads credflow settings from a YAML file and CREDFLOW_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/petrijr/credflow/internal/notify"
)

// Config holds the configuration for the credflow service.
type Config struct {
	Server struct {
		Addr         string `mapstructure:"addr"`
		MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
	} `mapstructure:"server"`

	Storage struct {
		// Driver is one of memory, sqlite, postgres, redis, mongo.
		Driver   string `mapstructure:"driver"`
		DSN      string `mapstructure:"dsn"`
		Prefix   string `mapstructure:"prefix"`
		Database string `mapstructure:"database"`
	} `mapstructure:"storage"`

	Queue struct {
		// Driver is one of memory, sqlite, postgres, redis, mongo. Durable
		// drivers share the storage connection.
		Driver   string `mapstructure:"driver"`
		Capacity int    `mapstructure:"capacity"`
		Workers  int    `mapstructure:"workers"`
	} `mapstructure:"queue"`

	Keys struct {
		// Driver is memory or sqlite. The sqlite key store may share the
		// storage database file.
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"keys"`

	Resolver struct {
		BaseURL   string        `mapstructure:"base_url"`
		Path      string        `mapstructure:"path"`
		Timeout   time.Duration `mapstructure:"timeout"`
		CacheSize int           `mapstructure:"cache_size"`
		CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"resolver"`

	StatusList struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"status_list"`

	SMTP notify.SMTPConfig `mapstructure:"smtp"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	// Settings are the AppSettings values available to parameter references.
	Settings map[string]string `mapstructure:"settings"`
}

var (
	storageDrivers = []string{"memory", "sqlite", "postgres", "redis", "mongo"}
	queueDrivers   = []string{"memory", "sqlite", "postgres", "redis", "mongo"}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "credflow.db")
	v.SetDefault("storage.prefix", "credflow:")
	v.SetDefault("storage.database", "credflow")
	v.SetDefault("queue.driver", "sqlite")
	v.SetDefault("queue.capacity", 1024)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("keys.driver", "sqlite")
	v.SetDefault("keys.dsn", "credflow.db")
	v.SetDefault("resolver.base_url", "")
	v.SetDefault("resolver.path", "/1.0/identifiers/{did}")
	v.SetDefault("resolver.timeout", 10*time.Second)
	v.SetDefault("resolver.cache_size", 256)
	v.SetDefault("resolver.cache_ttl", time.Minute)
	v.SetDefault("status_list.timeout", 10*time.Second)
	v.SetDefault("smtp.addr", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. When path is empty, credflow.yaml is searched in
// the working directory and /etc/credflow; a missing file is not an error.
// Environment variables override file values, e.g. CREDFLOW_STORAGE_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CREDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("credflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/credflow")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values and bounds.
func (c *Config) Validate() error {
	if !oneOf(c.Storage.Driver, storageDrivers) {
		return fmt.Errorf("storage.driver %q: want one of %s", c.Storage.Driver, strings.Join(storageDrivers, ", "))
	}
	if !oneOf(c.Queue.Driver, queueDrivers) {
		return fmt.Errorf("queue.driver %q: want one of %s", c.Queue.Driver, strings.Join(queueDrivers, ", "))
	}
	if c.Queue.Driver != "memory" && c.Queue.Driver != c.Storage.Driver {
		return fmt.Errorf("queue.driver %q requires storage.driver %q", c.Queue.Driver, c.Queue.Driver)
	}
	if c.Keys.Driver != "memory" && c.Keys.Driver != "sqlite" {
		return fmt.Errorf("keys.driver %q: want memory or sqlite", c.Keys.Driver)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format %q: want text or json", c.Log.Format)
	}
	return nil
}

// Logger builds a slog.Logger writing to w according to the log settings.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}

func oneOf(s string, allowed []string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
