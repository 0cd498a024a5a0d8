package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces every environment override, e.g. SPENDLY_STORAGE_BACKEND.
const EnvPrefix = "SPENDLY_"

// Backends accepted by Storage.Backend.
var Backends = []string{"memory", "file", "sqlite"}

type Config struct {
	// HTTP Server
	Port string `koanf:"port"`

	Log       Log       `koanf:"log"`
	Storage   Storage   `koanf:"storage"`
	AMQP      AMQP      `koanf:"amqp"`
	Cache     Cache     `koanf:"cache"`
	RateLimit RateLimit `koanf:"ratelimit"`

	// Source is the YAML file that was merged, empty when none was found.
	Source string `koanf:"-"`
}

type Log struct {
	Level string `koanf:"level"`
}

type Storage struct {
	Backend    string `koanf:"backend"`
	Dir        string `koanf:"dir"`
	SQLitePath string `koanf:"sqlitepath"`
}

// AMQP is optional; an empty URL disables save notifications.
type AMQP struct {
	URL      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
}

type Cache struct {
	Size int           `koanf:"size"`
	TTL  time.Duration `koanf:"ttl"`
}

type RateLimit struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Port: "8081",
		Log:  Log{Level: "info"},
		Storage: Storage{
			Backend:    "sqlite",
			Dir:        "./data",
			SQLitePath: "./data/spendly.db",
		},
		AMQP:      AMQP{Exchange: "spendly"},
		Cache:     Cache{Size: 64, TTL: 5 * time.Minute},
		RateLimit: RateLimit{RPS: 5, Burst: 10},
	}
}

// Load layers struct defaults, the optional YAML file at path, then
// SPENDLY_* environment variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	source := ""
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else {
			source = path
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, EnvPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = source
	return &cfg, nil
}

// SlogLevel maps Log.Level onto slog. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.Log.Level))
	}

	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.Dir == "" {
			errors = append(errors, "storage directory cannot be empty when using file backend")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.Storage.SQLitePath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.Storage.Backend, Backends))
	}

	// AMQP is optional
	if c.AMQP.URL != "" {
		if parsedURL, err := url.Parse(c.AMQP.URL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQP.URL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQP.Exchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.Cache.Size < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.Cache.Size))
	}
	if c.Cache.TTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache ttl %v: must be at least 1 second", c.Cache.TTL))
	} else if c.Cache.TTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid cache ttl %v: must be at most 24 hours", c.Cache.TTL))
	}

	if c.RateLimit.RPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimit.RPS))
	}
	if c.RateLimit.Burst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimit.Burst))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
