package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Provision ProvisionConfig `yaml:"provision" mapstructure:"provision"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxBodyMB   int      `yaml:"max_body_mb" mapstructure:"max_body_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ProvisionConfig configures the provision engine.
type ProvisionConfig struct {
	// Standards adds to or replaces the built-in per-1000 standards.
	Standards     map[string]float64 `yaml:"standards" mapstructure:"standards"`
	Epsilon       float64            `yaml:"epsilon" mapstructure:"epsilon"`
	NeighborOrder string             `yaml:"neighbor_order" mapstructure:"neighbor_order"`
	Concurrency   int                `yaml:"concurrency" mapstructure:"concurrency"`
	Services      []string           `yaml:"services" mapstructure:"services"`
}

// FetchConfig configures remote input downloads.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	Charset     string `yaml:"charset" mapstructure:"charset"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROVISION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "provision.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_body_mb", 64)
	v.SetDefault("provision.epsilon", 1e-9)
	v.SetDefault("provision.neighbor_order", "cost")
	v.SetDefault("provision.concurrency", 4)
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "provision-cli/1.0")
	v.SetDefault("fetch.temp_dir", "/tmp/provision")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "run",
// "serve", "store". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "run", "serve", "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "none":
		if mode == "store" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	if mode == "run" || mode == "serve" {
		switch strings.ToLower(c.Provision.NeighborOrder) {
		case "", "cost", "id":
		default:
			problems = append(problems, fmt.Sprintf("unknown provision.neighbor_order %q", c.Provision.NeighborOrder))
		}
		if c.Provision.Epsilon < 0 {
			problems = append(problems, "provision.epsilon must be >= 0")
		}
		if c.Provision.Concurrency < 1 || c.Provision.Concurrency > 64 {
			problems = append(problems, "provision.concurrency must be between 1 and 64")
		}
		names := make([]string, 0, len(c.Provision.Standards))
		for name := range c.Provision.Standards {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if c.Provision.Standards[name] <= 0 {
				problems = append(problems, fmt.Sprintf("provision.standards.%s must be > 0", name))
			}
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
