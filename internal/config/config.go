package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tinoosan/quip/internal/repo"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Repo      RepoConfig      `mapstructure:"repo"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig is where downloaded files are written.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

type EngineConfig struct {
	MaxRetry        int           `mapstructure:"max_retry"`
	BufferSize      int           `mapstructure:"buffer_size"`
	NameLength      int           `mapstructure:"name_length"`
	CollisionPolicy string        `mapstructure:"collision_policy"`
	RangeRequests   bool          `mapstructure:"range_requests"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
}

// RepoConfig selects the task store: memory, sqlite or postgres.
type RepoConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ReconcileConfig struct {
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type AuthConfig struct {
	Token string `mapstructure:"token"`
}

var (
	ErrRepoDriver = errors.New("repo.driver must be one of memory|sqlite|postgres")
	ErrStorageDir = errors.New("storage.dir is required")
)

// Load reads configuration from an optional YAML file and QUIP_* environment
// variables. Environment wins over the file, the file wins over defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("quip")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.quip")
	}

	v.SetEnvPrefix("QUIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Auth.Token == "" {
		cfg.Auth.Token = v.GetString("api_token")
	}
	if cfg.Repo.DSN == "" {
		switch cfg.Repo.Driver {
		case "postgres":
			cfg.Repo.DSN = repo.PostgresDSNFromEnv()
		case "sqlite":
			cfg.Repo.DSN = "./data/quip.db"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Repo.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: got %q", ErrRepoDriver, c.Repo.Driver)
	}
	if strings.TrimSpace(c.Storage.Dir) == "" {
		return ErrStorageDir
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":9090")

	v.SetDefault("storage.dir", "./downloads")

	v.SetDefault("engine.max_retry", 3)
	v.SetDefault("engine.buffer_size", 32*1024)
	v.SetDefault("engine.name_length", 10)
	v.SetDefault("engine.collision_policy", "rename")
	v.SetDefault("engine.range_requests", false)
	v.SetDefault("engine.http_timeout", time.Duration(0))

	v.SetDefault("repo.driver", "sqlite")
	v.SetDefault("repo.dsn", "")

	v.SetDefault("reconcile.progress_interval", time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("auth.token", "")
}
