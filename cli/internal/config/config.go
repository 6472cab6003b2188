package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem configuration is read from and written to.
var AppFs = afero.NewOsFs()

const (
	// FileName is the base name of the configuration file, without extension.
	FileName = ".queryable"
	// EnvPrefix prefixes every environment variable override.
	EnvPrefix = "QUERYABLE"
)

// Config holds the application configuration
type Config struct {
	Provider       string        `mapstructure:"provider"`
	ServerVersion  string        `mapstructure:"server_version"`
	DatabaseURL    string        `mapstructure:"database_url"`
	SchemaPath     string        `mapstructure:"schema_path"`
	CacheDir       string        `mapstructure:"cache_dir"`
	QueryCacheSize int           `mapstructure:"query_cache_size"`
	QueryCacheTTL  time.Duration `mapstructure:"query_cache_ttl"`
	Debug          bool          `mapstructure:"debug"`

	// File is the configuration file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// Load loads configuration from the config file, .env files and the
// QUERYABLE_ environment. explicit names a config file to read instead of
// searching the default locations.
func Load(explicit string) (*Config, error) {
	v := viper.New()
	v.SetFs(AppFs)
	v.SetConfigType("yaml")

	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	if explicit != "" {
		path, err := homedir.Expand(explicit)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "queryable"))
	}

	// .env.local wins over .env, and neither overrides the real environment
	if err := loadDotEnv(".env.local"); err != nil {
		return nil, err
	}
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("provider", "sqlite")
	v.SetDefault("schema_path", "schema.qry")
	v.SetDefault("cache_dir", filepath.Join(home, ".cache", "queryable"))
	v.SetDefault("query_cache_size", 0)
	v.SetDefault("query_cache_ttl", "0s")
	v.SetDefault("debug", false)
	v.SetDefault("server_version", "")
	v.SetDefault("database_url", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.CacheDir, err = homedir.Expand(cfg.CacheDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv exports the variables of a dotenv file that are not already
// set. A missing file is not an error.
func loadDotEnv(name string) error {
	f, err := AppFs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	for k, val := range vars {
		if _, ok := os.LookupEnv(k); !ok {
			os.Setenv(k, val)
		}
	}
	return nil
}

// Save writes cfg as YAML to path. An empty path selects
// $HOME/.config/queryable/.queryable.yaml.
func Save(cfg *Config, path string) (string, error) {
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, ".config", "queryable", FileName+".yaml")
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}

	v := viper.New()
	v.SetFs(AppFs)
	v.Set("provider", cfg.Provider)
	v.Set("server_version", cfg.ServerVersion)
	v.Set("database_url", cfg.DatabaseURL)
	v.Set("schema_path", cfg.SchemaPath)
	v.Set("cache_dir", cfg.CacheDir)
	v.Set("query_cache_size", cfg.QueryCacheSize)
	v.Set("query_cache_ttl", cfg.QueryCacheTTL.String())
	v.Set("debug", cfg.Debug)

	if err := AppFs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
