// Package config provides configuration management for the application.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config represents the application configuration structure, persisted as
// config.json in the application data directory.
type Config struct {
	Server struct {
		Port int    `mapstructure:"port" json:"port"`
		Host string `mapstructure:"host" json:"host"`
	} `mapstructure:"server" json:"server"`
	Database struct {
		Path          string `mapstructure:"path" json:"path"`
		MigrationMode string `mapstructure:"migration_mode" json:"migration_mode"`
	} `mapstructure:"database" json:"database"`
	DataPath string `mapstructure:"data_path" json:"data_path"`
	Cache    struct {
		RemoteTTL int `mapstructure:"remote_ttl" json:"remoteTtl"`
	} `mapstructure:"cache" json:"cache"`
	Transfer struct {
		ChunkSizeMB       int `mapstructure:"chunk_size_mb" json:"chunkSizeMb"`
		StreamThresholdMB int `mapstructure:"stream_threshold_mb" json:"streamThresholdMb"`
		MaxConcurrent     int `mapstructure:"max_concurrent" json:"maxConcurrentTransfers"`
		MaxRetries        int `mapstructure:"max_retries" json:"maxRetries"`
		RetryBaseDelayMs  int `mapstructure:"retry_base_delay_ms" json:"retryBaseDelayMs"`
	} `mapstructure:"transfer" json:"transfer"`
	Log struct {
		Enabled   bool      `mapstructure:"enabled" json:"enabled"`
		MaxSizeMB int       `mapstructure:"max_size_mb" json:"maxSizeMb"`
		Level     string    `mapstructure:"level" json:"level"`
		Levels    LogLevels `mapstructure:"levels" json:"levels,omitempty"`
	} `mapstructure:"log" json:"log"`
	App struct {
		DataDir     string `mapstructure:"data_dir" json:"data_dir"`
		Environment string `mapstructure:"environment" json:"environment"`
	} `mapstructure:"app" json:"app"`
	Security struct {
		EncryptionKey string `mapstructure:"encryption_key" json:"encryption_key"`
	} `mapstructure:"security" json:"security"`
	Auth struct {
		Enabled  bool   `mapstructure:"enabled" json:"enabled"`
		Username string `mapstructure:"username" json:"username"`
		Password string `mapstructure:"password" json:"password"`
	} `mapstructure:"auth" json:"auth"`
}

// IsAuthEnabled reports whether HTTP basic auth should guard the API surface.
func (c *Config) IsAuthEnabled() bool {
	return c.Auth.Enabled && c.Auth.Username != ""
}

// Cfg is the global configuration instance, populated by InitConfig.
var Cfg Config

// InitConfig initializes the global configuration from config.json and
// environment variables, exiting the process on unrecoverable errors. The
// cloud-sync-engine commands do not use it; they call Load directly.
func InitConfig(cfgFile string) {
	cfg, err := Load(cfgFile)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	Cfg = *cfg
}

// Load reads configuration from cfgFile (or ./config.json plus defaults if
// cfgFile is empty) and environment variables, returning the populated
// Config without touching global state. A missing cfgFile is an error only
// when cfgFile was explicitly provided; the default lookup tolerates a
// missing file and falls back to defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("json")
	}

	v.SetEnvPrefix("CLOUDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if cfgFile != "" {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(LogLevelsDecodeHook())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// mapstructure can't reliably decode dotted keys into a flat map (viper
	// flattens log.levels.* into nested maps); populate it directly from
	// viper's own stringmap accessor instead.
	if raw := v.GetStringMapString("log.levels"); len(raw) > 0 {
		cfg.Log.Levels = LogLevels(raw)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("database.path", "synctools.db")
	v.SetDefault("database.migration_mode", "versioned")
	v.SetDefault("data_path", "./app_data")
	v.SetDefault("cache.remote_ttl", 1800)
	v.SetDefault("transfer.chunk_size_mb", 8)
	v.SetDefault("transfer.stream_threshold_mb", 128)
	v.SetDefault("transfer.max_concurrent", 4)
	v.SetDefault("transfer.max_retries", 5)
	v.SetDefault("transfer.retry_base_delay_ms", 2000)
	v.SetDefault("log.enabled", true)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("app.data_dir", "./app_data")
	v.SetDefault("app.environment", "production")
	v.SetDefault("security.encryption_key", "")
}

// BindFlags binds command-line flags to configuration values.
func BindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "config file (default is ./config.json)")
	cmd.PersistentFlags().Int("port", 8080, "Port to run the server on")
	_ = viper.BindPFlag("server.port", cmd.PersistentFlags().Lookup("port"))
}

// Save writes cfg to path atomically: serialize, write to a temp file in the
// same directory, then rename over the destination. This mirrors the
// write-temp-then-rename sequence the original config persistence used,
// since viper has no atomic-write primitive of its own.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config file into place: %w", err)
	}
	return nil
}
