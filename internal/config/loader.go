package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/devicestore/internal/logging"
	"github.com/example/devicestore/internal/persistence/sqlite/migration"
)

const (
	fileName  = "devicestore"
	envPrefix = "devicestore"
)

// Config holds the settings for the devicestore CLI.
type Config struct {
	DataDir       string       `mapstructure:"data_dir" yaml:"data_dir"`
	Store         string       `mapstructure:"store" yaml:"store"`
	TargetVersion int          `mapstructure:"target_version" yaml:"target_version"`
	MigrationsDir string       `mapstructure:"migrations_dir" yaml:"migrations_dir,omitempty"`
	Log           LogConfig    `mapstructure:"log" yaml:"log"`
	SQLite        SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SQLiteConfig mirrors migration.SQLiteConfig with file-friendly keys.
type SQLiteConfig struct {
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
	JournalMode string        `mapstructure:"journal_mode" yaml:"journal_mode"`
	Synchronous string        `mapstructure:"synchronous" yaml:"synchronous"`
	ForeignKeys bool          `mapstructure:"foreign_keys" yaml:"foreign_keys"`
	CacheSize   int           `mapstructure:"cache_size" yaml:"cache_size"`
}

// Pragmas converts the settings for the store driver.
func (c SQLiteConfig) Pragmas() migration.SQLiteConfig {
	return migration.SQLiteConfig{
		BusyTimeout:       c.BusyTimeout,
		EnableForeignKeys: c.ForeignKeys,
		JournalMode:       c.JournalMode,
		Synchronous:       c.Synchronous,
		CacheSize:         c.CacheSize,
	}
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"data-dir":       "data_dir",
	"store":          "store",
	"target":         "target_version",
	"migrations-dir": "migrations_dir",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	pragmas := migration.DefaultSQLiteConfig()
	return map[string]any{
		"data_dir":            defaultDataDir(),
		"store":               "app",
		"target_version":      -1,
		"migrations_dir":      "",
		"log.level":           "info",
		"log.format":          "text",
		"sqlite.busy_timeout": pragmas.BusyTimeout,
		"sqlite.journal_mode": pragmas.JournalMode,
		"sqlite.synchronous":  pragmas.Synchronous,
		"sqlite.foreign_keys": pragmas.EnableForeignKeys,
		"sqlite.cache_size":   pragmas.CacheSize,
	}
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}
	return filepath.Join(dir, "devicestore", fileName+".yaml"), nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "devicestore", "data")
	}
	return "data"
}

// Load resolves configuration from defaults, an optional YAML file, the
// DEVICESTORE_* environment and the flags of cmd, in increasing precedence.
// An explicit configPath must exist; the default locations may be empty.
func Load(cmd *cobra.Command, configPath string) (Config, error) {
	var cfg Config
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		if path, err := DefaultPath(); err == nil {
			v.AddConfigPath(filepath.Dir(path))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for name, key := range flagKeys {
			if flag := cmd.Flags().Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return cfg, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid key at once.
func (c Config) Validate() error {
	invalid := make([]string, 0, 4)

	// The store path becomes a file: URI, so ? and # would cut it short.
	if strings.TrimSpace(c.DataDir) == "" || strings.ContainsAny(c.DataDir, "?#") {
		invalid = append(invalid, "data_dir")
	}
	if strings.TrimSpace(c.Store) == "" {
		invalid = append(invalid, "store")
	}
	if c.TargetVersion < -1 {
		invalid = append(invalid, "target_version")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		invalid = append(invalid, "log.level")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		invalid = append(invalid, "log.format")
	}
	if c.SQLite.BusyTimeout < 0 {
		invalid = append(invalid, "sqlite.busy_timeout")
	}
	if err := (migration.SQLiteConfig{JournalMode: c.SQLite.JournalMode}).Validate(); err != nil {
		invalid = append(invalid, "sqlite.journal_mode")
	}
	if err := (migration.SQLiteConfig{Synchronous: c.SQLite.Synchronous}).Validate(); err != nil {
		invalid = append(invalid, "sqlite.synchronous")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// WriteFile stores cfg as YAML at path, creating parent directories.
func WriteFile(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
