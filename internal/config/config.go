// Package config handles application configuration using Viper.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yourusername/dashdiff/internal/changes"
	"github.com/yourusername/dashdiff/internal/logger"
	"github.com/yourusername/dashdiff/internal/report"
)

// EnvPrefix is the prefix of environment overrides, e.g. DASHDIFF_LOG_LEVEL.
const EnvPrefix = "DASHDIFF"

// Config holds the application configuration.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Output OutputConfig `mapstructure:"output"`
	Save   SaveConfig   `mapstructure:"save"`
	AWS    AWSConfig    `mapstructure:"aws"`
	Detect DetectConfig `mapstructure:"detect"`
	Diff   DiffConfig   `mapstructure:"diff"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// OutputConfig holds report output configuration.
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// SaveConfig selects which parts of an edited dashboard are saved.
type SaveConfig struct {
	TimeRange bool `mapstructure:"time_range"`
	Variables bool `mapstructure:"variables"`
	Refresh   bool `mapstructure:"refresh"`
}

// AWSConfig holds settings for the S3 snapshot store.
type AWSConfig struct {
	Region      string `mapstructure:"region"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// DetectConfig holds settings for batch drift detection.
type DetectConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DiffConfig holds diff settings.
type DiffConfig struct {
	// Ignore lists paths left out of every diff, e.g. /version or /id
	Ignore []string `mapstructure:"ignore"`
}

// Load reads configuration from file and environment. An empty configPath
// looks for $HOME/.dashdiff/config.yaml; a missing default file is not an
// error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Join(home, ".dashdiff"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("output.format", "text")
	v.SetDefault("save.time_range", false)
	v.SetDefault("save.variables", false)
	v.SetDefault("save.refresh", false)
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.max_attempts", 5)
	v.SetDefault("detect.concurrency", 4)
	v.SetDefault("diff.ignore", []string{})
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := report.NewFormatter(report.FormatType(c.Output.Format)); err != nil {
		return err
	}
	if c.AWS.MaxAttempts < 1 {
		return fmt.Errorf("aws.max_attempts must be at least 1, got %d", c.AWS.MaxAttempts)
	}
	if c.Detect.Concurrency < 1 {
		return fmt.Errorf("detect.concurrency must be at least 1, got %d", c.Detect.Concurrency)
	}
	return nil
}

// ChangeOptions returns the save options for change detection.
func (c *Config) ChangeOptions() changes.Options {
	return changes.Options{
		SaveTimeRange: c.Save.TimeRange,
		SaveVariables: c.Save.Variables,
		SaveRefresh:   c.Save.Refresh,
	}
}

// Logger builds the logger described by the configuration, writing to w.
func (c *Config) Logger(w io.Writer) *logger.Logger {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		level = logger.LevelInfo
	}
	return logger.NewLogger(logger.Config{
		Level:  level,
		Output: w,
		JSON:   c.Log.JSON,
	})
}
