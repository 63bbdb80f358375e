package internal

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

// NaiaConfig is the user supplied configuration, loaded from a YAML file
// and/or the environment.
type NaiaConfig struct {
	Downloads DownloadConfig `yaml:"downloads"`
	Resolver  ResolverConfig `yaml:"resolver"`

	// Providers carries per-provider tuning keyed by lower-cased provider
	// name; each entry is decoded in to that provider's options struct.
	Providers map[string]map[string]any `yaml:"providers"`
}

// DownloadConfig is the subset of the configuration controlling the
// download queue.
type DownloadConfig struct {
	WorkerCount int    `yaml:"workers" env:"DOWNLOAD_WORKERS" env-default:"3" validate:"gte=1,lte=32"`
	MaxHistory  int    `yaml:"max_history" env:"DOWNLOAD_MAX_HISTORY" env-default:"10" validate:"gte=1"`
	OutputDir   string `yaml:"output_dir" env:"DOWNLOAD_OUTPUT_DIR"`
}

// ResolverConfig is the subset of the configuration controlling provider
// link resolution.
type ResolverConfig struct {
	DefaultProvider string        `yaml:"default_provider" env:"DEFAULT_PROVIDER" env-default:"VOE"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"30s" validate:"gte=1s"`
}

// LoadFromFile loads a YAML configuration file in to this config,
// overlaying matching environment variables, then validates and
// normalises the result.
func (config *NaiaConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration from %s - %w", configPath, err)
	}

	return config.finalise()
}

// LoadFromEnv populates this config from environment variables and
// defaults alone, then validates and normalises the result.
func (config *NaiaConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment - %w", err)
	}

	return config.finalise()
}

func (config *NaiaConfig) finalise() error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("configuration is invalid - %w", err)
	}

	outputDir, err := config.resolveOutputDir()
	if err != nil {
		return err
	}
	config.Downloads.OutputDir = outputDir

	return nil
}

// resolveOutputDir expands a user supplied output directory, or derives
// the default (a naia directory under the users Downloads folder) when
// none was given.
func (config *NaiaConfig) resolveOutputDir() (string, error) {
	if config.Downloads.OutputDir != "" {
		expanded, err := homedir.Expand(config.Downloads.OutputDir)
		if err != nil {
			return "", fmt.Errorf("failed to expand output directory %s - %w", config.Downloads.OutputDir, err)
		}

		return expanded, nil
	}

	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to derive user home directory - %w", err)
	}

	return filepath.Join(home, "Downloads", "naia"), nil
}
