package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"modelfetch/internal/configdir"
	"modelfetch/internal/fsutil"
)

const (
	systemConfigFile = "config.yaml"
	userConfigDir    = ".modelfetch"
	userConfigFile   = "config.yaml"
)

// Environment variables overriding configured directories
const (
	EnvModelsDir = "MODELFETCH_MODELS_DIR"
	EnvCacheDir  = "MODELFETCH_CACHE_DIR"
	EnvStateDir  = "MODELFETCH_STATE_DIR"
)

// Load loads and merges configuration from system and user files
// Priority: defaults < system config < user config < environment
func Load() (Config, error) {
	cfg := DefaultConfig()

	systemPath := SystemConfigPath()
	if err := mergeConfigFile(&cfg, systemPath); err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to load system config: %w", err)
		}
	}

	if userPath := UserConfigPath(); userPath != "" {
		if err := mergeConfigFile(&cfg, userPath); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to load user config: %w", err)
			}
		}
	}

	return finalize(cfg)
}

// LoadFrom loads configuration from a specific file path over the defaults
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := mergeConfigFile(&cfg, path); err != nil {
		return cfg, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	return finalize(cfg)
}

// finalize applies environment overrides, expands paths and validates
func finalize(cfg Config) (Config, error) {
	cfg.ModelsDir = fsutil.EnvDir(EnvModelsDir, cfg.ModelsDir)
	cfg.CacheDir = fsutil.EnvDir(EnvCacheDir, cfg.CacheDir)
	cfg.StateDir = fsutil.EnvDir(EnvStateDir, cfg.StateDir)
	cfg.CatalogFile = fsutil.ExpandHome(cfg.CatalogFile)
	cfg.Logging.File = fsutil.ExpandHome(cfg.Logging.File)

	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		return cfg, fmt.Errorf("config.validation.error: %v", formatValidationErrors(validationErrors))
	}

	return cfg, nil
}

// mergeConfigFile reads a YAML file and merges it into the existing config
func mergeConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is constructed from trusted sources
	if err != nil {
		return err
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	mergeConfig(cfg, &overlay)

	return nil
}

// mergeConfig merges non-zero values from src into dst
func mergeConfig(dst, src *Config) {
	if src.ModelsDir != "" {
		dst.ModelsDir = src.ModelsDir
	}
	if src.CacheDir != "" {
		dst.CacheDir = src.CacheDir
	}
	if src.StateDir != "" {
		dst.StateDir = src.StateDir
	}
	if src.CatalogFile != "" {
		dst.CatalogFile = src.CatalogFile
	}

	if src.Transfer.Agent != "" {
		dst.Transfer.Agent = strings.ToLower(src.Transfer.Agent)
	}
	if src.Transfer.Binary != "" {
		dst.Transfer.Binary = src.Transfer.Binary
	}
	if src.Transfer.Source != "" {
		dst.Transfer.Source = strings.ToLower(src.Transfer.Source)
	}
	if src.Transfer.GracePeriodSeconds != 0 {
		dst.Transfer.GracePeriodSeconds = src.Transfer.GracePeriodSeconds
	}
	// Pointer so an explicit false in a later file wins
	if src.Transfer.PreflightSpaceCheck != nil {
		v := *src.Transfer.PreflightSpaceCheck
		dst.Transfer.PreflightSpaceCheck = &v
	}

	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
	if src.Logging.File != "" {
		dst.Logging.File = src.Logging.File
	}
}

// formatValidationErrors formats validation errors for display
func formatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	if len(errors) == 1 {
		return errors[0].Error()
	}
	result := fmt.Sprintf("%d validation errors:\n", len(errors))
	for _, err := range errors {
		result += "  - " + err.Error() + "\n"
	}
	return result
}

// SystemConfigPath returns the path to the system configuration file
func SystemConfigPath() string {
	return filepath.Join(configdir.ConfigDir(), systemConfigFile)
}

// UserConfigPath returns the path to the user configuration file
func UserConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, userConfigDir, userConfigFile)
}
