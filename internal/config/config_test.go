package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"ModelsDir", cfg.ModelsDir, "~/.local/share/modelfetch/models"},
		{"CacheDir", cfg.CacheDir, "~/.cache/modelfetch"},
		{"StateDir", cfg.StateDir, "~/.local/state/modelfetch"},
		{"CatalogFile", cfg.CatalogFile, ""},
		{"Agent", cfg.Transfer.Agent, AgentAria2},
		{"Binary", cfg.Transfer.Binary, "aria2c"},
		{"Source", cfg.Transfer.Source, "mirror"},
		{"GracePeriod", cfg.Transfer.GracePeriodSeconds, 5},
		{"SpaceCheck", cfg.Transfer.SpaceCheck(), true},
		{"LogLevel", cfg.Logging.Level, "info"},
		{"LogFormat", cfg.Logging.Format, "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestValidation_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	if errors := cfg.Validate(); len(errors) != 0 {
		t.Errorf("Validate() on default config returned errors: %v", errors)
	}
}

func TestValidation_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"empty models dir", func(c *Config) { c.ModelsDir = "" }, "models_dir"},
		{"empty cache dir", func(c *Config) { c.CacheDir = "" }, "cache_dir"},
		{"empty state dir", func(c *Config) { c.StateDir = "" }, "state_dir"},
		{"unknown agent", func(c *Config) { c.Transfer.Agent = "curl" }, "transfer.agent"},
		{"aria2c without binary", func(c *Config) { c.Transfer.Binary = "" }, "transfer.binary"},
		{"unknown source", func(c *Config) { c.Transfer.Source = "torrent" }, "transfer.source"},
		{"grace period too small", func(c *Config) { c.Transfer.GracePeriodSeconds = 0 }, "transfer.grace_period_seconds"},
		{"grace period too large", func(c *Config) { c.Transfer.GracePeriodSeconds = 301 }, "transfer.grace_period_seconds"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			found := false
			for _, err := range cfg.Validate() {
				if err.Path == tt.path {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Validate() should return error for %s", tt.path)
			}
		})
	}
}

func TestValidation_HTTPAgentNeedsNoBinary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transfer.Agent = AgentHTTP
	cfg.Transfer.Binary = ""

	if errors := cfg.Validate(); len(errors) != 0 {
		t.Errorf("Validate() returned errors: %v", errors)
	}
}

func TestLoadFrom_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
models_dir: /srv/models
transfer:
  agent: HTTP
  source: mirror-fallback
  preflight_space_check: false
logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.ModelsDir != "/srv/models" {
		t.Errorf("ModelsDir = %s, want /srv/models", cfg.ModelsDir)
	}
	if cfg.Transfer.Agent != AgentHTTP {
		t.Errorf("Agent = %s, want http", cfg.Transfer.Agent)
	}
	if cfg.Transfer.Source != "mirror-fallback" {
		t.Errorf("Source = %s, want mirror-fallback", cfg.Transfer.Source)
	}
	if cfg.Transfer.SpaceCheck() {
		t.Error("Expected explicit false to disable the space check")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.Logging.Level)
	}

	// Unspecified fields keep defaults, with the home directory expanded
	if cfg.Transfer.Binary != "aria2c" {
		t.Errorf("Binary = %s, want aria2c (default)", cfg.Transfer.Binary)
	}
	if strings.HasPrefix(cfg.CacheDir, "~") {
		t.Errorf("CacheDir should be expanded, got %s", cfg.CacheDir)
	}
}

func TestLoadFrom_EnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("models_dir: /srv/models\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	modelsDir := filepath.Join(tmpDir, "env-models")
	t.Setenv(EnvModelsDir, modelsDir)
	t.Setenv(EnvStateDir, filepath.Join(tmpDir, "env-state"))

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.ModelsDir != modelsDir {
		t.Errorf("ModelsDir = %s, want %s from environment", cfg.ModelsDir, modelsDir)
	}
	if cfg.StateDir != filepath.Join(tmpDir, "env-state") {
		t.Errorf("StateDir = %s, want env override", cfg.StateDir)
	}
}

func TestLoad_MergesSystemAndUser(t *testing.T) {
	systemDir := t.TempDir()
	home := t.TempDir()
	t.Setenv("MODELFETCH_CONFIG_DIR", systemDir)
	t.Setenv("HOME", home)
	t.Setenv(EnvModelsDir, "")
	t.Setenv(EnvCacheDir, "")
	t.Setenv(EnvStateDir, "")

	system := "models_dir: /srv/system-models\ncache_dir: /srv/cache\n"
	if err := os.WriteFile(filepath.Join(systemDir, "config.yaml"), []byte(system), 0o600); err != nil {
		t.Fatal(err)
	}
	userDir := filepath.Join(home, ".modelfetch")
	if err := os.MkdirAll(userDir, 0o750); err != nil {
		t.Fatal(err)
	}
	user := "models_dir: /srv/user-models\nlogging:\n  format: text\n"
	if err := os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(user), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ModelsDir != "/srv/user-models" {
		t.Errorf("ModelsDir = %s, user config should win", cfg.ModelsDir)
	}
	if cfg.CacheDir != "/srv/cache" {
		t.Errorf("CacheDir = %s, want system value", cfg.CacheDir)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("LogFormat = %s, want text", cfg.Logging.Format)
	}
}

func TestLoadFrom_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("transfer:\n  agent: wget\n"), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadFrom(configPath)
	if err == nil || !strings.Contains(err.Error(), "transfer.agent") {
		t.Errorf("LoadFrom() should report transfer.agent, got %v", err)
	}
}

func TestLoadFrom_NonexistentFile(t *testing.T) {
	if _, err := LoadFrom("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFrom() should return error for nonexistent file")
	}
}

func TestLoadFrom_MalformedYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	malformedContent := `
models_dir: /srv/models
  invalid_indentation: value
cache_dir: /srv/cache
`
	if err := os.WriteFile(configPath, []byte(malformedContent), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadFrom(configPath); err == nil {
		t.Error("LoadFrom() should return error for malformed YAML")
	}
}

func TestMergeConfig(t *testing.T) {
	dst := DefaultConfig()
	off := false

	src := Config{
		CacheDir: "/tmp/cache",
		Transfer: TransferConfig{
			Source:              "primary",
			PreflightSpaceCheck: &off,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}

	mergeConfig(&dst, &src)

	if dst.CacheDir != "/tmp/cache" {
		t.Errorf("CacheDir = %s, want /tmp/cache", dst.CacheDir)
	}
	if dst.Transfer.Source != "primary" {
		t.Errorf("Source = %s, want primary", dst.Transfer.Source)
	}
	if dst.Transfer.SpaceCheck() {
		t.Error("SpaceCheck should be disabled by overlay")
	}
	if dst.Logging.Level != "warn" {
		t.Errorf("LogLevel = %s, want warn", dst.Logging.Level)
	}

	// Preserved defaults
	if dst.Transfer.Agent != AgentAria2 {
		t.Errorf("Agent = %s, want aria2c (default)", dst.Transfer.Agent)
	}
	if dst.Logging.Format != "json" {
		t.Errorf("LogFormat = %s, want json (default)", dst.Logging.Format)
	}

	// Overlay without the flag keeps the merged value
	mergeConfig(&dst, &Config{})
	if dst.Transfer.SpaceCheck() {
		t.Error("Absent flag must not reset SpaceCheck")
	}
}

func TestSystemConfigPath(t *testing.T) {
	t.Setenv("MODELFETCH_CONFIG_DIR", "")
	path := SystemConfigPath()
	if path != "/etc/modelfetch/config.yaml" {
		t.Errorf("SystemConfigPath() = %s, want /etc/modelfetch/config.yaml", path)
	}
}

func TestUserConfigPath(t *testing.T) {
	path := UserConfigPath()
	// May be empty if home dir not available
	if path != "" && filepath.Base(filepath.Dir(path)) != ".modelfetch" {
		t.Errorf("UserConfigPath() = %s, want it under .modelfetch", path)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Path:    "transfer.source",
		Message: "must be one of [mirror primary mirror-fallback]",
	}

	expected := "transfer.source: must be one of [mirror primary mirror-fallback]"
	if err.Error() != expected {
		t.Errorf("ValidationError.Error() = %s, want %s", err.Error(), expected)
	}
}

func TestFormatValidationErrors(t *testing.T) {
	if got := formatValidationErrors(nil); got != "" {
		t.Errorf("formatValidationErrors(nil) = %q, want empty", got)
	}

	single := []ValidationError{{Path: "test.field", Message: "error message"}}
	if got := formatValidationErrors(single); got != "test.field: error message" {
		t.Errorf("formatValidationErrors(single) = %q", got)
	}

	multiple := []ValidationError{
		{Path: "field1", Message: "error 1"},
		{Path: "field2", Message: "error 2"},
	}
	got := formatValidationErrors(multiple)
	if !strings.HasPrefix(got, "2 validation errors:") || !strings.Contains(got, "  - field2: error 2") {
		t.Errorf("formatValidationErrors(multiple) = %q", got)
	}
}
