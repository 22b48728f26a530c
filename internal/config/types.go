package config

// Config represents the complete modelfetch configuration
type Config struct {
	ModelsDir   string         `yaml:"models_dir"`
	CacheDir    string         `yaml:"cache_dir"`
	StateDir    string         `yaml:"state_dir"`
	CatalogFile string         `yaml:"catalog_file"`
	Transfer    TransferConfig `yaml:"transfer"`
	Logging     LoggingConfig  `yaml:"logging"`
}

// TransferConfig selects and tunes the transfer agent
type TransferConfig struct {
	Agent               string `yaml:"agent"`
	Binary              string `yaml:"binary"`
	Source              string `yaml:"source"`
	GracePeriodSeconds  int    `yaml:"grace_period_seconds"`
	PreflightSpaceCheck *bool  `yaml:"preflight_space_check"`
}

// SpaceCheck reports whether the free-space preflight is enabled (default true)
func (t TransferConfig) SpaceCheck() bool {
	return t.PreflightSpaceCheck == nil || *t.PreflightSpaceCheck
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}
