package config

const (
	// AgentAria2 runs transfers through the aria2c binary
	AgentAria2 = "aria2c"
	// AgentHTTP runs transfers with the built-in HTTP client
	AgentHTTP = "http"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	spaceCheck := true
	return Config{
		ModelsDir: "~/.local/share/modelfetch/models",
		CacheDir:  "~/.cache/modelfetch",
		StateDir:  "~/.local/state/modelfetch",
		Transfer: TransferConfig{
			Agent:               AgentAria2,
			Binary:              "aria2c",
			Source:              "mirror",
			GracePeriodSeconds:  5,
			PreflightSpaceCheck: &spaceCheck,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
