package config

import (
	"fmt"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateDirectories()...)
	errors = append(errors, c.validateTransfer()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateDirectories() []ValidationError {
	var errors []ValidationError

	dirs := []struct {
		path  string
		value string
	}{
		{"models_dir", c.ModelsDir},
		{"cache_dir", c.CacheDir},
		{"state_dir", c.StateDir},
	}
	for _, d := range dirs {
		if d.value == "" {
			errors = append(errors, ValidationError{Path: d.path, Message: "must not be empty"})
		}
	}

	return errors
}

func (c *Config) validateTransfer() []ValidationError {
	var errors []ValidationError

	validAgents := []string{AgentAria2, AgentHTTP}
	if !contains(validAgents, c.Transfer.Agent) {
		errors = append(errors, ValidationError{
			Path:    "transfer.agent",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validAgents, c.Transfer.Agent),
		})
	}

	if c.Transfer.Agent == AgentAria2 && c.Transfer.Binary == "" {
		errors = append(errors, ValidationError{
			Path:    "transfer.binary",
			Message: "must not be empty when transfer.agent is aria2c",
		})
	}

	validSources := []string{"mirror", "primary", "mirror-fallback"}
	if !contains(validSources, c.Transfer.Source) {
		errors = append(errors, ValidationError{
			Path:    "transfer.source",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validSources, c.Transfer.Source),
		})
	}

	if c.Transfer.GracePeriodSeconds < 1 || c.Transfer.GracePeriodSeconds > 300 {
		errors = append(errors, ValidationError{
			Path:    "transfer.grace_period_seconds",
			Message: fmt.Sprintf("must be between 1 and 300, got %d", c.Transfer.GracePeriodSeconds),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		errors = append(errors, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validLevels, c.Logging.Level),
		})
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, c.Logging.Format) {
		errors = append(errors, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validFormats, c.Logging.Format),
		})
	}

	return errors
}

// contains checks if a string is in a slice
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
