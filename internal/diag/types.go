// Package diag bundles logs, configuration and download state into a ZIP
// for bug reports.
package diag

import "time"

// Manifest lists every file in the package
type Manifest struct {
	Timestamp string         `json:"timestamp"`
	Host      string         `json:"host"`
	Version   string         `json:"modelfetch_version"`
	Files     []ManifestFile `json:"files"`
}

// ManifestFile describes one packaged file
type ManifestFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Digest    string `json:"blake2b"`
}

// Config configures diagnostic collection
type Config struct {
	LogFile     string
	ConfigPaths []string
	StateDir    string
	ModelsDir   string
	CacheDir    string
	AgentBinary string
	OutputPath  string

	IncludeLogs   bool
	IncludeConfig bool
	Version       string
}

// NewConfig creates a config that includes logs and configuration
func NewConfig(version string) *Config {
	return &Config{
		OutputPath:    generateOutputPath(time.Now()),
		IncludeLogs:   true,
		IncludeConfig: true,
		Version:       version,
	}
}

func generateOutputPath(now time.Time) string {
	return "modelfetch-diag-" + now.UTC().Format("20060102-150405") + ".zip"
}
