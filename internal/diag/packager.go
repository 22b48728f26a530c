package diag

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"modelfetch/internal/fsutil"
	"modelfetch/internal/logging"
)

const manifestName = "diag_manifest.json"

// Packager writes diagnostic ZIP packages
type Packager struct {
	config    *Config
	collector *Collector
	logger    *logging.Logger
}

// NewPackager creates a packager
func NewPackager(config *Config, logger *logging.Logger) *Packager {
	return &Packager{
		config:    config,
		collector: NewCollector(config, logger),
		logger:    logger,
	}
}

// CreatePackage collects every artifact and writes the ZIP. Collection errors
// are logged and produce a partial package.
func (p *Packager) CreatePackage(ctx context.Context) (string, error) {
	p.logger.Info("diag.package.start", "Creating diagnostic package", map[string]interface{}{
		"output": p.config.OutputPath,
	})

	all := make(map[string][]byte)
	collect := func(name string, fn func() (map[string][]byte, error)) {
		files, err := fn()
		if err != nil {
			p.logger.Error("diag.package."+name+"_error", "Failed to collect "+name, map[string]interface{}{
				"error": err.Error(),
			})
		}
		for path, content := range files {
			all[path] = content
		}
	}

	collect("logs", p.collector.CollectLogs)
	collect("config", p.collector.CollectConfig)
	collect("state", p.collector.CollectState)
	collect("sysinfo", func() (map[string][]byte, error) { return p.collector.CollectSystemInfo(ctx) })

	manifest, err := json.MarshalIndent(p.manifest(all), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	all[manifestName] = manifest

	if err := p.writeZIP(all); err != nil {
		return "", fmt.Errorf("failed to create ZIP: %w", err)
	}

	p.logger.Info("diag.package.complete", "Diagnostic package created", map[string]interface{}{
		"output":     p.config.OutputPath,
		"file_count": len(all),
	})
	return p.config.OutputPath, nil
}

func (p *Packager) manifest(files map[string][]byte) *Manifest {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	m := &Manifest{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Host:      hostname,
		Version:   p.config.Version,
		Files:     make([]ManifestFile, 0, len(files)),
	}
	for _, path := range sortedKeys(files) {
		m.Files = append(m.Files, ManifestFile{
			Path:      path,
			SizeBytes: int64(len(files[path])),
			Digest:    Digest(files[path]),
		})
	}
	return m
}

func (p *Packager) writeZIP(files map[string][]byte) error {
	f, err := os.OpenFile(p.config.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fsutil.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer fsutil.CloseWithError(f.Close, p.logger, p.config.OutputPath)

	zw := zip.NewWriter(f)
	for _, path := range sortedKeys(files) {
		w, createErr := zw.Create(path)
		if createErr != nil {
			return fmt.Errorf("failed to add %s: %w", path, createErr)
		}
		if _, writeErr := w.Write(files[path]); writeErr != nil {
			return fmt.Errorf("failed to write %s: %w", path, writeErr)
		}
	}
	return zw.Close()
}

func sortedKeys(files map[string][]byte) []string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
