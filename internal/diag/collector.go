package diag

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/crypto/blake2b"

	"modelfetch/internal/fsutil"
	"modelfetch/internal/logging"
)

// stateFiles are copied from the state directory when present
var stateFiles = []string{"models_state.json", "ui_state.json", "download_lease.json", "download_history.jsonl"}

const agentProbeTimeout = 5 * time.Second

// Collector gathers diagnostic artifacts
type Collector struct {
	config   *Config
	redactor *Redactor
	logger   *logging.Logger
}

// NewCollector creates a collector
func NewCollector(config *Config, logger *logging.Logger) *Collector {
	return &Collector{
		config:   config,
		redactor: NewRedactor(),
		logger:   logger,
	}
}

// CollectLogs returns the redacted log file and its rotated siblings
func (c *Collector) CollectLogs() (map[string][]byte, error) {
	files := make(map[string][]byte)
	if !c.config.IncludeLogs || c.config.LogFile == "" {
		return files, nil
	}

	matches, err := filepath.Glob(c.config.LogFile + "*")
	if err != nil {
		return files, fmt.Errorf("failed to list log files: %w", err)
	}
	if len(matches) == 0 {
		c.logger.Warn("diag.collect.logs.missing", "Log file not found", map[string]interface{}{
			"path": c.config.LogFile,
		})
	}

	for _, path := range matches {
		content, readErr := os.ReadFile(filepath.Clean(path))
		if readErr != nil {
			c.logger.Warn("diag.collect.logs.read_error", "Failed to read log file", map[string]interface{}{
				"path":  path,
				"error": readErr.Error(),
			})
			continue
		}
		files["logs/"+filepath.Base(path)] = []byte(c.redactor.Redact(string(content)))
	}

	return files, nil
}

// CollectConfig returns every existing configuration file, redacted
func (c *Collector) CollectConfig() (map[string][]byte, error) {
	files := make(map[string][]byte)
	if !c.config.IncludeConfig {
		return files, nil
	}

	for i, path := range c.config.ConfigPaths {
		if path == "" || !fsutil.Exists(path) {
			continue
		}
		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return files, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		files[fmt.Sprintf("config/%d-%s", i, filepath.Base(path))] = []byte(c.redactor.Redact(string(content)))
	}

	return files, nil
}

// CollectState returns the files kept in the state directory
func (c *Collector) CollectState() (map[string][]byte, error) {
	files := make(map[string][]byte)
	if c.config.StateDir == "" {
		return files, nil
	}

	for _, name := range stateFiles {
		content, err := os.ReadFile(filepath.Join(c.config.StateDir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return files, fmt.Errorf("failed to read %s: %w", name, err)
		}
		files["state/"+name] = []byte(c.redactor.Redact(string(content)))
	}

	if c.config.CacheDir != "" {
		listing := listDir(filepath.Join(c.config.CacheDir, "whisper_models"))
		files["state/staging.txt"] = []byte(listing)
	}

	return files, nil
}

// CollectSystemInfo describes the host, the directories and the agent
func (c *Collector) CollectSystemInfo(ctx context.Context) (map[string][]byte, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	info := map[string]interface{}{
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"host":               hostname,
		"modelfetch_version": c.config.Version,
		"go_version":         runtime.Version(),
		"os":                 runtime.GOOS,
		"arch":               runtime.GOARCH,
		"models_dir":         c.config.ModelsDir,
		"cache_dir":          c.config.CacheDir,
	}

	if free, spaceErr := fsutil.FreeSpace(c.config.CacheDir); spaceErr == nil {
		info["cache_free"] = humanize.IBytes(free)
	}
	if c.config.AgentBinary != "" {
		info["agent"] = c.inspectAgent(ctx)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal system info: %w", err)
	}
	return map[string][]byte{"system_info.json": data}, nil
}

// inspectAgent reports where the agent binary resolves and its version banner
func (c *Collector) inspectAgent(ctx context.Context) map[string]string {
	out := map[string]string{"binary": c.config.AgentBinary}

	path, err := exec.LookPath(c.config.AgentBinary)
	if err != nil {
		out["error"] = err.Error()
		return out
	}
	out["path"] = path

	ctx, cancel := context.WithTimeout(ctx, agentProbeTimeout)
	defer cancel()

	// #nosec G204 -- binary comes from configuration
	banner, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		out["error"] = err.Error()
		return out
	}
	if line, _, _ := strings.Cut(string(banner), "\n"); line != "" {
		out["version"] = strings.TrimSpace(line)
	}
	return out
}

func listDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err.Error() + "\n"
	}

	var b strings.Builder
	for _, e := range entries {
		info, infoErr := e.Info()
		if infoErr != nil {
			continue
		}
		fmt.Fprintf(&b, "%s\t%d\t%s\n", e.Name(), info.Size(), info.ModTime().UTC().Format(time.RFC3339))
	}
	return b.String()
}

// Digest returns the hex BLAKE2b-256 of data
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
