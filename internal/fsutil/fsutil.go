package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"modelfetch/internal/logging"
)

const (
	// DefaultDirPermissions is the default permission for created directories
	DefaultDirPermissions = 0o750
	// DefaultFilePermissions is the default permission for state files
	DefaultFilePermissions = 0o600
	// ModelFilePermissions is the permission for installed model files
	ModelFilePermissions = 0o644
)

// EnvDir returns the absolute directory named by envKey, or defaultDir when unset.
func EnvDir(envKey, defaultDir string) string {
	if env := strings.TrimSpace(os.Getenv(envKey)); env != "" {
		if abs, err := filepath.Abs(ExpandHome(env)); err == nil {
			return abs
		}
		return env
	}
	return ExpandHome(defaultDir)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// EnsureDirectory creates the directory and its parents if they don't exist.
// Concurrent creators racing on the same path both succeed.
func EnsureDirectory(path string) error {
	if err := os.MkdirAll(path, DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names an existing regular file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileSize returns the size of a regular file, or 0 when it does not exist.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}
	return info.Size()
}

// AtomicWriteFile writes data to a file atomically by first writing to a temp file
// and then renaming it to the target path. This ensures the file is never partially written.
func AtomicWriteFile(path string, data []byte, perm os.FileMode, logger *logging.Logger) error {
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// AtomicCopyFile copies src into a temp file next to dst, syncs it and renames
// it over dst. Readers of dst observe either the old file or the complete copy.
func AtomicCopyFile(src, dst string, perm os.FileMode, logger *logging.Logger) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer CloseWithError(in.Close, logger, src)

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to copy data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// CloseWithError closes a resource and logs any error if a logger is provided.
// This is useful for defer statements where close errors should be handled.
func CloseWithError(closer func() error, logger *logging.Logger, resource string) {
	if err := closer(); err != nil {
		logger.Warn("fs.close_failed", fmt.Sprintf("Failed to close %s", resource), map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func removeTemp(tmpPath string, logger *logging.Logger) {
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("fs.cleanup_failed", "Failed to remove temp file", map[string]interface{}{
			"path":  tmpPath,
			"error": err.Error(),
		})
	}
}
