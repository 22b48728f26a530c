// Package install moves a completed download from the staging area into the
// models directory so that the final path only ever holds a complete file.
package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modelfetch/internal/fsutil"
	"modelfetch/internal/logging"
)

// ErrInstall wraps every filesystem failure of the install step
var ErrInstall = errors.New("install failed")

// Installer performs the install step
type Installer struct {
	logger *logging.Logger

	// rename is swapped in tests to simulate cross-volume moves
	rename func(oldpath, newpath string) error
}

// NewInstaller creates an installer logging to logger (may be nil)
func NewInstaller(logger *logging.Logger) *Installer {
	return &Installer{
		logger: logger,
		rename: os.Rename,
	}
}

// Install moves stagingPath to finalPath, creating parent directories.
//
// The move is a rename when both paths share a volume. Across volumes the
// file is copied into a temp file beside finalPath and renamed into place,
// after which the staged copy is removed. Re-running Install after a
// successful install is a no-op.
func (i *Installer) Install(stagingPath, finalPath string) error {
	stagedInfo, err := os.Stat(stagingPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && fsutil.Exists(finalPath) {
			i.logger.Debug("install.already_done", "Staged file absent and destination present", map[string]interface{}{
				"final_path": finalPath,
			})
			return nil
		}
		return fmt.Errorf("%w: staged file: %w", ErrInstall, err)
	}
	if !stagedInfo.Mode().IsRegular() {
		return fmt.Errorf("%w: staged path %s is not a regular file", ErrInstall, stagingPath)
	}

	if err := fsutil.EnsureDirectory(filepath.Dir(finalPath)); err != nil {
		return fmt.Errorf("%w: %w", ErrInstall, err)
	}

	err = i.rename(stagingPath, finalPath)
	if err == nil {
		i.logger.Info("install.completed", "Model installed", map[string]interface{}{
			"final_path": finalPath,
			"size":       stagedInfo.Size(),
			"method":     "rename",
		})
		return nil
	}

	if !isCrossDevice(err) {
		return fmt.Errorf("%w: move %s to %s: %w", ErrInstall, stagingPath, finalPath, err)
	}

	if err := fsutil.AtomicCopyFile(stagingPath, finalPath, fsutil.ModelFilePermissions, i.logger); err != nil {
		return fmt.Errorf("%w: copy across volumes: %w", ErrInstall, err)
	}

	if err := os.Remove(stagingPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		// The model is installed; a leftover staged copy is only wasted space
		i.logger.Warn("install.staging_cleanup_failed", "Failed to remove staged file", map[string]interface{}{
			"staging_path": stagingPath,
			"error":        err.Error(),
		})
	}

	i.logger.Info("install.completed", "Model installed", map[string]interface{}{
		"final_path": finalPath,
		"size":       stagedInfo.Size(),
		"method":     "copy",
	})
	return nil
}

// Install runs the install step with a default installer
func Install(stagingPath, finalPath string) error {
	return NewInstaller(nil).Install(stagingPath, finalPath)
}
