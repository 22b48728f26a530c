package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modelfetch/internal/catalog"
	"modelfetch/internal/fsutil"
	"modelfetch/internal/logging"
)

// ModelExtension is the file extension of ggml model files
const ModelExtension = ".bin"

// Library manages installed model files in the flat models directory and
// their inventory records.
type Library struct {
	state     *StateManager
	logger    *logging.Logger
	modelsDir string
}

// NewLibrary creates a library over modelsDir with its inventory in stateDir
func NewLibrary(stateDir, modelsDir string, logger *logging.Logger) *Library {
	return &Library{
		state:     NewStateManager(stateDir, logger),
		logger:    logger,
		modelsDir: modelsDir,
	}
}

// ModelsDir returns the directory installed files live in
func (l *Library) ModelsDir() string {
	return l.modelsDir
}

// Path returns the final installed path of v
func (l *Library) Path(v catalog.Variant) string {
	return filepath.Join(l.modelsDir, v.InstalledFilename)
}

// IsInstalled reports whether the installed file of v exists
func (l *Library) IsInstalled(v catalog.Variant) bool {
	return fsutil.Exists(l.Path(v))
}

// Files scans the models directory for model files
func (l *Library) Files() ([]Entry, error) {
	if l.modelsDir == "" {
		return []Entry{}, nil
	}

	entries, err := os.ReadDir(l.modelsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}

	files := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ModelExtension) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			l.logger.Warn("models.scan.stat_failed", "Failed to get file info", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}

		files = append(files, Entry{
			Filename:    entry.Name(),
			Path:        filepath.Join(l.modelsDir, entry.Name()),
			Size:        info.Size(),
			InstalledAt: info.ModTime().UTC(),
		})
	}

	return files, nil
}

// HasType reports whether any "*ggml*<type>*.bin" file is installed
func (l *Library) HasType(modelType string) (bool, error) {
	if strings.ContainsAny(modelType, `*?[\/`) {
		return false, fmt.Errorf("invalid model type %q", modelType)
	}
	matches, err := filepath.Glob(filepath.Join(l.modelsDir, "*ggml*"+modelType+"*"+ModelExtension))
	if err != nil {
		return false, fmt.Errorf("failed to search models directory: %w", err)
	}
	for _, match := range matches {
		if info, statErr := os.Stat(match); statErr == nil && info.Mode().IsRegular() {
			return true, nil
		}
	}
	return false, nil
}

// Record hashes the installed file of v and stores its inventory entry
func (l *Library) Record(v catalog.Variant, source string) (Entry, error) {
	path := l.Path(v)
	digest, size, err := Digest(path)
	if err != nil {
		return Entry{}, err
	}

	now := time.Now().UTC()
	entry := Entry{
		Variant:     v.ID,
		Filename:    v.InstalledFilename,
		Path:        path,
		Size:        size,
		Digest:      digest,
		Source:      source,
		InstalledAt: now,
		VerifiedAt:  now,
	}
	if err := l.state.Put(entry); err != nil {
		return Entry{}, err
	}

	l.logger.Info("models.recorded", "Installed model recorded", map[string]interface{}{
		"variant": v.ID,
		"size":    size,
		"digest":  digest,
	})

	return entry, nil
}

// Sync reconciles the inventory with the models directory: entries whose
// file vanished are dropped, catalog files installed by other means are
// added without a digest, and entries whose size changed lose their digest.
func (l *Library) Sync(cat *catalog.Catalog) error {
	files, err := l.Files()
	if err != nil {
		return err
	}
	onDisk := make(map[string]Entry, len(files))
	for _, f := range files {
		onDisk[f.Filename] = f
	}

	state, err := l.state.Load()
	if err != nil {
		return err
	}
	recorded := make(map[string]Entry, len(state.Items))
	for _, item := range state.Items {
		recorded[item.Variant] = item
	}

	items := make([]Entry, 0, len(state.Items))
	for _, v := range cat.All() {
		file, installed := onDisk[v.InstalledFilename]
		if !installed {
			continue
		}

		entry, known := recorded[v.ID]
		switch {
		case !known:
			file.Variant = v.ID
			entry = file
		case entry.Size != file.Size:
			l.logger.Warn("models.sync.size_changed", "Installed file changed size", map[string]interface{}{
				"variant":  v.ID,
				"recorded": entry.Size,
				"actual":   file.Size,
			})
			entry.Size = file.Size
			entry.Digest = ""
			entry.VerifiedAt = time.Time{}
		}
		entry.Path = file.Path
		items = append(items, entry)
	}

	state.Items = items
	return l.state.Save(state)
}

// Entries returns the recorded inventory
func (l *Library) Entries() ([]Entry, error) {
	state, err := l.state.Load()
	if err != nil {
		return nil, err
	}
	return state.Items, nil
}

// Stats returns inventory statistics
func (l *Library) Stats() (*Stats, error) {
	return l.state.GetStats()
}

// Verify recomputes the digest of v's installed file and compares it with the
// inventory. An entry without a digest adopts the computed one.
func (l *Library) Verify(v catalog.Variant) (VerifyResult, error) {
	entry, err := l.state.Get(v.ID)
	if err != nil {
		return VerifyResult{}, err
	}

	actual, size, err := Digest(l.Path(v))
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{
		Variant:  v.ID,
		Path:     l.Path(v),
		Expected: entry.Digest,
		Actual:   actual,
	}
	if entry.Digest == "" {
		result.Expected = actual
	}
	result.OK = result.Expected == actual

	if result.OK {
		entry.Digest = actual
		entry.Size = size
		entry.VerifiedAt = time.Now().UTC()
		if err := l.state.Put(entry); err != nil {
			return result, err
		}
	} else {
		l.logger.Warn("models.verify.mismatch", "Installed file does not match recorded digest", map[string]interface{}{
			"variant":  v.ID,
			"expected": result.Expected,
			"actual":   actual,
		})
	}

	return result, nil
}

// Delete removes v's installed file and its inventory entry
func (l *Library) Delete(v catalog.Variant) error {
	l.logger.Info("models.delete.started", "Deleting model", map[string]interface{}{
		"variant": v.ID,
	})

	path := l.Path(v)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("model file not found: %s", v.InstalledFilename)
		}
		return fmt.Errorf("failed to remove model file: %w", err)
	}

	if err := l.state.Remove(v.ID); err != nil {
		l.logger.Warn("models.delete.state_update_failed", "Failed to update inventory", map[string]interface{}{
			"error": err.Error(),
		})
	}

	l.logger.Info("models.delete.completed", "Model deleted", map[string]interface{}{
		"variant": v.ID,
		"path":    path,
	})

	return nil
}
