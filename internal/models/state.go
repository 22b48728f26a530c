package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"modelfetch/internal/fsutil"
	"modelfetch/internal/logging"
)

const (
	// StateFileName is the name of the inventory state file
	StateFileName = "models_state.json"
)

// ErrNotRecorded is returned when a variant has no inventory entry
var ErrNotRecorded = errors.New("variant not recorded in inventory")

// StateManager manages persistence of the inventory
type StateManager struct {
	stateDir string
	logger   *logging.Logger
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string, logger *logging.Logger) *StateManager {
	return &StateManager{
		stateDir: stateDir,
		logger:   logger,
	}
}

// Path returns the full path to the state file
func (m *StateManager) Path() string {
	return filepath.Join(m.stateDir, StateFileName)
}

// Load loads the inventory from disk; a missing file is an empty inventory
func (m *StateManager) Load() (*State, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Items: []Entry{}}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.Items == nil {
		state.Items = []Entry{}
	}

	return &state, nil
}

// Save writes the inventory atomically
func (m *StateManager) Save(state *State) error {
	if err := fsutil.EnsureDirectory(m.stateDir); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	state.Updated = time.Now().UTC()
	sort.Slice(state.Items, func(i, j int) bool {
		return state.Items[i].Variant < state.Items[j].Variant
	})

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := fsutil.AtomicWriteFile(m.Path(), data, fsutil.DefaultFilePermissions, m.logger); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	m.logger.Debug("models.state.saved", "Inventory saved", map[string]interface{}{
		"count": len(state.Items),
	})

	return nil
}

// Put adds or replaces the entry for entry.Variant
func (m *StateManager) Put(entry Entry) error {
	state, err := m.Load()
	if err != nil {
		return err
	}

	found := false
	for i, item := range state.Items {
		if item.Variant == entry.Variant {
			state.Items[i] = entry
			found = true
			break
		}
	}
	if !found {
		state.Items = append(state.Items, entry)
	}

	return m.Save(state)
}

// Remove drops the entry for variant; removing an unknown variant is not an error
func (m *StateManager) Remove(variant string) error {
	state, err := m.Load()
	if err != nil {
		return err
	}

	filtered := make([]Entry, 0, len(state.Items))
	for _, item := range state.Items {
		if item.Variant != variant {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == len(state.Items) {
		return nil
	}

	state.Items = filtered
	return m.Save(state)
}

// Get returns the entry for variant or ErrNotRecorded
func (m *StateManager) Get(variant string) (Entry, error) {
	state, err := m.Load()
	if err != nil {
		return Entry{}, err
	}
	for _, item := range state.Items {
		if item.Variant == variant {
			return item, nil
		}
	}
	return Entry{}, fmt.Errorf("%s: %w", variant, ErrNotRecorded)
}

// GetStats returns inventory statistics
func (m *StateManager) GetStats() (*Stats, error) {
	state, err := m.Load()
	if err != nil {
		return nil, err
	}

	stats := &Stats{Count: len(state.Items)}
	for i := range state.Items {
		stats.TotalSize += state.Items[i].Size
		if stats.Newest == nil || state.Items[i].InstalledAt.After(stats.Newest.InstalledAt) {
			entry := state.Items[i]
			stats.Newest = &entry
		}
	}

	return stats, nil
}
