// Package lease keeps two modelfetch processes from downloading into the
// same staging directory at once.
package lease

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modelfetch/internal/fsutil"
	"modelfetch/internal/logging"
)

const (
	// FileName is the name of the lease file inside the state directory
	FileName = "download_lease.json"

	// LockFileName guards every read-modify-write of the lease file
	LockFileName = "download_lease.lock"

	lockTimeout  = 5 * time.Second
	lockInterval = 20 * time.Millisecond

	// DefaultTimeout is the age after which a lease is stale even when its
	// holder cannot be checked
	DefaultTimeout = 24 * time.Hour
)

// Manager acquires and releases the download lease for the current process
type Manager struct {
	stateDir string
	logger   *logging.Logger
	timeout  time.Duration
	pid      int

	mu   sync.Mutex
	held bool

	// alive is swapped by tests
	alive func(pid int) bool
}

// NewManager creates a lease manager for stateDir
func NewManager(stateDir string, logger *logging.Logger) *Manager {
	return &Manager{
		stateDir: stateDir,
		logger:   logger,
		timeout:  DefaultTimeout,
		pid:      os.Getpid(),
		alive:    processAlive,
	}
}

// Path returns the lease file location
func (m *Manager) Path() string {
	return filepath.Join(m.stateDir, FileName)
}

// Acquire takes the lease for variant. A lease left behind by a dead process
// or older than the timeout is taken over. The check and the write happen
// under an exclusive lock on LockFileName.
func (m *Manager) Acquire(variant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.withFileLock(func() error { return m.acquireLocked(variant) })
}

func (m *Manager) acquireLocked(variant string) error {
	existing, err := m.load()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read lease: %w", err)
	}

	if existing != nil && existing.PID != m.pid {
		if m.stale(existing) {
			m.logger.Warn("lease.stale", "Taking over stale download lease", map[string]interface{}{
				"pid":         existing.PID,
				"variant":     existing.Variant,
				"age_seconds": existing.Age().Seconds(),
			})
		} else {
			return fmt.Errorf("%w: pid %d is downloading %s (since %s ago)",
				ErrHeld, existing.PID, existing.Variant, existing.Age().Round(time.Second))
		}
	}

	info := &Info{PID: m.pid, Variant: variant, SinceTS: time.Now().UTC()}
	if err := m.save(info); err != nil {
		return fmt.Errorf("failed to save lease: %w", err)
	}
	m.held = true

	m.logger.Debug("lease.acquired", "Download lease acquired", map[string]interface{}{
		"variant": variant,
		"pid":     m.pid,
	})
	return nil
}

// Release drops the lease if this process holds it
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.held {
		return nil
	}
	m.held = false

	return m.withFileLock(m.releaseLocked)
}

func (m *Manager) releaseLocked() error {
	existing, err := m.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read lease: %w", err)
	}
	if existing.PID != m.pid {
		m.logger.Warn("lease.taken_over", "Download lease was taken over", map[string]interface{}{
			"pid": existing.PID,
		})
		return nil
	}

	if err := os.Remove(m.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lease: %w", err)
	}
	return nil
}

// Status returns the current lease, or nil when none is held by a live process
func (m *Manager) Status() (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if info.PID != m.pid && m.stale(info) {
		return nil, nil
	}
	return info, nil
}

// ForceRelease removes the lease regardless of holder
func (m *Manager) ForceRelease() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.held = false
	return m.withFileLock(func() error {
		if err := os.Remove(m.Path()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove lease: %w", err)
		}
		m.logger.Warn("lease.forced", "Download lease forcibly removed", nil)
		return nil
	})
}

// withFileLock runs fn while holding the cross-process lock file
func (m *Manager) withFileLock(fn func() error) error {
	if err := fsutil.EnsureDirectory(m.stateDir); err != nil {
		return err
	}

	path := filepath.Join(m.stateDir, LockFileName)
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_RDWR, fsutil.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to open lease lock: %w", err)
	}
	defer fsutil.CloseWithError(f.Close, m.logger, path)

	deadline := time.Now().Add(lockTimeout)
	for {
		locked, lockErr := tryLock(f)
		if lockErr != nil {
			return fmt.Errorf("failed to lock %s: %w", path, lockErr)
		}
		if locked {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: lease lock busy for %s", ErrHeld, lockTimeout)
		}
		time.Sleep(lockInterval)
	}
	defer func() {
		if err := unlock(f); err != nil {
			m.logger.Warn("lease.unlock_failed", "Failed to unlock lease lock", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return fn()
}

func (m *Manager) stale(info *Info) bool {
	return !m.alive(info.PID) || info.Age() > m.timeout
}

func (m *Manager) load() (*Info, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lease: %w", err)
	}
	return &info, nil
}

func (m *Manager) save(info *Info) error {
	if err := fsutil.EnsureDirectory(m.stateDir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lease: %w", err)
	}
	return fsutil.AtomicWriteFile(m.Path(), data, fsutil.DefaultFilePermissions, m.logger)
}
