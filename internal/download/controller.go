package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"modelfetch/internal/catalog"
	"modelfetch/internal/fsutil"
	"modelfetch/internal/install"
	"modelfetch/internal/logging"
	"modelfetch/internal/models"
	"modelfetch/internal/progress"
	"modelfetch/internal/transfer"
)

// Options configures a Controller
type Options struct {
	Catalog  *catalog.Catalog
	Library  *models.Library
	Agent    transfer.Agent
	CacheDir string
	Policy   SourcePolicy
	// SpaceCheck enables the free-space preflight
	SpaceCheck bool
	// Lease, when set, is held for the lifetime of every operation
	Lease    Lease
	Observer Observer
	Logger   *logging.Logger
}

// Controller is the single-slot download state machine
type Controller struct {
	catalog    *catalog.Catalog
	library    *models.Library
	agent      transfer.Agent
	installer  *install.Installer
	observer   Observer
	lease      Lease
	logger     *logging.Logger
	stagingDir string
	policy     SourcePolicy
	spaceCheck bool
	freeSpace  func(path string) (uint64, error)

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	op     *Operation
	idle   chan struct{} // closed while no operation is active
	closed bool
}

// New creates a controller
func New(opts Options) (*Controller, error) {
	if opts.Catalog == nil {
		return nil, errors.New("download: catalog is required")
	}
	if opts.Library == nil {
		return nil, errors.New("download: model library is required")
	}
	if opts.Agent == nil {
		return nil, errors.New("download: transfer agent is required")
	}
	if opts.CacheDir == "" {
		return nil, errors.New("download: cache directory is required")
	}
	if opts.Policy == "" {
		opts.Policy = SourceMirror
	}
	if opts.Observer == nil {
		opts.Observer = ObserverFuncs{}
	}

	idle := make(chan struct{})
	close(idle)

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		catalog:    opts.Catalog,
		library:    opts.Library,
		agent:      opts.Agent,
		installer:  install.NewInstaller(opts.Logger),
		observer:   opts.Observer,
		lease:      opts.Lease,
		logger:     opts.Logger,
		stagingDir: filepath.Join(opts.CacheDir, StagingSubdir),
		policy:     opts.Policy,
		spaceCheck: opts.SpaceCheck,
		freeSpace:  fsutil.FreeSpace,
		ctx:        ctx,
		cancel:     cancel,
		idle:       idle,
	}, nil
}

// StagingDir returns the directory partial downloads are written to
func (c *Controller) StagingDir() string {
	return c.stagingDir
}

// Catalog returns the catalog the controller serves
func (c *Controller) Catalog() *catalog.Catalog {
	return c.catalog
}

// IsVariantInstalled reports whether the installed file of the variant exists
func (c *Controller) IsVariantInstalled(variantID string) bool {
	v, err := c.catalog.Lookup(variantID)
	if err != nil {
		return false
	}
	return c.library.IsInstalled(v)
}

// Variants lists the catalog with installed and partial-download markers
func (c *Controller) Variants() []VariantStatus {
	all := c.catalog.All()
	out := make([]VariantStatus, 0, len(all))
	for _, v := range all {
		out = append(out, VariantStatus{
			Variant:      v,
			Installed:    c.library.IsInstalled(v),
			PartialBytes: fsutil.FileSize(filepath.Join(c.stagingDir, v.InstalledFilename)),
		})
	}
	return out
}

// RequestDownload starts a download of the variant in the background.
// It returns ErrAlreadyInstalled, ErrBusy, ErrUnknownVariant or
// ErrInsufficientSpace without starting anything; otherwise exactly one
// Outcome is delivered to the observer later.
func (c *Controller) RequestDownload(variantID string) error {
	v, err := c.catalog.Lookup(variantID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.op != nil {
		c.logger.Info("download.rejected", "Download already in progress", map[string]interface{}{
			"variant": v.ID,
			"active":  c.op.Variant.ID,
		})
		return ErrBusy
	}

	op := &Operation{
		Variant:     v,
		StagingPath: filepath.Join(c.stagingDir, v.InstalledFilename),
		FinalPath:   c.library.Path(v),
		State:       StatePending,
		Started:     time.Now(),
	}

	if fsutil.Exists(op.FinalPath) {
		c.logger.Info("download.rejected", "Model already installed", map[string]interface{}{
			"variant": v.ID,
			"path":    op.FinalPath,
		})
		return ErrAlreadyInstalled
	}

	urls := c.policy.URLs(v)
	if len(urls) == 0 {
		return fmt.Errorf("%w: %s (policy %s)", ErrNoSource, v.ID, c.policy)
	}

	if err := c.preflight(op); err != nil {
		return err
	}

	if c.lease != nil {
		if err := c.lease.Acquire(v.ID); err != nil {
			c.logger.Info("download.rejected", "Download lease unavailable", map[string]interface{}{
				"variant": v.ID,
				"error":   err.Error(),
			})
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
	}

	c.op = op
	c.idle = make(chan struct{})

	c.logger.Info("download.started", "Download started", map[string]interface{}{
		"variant": v.ID,
		"source":  urls[0],
		"staging": op.StagingPath,
		"final":   op.FinalPath,
		"policy":  string(c.policy),
	})

	c.startLocked(op, urls[0])
	go c.supervise(op, urls)

	return nil
}

// startLocked launches a transfer for op from url; c.mu must be held
func (c *Controller) startLocked(op *Operation, url string) {
	op.Source = url
	op.State = StateConnecting
	op.LastProgress = progress.Event{}
	op.transfer = c.agent.Start(c.ctx, transfer.Request{
		SourceURL:       url,
		StagingDir:      c.stagingDir,
		StagingFilename: op.Variant.InstalledFilename,
	})
}

// preflight rejects the request when the staging volume cannot hold the rest of the file
func (c *Controller) preflight(op *Operation) error {
	if !c.spaceCheck {
		return nil
	}
	size, ok := op.Variant.SizeBytes()
	if !ok {
		return nil
	}

	have := uint64(fsutil.FileSize(op.StagingPath))
	if have >= size {
		return nil
	}
	need := size - have

	free, err := c.freeSpace(existingAncestor(c.stagingDir))
	if err != nil {
		c.logger.Warn("download.preflight_skipped", "Could not determine free space", map[string]interface{}{
			"dir":   c.stagingDir,
			"error": err.Error(),
		})
		return nil
	}

	if free < need {
		c.logger.Warn("download.rejected", "Insufficient free space", map[string]interface{}{
			"variant": op.Variant.ID,
			"need":    need,
			"free":    free,
		})
		return fmt.Errorf("%w: need %s, %s available in %s",
			ErrInsufficientSpace, humanize.Bytes(need), humanize.Bytes(free), c.stagingDir)
	}
	return nil
}

// existingAncestor walks up from dir to the nearest directory that exists
func existingAncestor(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// supervise consumes transfer events for op until it reaches a terminal state
func (c *Controller) supervise(op *Operation, urls []string) {
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		tr := op.transfer
		c.mu.Unlock()

		terminal := c.consume(op, tr)

		switch terminal.Kind {
		case transfer.EventCompleted:
			c.complete(op)
			return

		case transfer.EventCancelled:
			c.finish(op, StateCancelled, Outcome{Kind: OutcomeCancelled, Path: op.StagingPath})
			return

		default:
			err := fmt.Errorf("%w: %s", ErrTransferFailed, terminal.Message)
			c.logger.Error("download.failed", "Download failed", map[string]interface{}{
				"variant":   op.Variant.ID,
				"source":    op.Source,
				"failure":   string(terminal.Failure),
				"exit_code": terminal.ExitCode,
				"error":     terminal.Message,
			})

			next := attempt + 1
			c.mu.Lock()
			retry := next < len(urls) && !op.cancelRequested && terminal.Failure == transfer.FailureTransfer
			if retry {
				c.logger.Info("download.failover", "Retrying from fallback source", map[string]interface{}{
					"variant": op.Variant.ID,
					"source":  urls[next],
				})
				c.startLocked(op, urls[next])
			}
			cancelled := op.cancelRequested
			c.mu.Unlock()

			if retry {
				continue
			}
			if cancelled {
				c.finish(op, StateCancelled, Outcome{Kind: OutcomeCancelled, Path: op.StagingPath})
				return
			}
			c.finish(op, StateFailed, Outcome{Kind: OutcomeError, Path: op.StagingPath, Err: err})
			return
		}
	}
}

// consume relays progress until the transfer's terminal event
func (c *Controller) consume(op *Operation, tr *transfer.Transfer) transfer.Event {
	var terminal transfer.Event
	for ev := range tr.Events() {
		if ev.Kind.Terminal() {
			terminal = ev
			continue
		}

		c.mu.Lock()
		op.LastProgress = ev.Progress
		op.State = StateInProgress
		op.notifying = true
		c.mu.Unlock()

		c.observer.OnProgress(op.Variant, ev.Progress)

		c.mu.Lock()
		op.notifying = false
		c.mu.Unlock()
	}
	return terminal
}

// complete installs the staged file after a successful transfer. A stop
// requested after the agent exited cleanly does not discard the download.
func (c *Controller) complete(op *Operation) {
	c.mu.Lock()
	op.State = StateInstalling
	c.mu.Unlock()

	if err := c.installer.Install(op.StagingPath, op.FinalPath); err != nil {
		c.logger.Error("download.install_failed", "Failed to install model", map[string]interface{}{
			"variant": op.Variant.ID,
			"error":   err.Error(),
		})
		c.finish(op, StateFailed, Outcome{Kind: OutcomeError, Path: op.StagingPath, Err: err})
		return
	}

	if _, err := c.library.Record(op.Variant, op.Source); err != nil {
		c.logger.Warn("download.record_failed", "Failed to record installed model", map[string]interface{}{
			"variant": op.Variant.ID,
			"error":   err.Error(),
		})
	}

	c.finish(op, StateSucceeded, Outcome{Kind: OutcomeSuccess, Path: op.FinalPath})
}

// finish returns the controller to idle, then notifies the observer
func (c *Controller) finish(op *Operation, state State, outcome Outcome) {
	outcome.Variant = op.Variant
	outcome.Source = op.Source
	outcome.Elapsed = time.Since(op.Started)

	if c.lease != nil {
		if err := c.lease.Release(); err != nil {
			c.logger.Warn("download.lease_release_failed", "Failed to release download lease", map[string]interface{}{
				"variant": op.Variant.ID,
				"error":   err.Error(),
			})
		}
	}

	c.mu.Lock()
	op.State = state
	op.transfer = nil
	if c.op == op {
		c.op = nil
		close(c.idle)
	}
	c.mu.Unlock()

	c.logger.Info("download.finished", "Download finished", map[string]interface{}{
		"variant": op.Variant.ID,
		"outcome": outcome.Kind.String(),
		"path":    outcome.Path,
	})

	c.observer.OnOutcome(outcome)
}

// CancelDownload stops the active download and blocks until its transfer has
// exited and the controller is idle. It returns false when nothing was
// cancelled: no download is active or the file is already being installed.
// While an OnProgress callback is running it returns once the transfer has
// exited, since idle is only reached after the callback returns.
func (c *Controller) CancelDownload() bool {
	c.mu.Lock()
	op := c.op
	if op == nil || op.State == StateInstalling {
		c.mu.Unlock()
		return false
	}
	op.cancelRequested = true
	tr := op.transfer
	idle := c.idle
	inCallback := op.notifying
	c.mu.Unlock()

	c.logger.Info("download.cancel_requested", "Cancelling download", map[string]interface{}{
		"variant": op.Variant.ID,
	})

	if tr != nil {
		tr.Cancel()
	}
	if !inCallback {
		<-idle
	}
	return true
}

// Status returns a snapshot of the active operation, if any
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.op == nil {
		return Snapshot{}
	}
	return Snapshot{
		Active:      true,
		Variant:     c.op.Variant,
		State:       c.op.State,
		Progress:    c.op.LastProgress,
		Source:      c.op.Source,
		StagingPath: c.op.StagingPath,
		FinalPath:   c.op.FinalPath,
	}
}

// Wait blocks until no download is active or ctx is done
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any active download and rejects further requests
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	for c.Status().Active {
		if c.CancelDownload() {
			continue
		}
		// An install in progress cannot be cancelled; let it finish
		_ = c.Wait(context.Background())
	}
	c.cancel()
}
