package transfer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"modelfetch/internal/fsutil"
	"modelfetch/internal/logging"
	"modelfetch/internal/progress"
)

const (
	// DefaultAria2Binary is the transfer agent looked up on PATH
	DefaultAria2Binary = "aria2c"

	// DefaultGracePeriod is how long a cancelled agent may take to exit after
	// SIGTERM before it is killed
	DefaultGracePeriod = 5 * time.Second

	maxLineBytes = 1024 * 1024
)

// Aria2 runs transfers through the aria2c command-line agent
type Aria2 struct {
	// Binary is the agent executable name or path
	Binary string
	// Env is appended to the inherited environment of the agent process
	Env []string
	// GracePeriod bounds the wait between SIGTERM and SIGKILL on cancel
	GracePeriod time.Duration

	logger *logging.Logger

	// argsPrefix is placed before the policy flags; used by tests that
	// re-execute the test binary as a fake agent
	argsPrefix []string
}

// NewAria2 creates an aria2c agent; an empty binary selects DefaultAria2Binary
func NewAria2(binary string, logger *logging.Logger) *Aria2 {
	if binary == "" {
		binary = DefaultAria2Binary
	}
	return &Aria2{
		Binary:      binary,
		GracePeriod: DefaultGracePeriod,
		logger:      logger,
	}
}

// Args builds the agent command line for req.
//
// The policy is fixed: resume enabled, 2 connections, 10s connect and idle
// timeouts, 2 tries with 1s between them, overwrite in place, and no
// certificate validation so mirrors with self-signed certificates work.
func (a *Aria2) Args(req Request) []string {
	return []string{
		"--show-console-readout=false",
		"--summary-interval=1",
		"-x2",
		"-s2",
		"--connect-timeout=10",
		"--timeout=10",
		"--max-tries=2",
		"--retry-wait=1",
		"--continue=true",
		"--auto-file-renaming=false",
		"--allow-overwrite=true",
		"--check-certificate=false",
		"--dir=" + req.StagingDir,
		"--out=" + req.StagingFilename,
		req.SourceURL,
	}
}

// Start launches the agent in the background and returns its handle
func (a *Aria2) Start(ctx context.Context, req Request) *Transfer {
	t, runCtx := newTransfer(ctx)
	go a.run(runCtx, t, req)
	return t
}

func (a *Aria2) run(ctx context.Context, t *Transfer, req Request) {
	if err := fsutil.EnsureDirectory(req.StagingDir); err != nil {
		a.logger.Error("transfer.staging_failed", "Failed to prepare staging directory", map[string]interface{}{
			"dir":   req.StagingDir,
			"error": err.Error(),
		})
		t.finish(failed(FailureStaging, err.Error(), -1))
		return
	}

	if size := fsutil.FileSize(req.StagingPath()); size > 0 {
		a.logger.Info("transfer.resume", "Found partial download, resuming", map[string]interface{}{
			"path":  req.StagingPath(),
			"bytes": size,
		})
	}

	args := append(append([]string{}, a.argsPrefix...), a.Args(req)...)

	// #nosec G204 -- binary comes from configuration, arguments are built above
	cmd := exec.CommandContext(ctx, a.Binary, args...)
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = a.gracePeriod()
	if len(a.Env) > 0 {
		cmd.Env = append(os.Environ(), a.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.finish(failed(FailureSpawn, err.Error(), -1))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.finish(failed(FailureSpawn, err.Error(), -1))
		return
	}

	a.logger.Info("transfer.command", "Running download command", map[string]interface{}{
		"command": a.Binary + " " + strings.Join(args, " "),
	})

	if err := cmd.Start(); err != nil {
		if t.cancelled(ctx) {
			t.finish(Event{Kind: EventCancelled, ExitCode: -1})
			return
		}
		a.logger.Error("transfer.spawn_failed", "Failed to launch transfer agent", map[string]interface{}{
			"binary": a.Binary,
			"error":  err.Error(),
		})
		t.finish(failed(FailureSpawn, err.Error(), -1))
		return
	}
	t.pid.Store(int64(cmd.Process.Pid))

	var errText lockedBuffer
	var g errgroup.Group
	g.Go(func() error { return consumeLines(stdout, t, nil) })
	g.Go(func() error { return consumeLines(stderr, t, &errText) })

	// Readers must drain before Wait closes the pipes
	if readErr := g.Wait(); readErr != nil {
		a.logger.Warn("transfer.read_failed", "Failed reading agent output", map[string]interface{}{
			"error": readErr.Error(),
		})
	}
	waitErr := cmd.Wait()

	// A zero exit wins over a stop requested after the agent had finished
	switch {
	case exitedCleanly(cmd, waitErr):
		a.logger.Info("transfer.completed", "Transfer completed", map[string]interface{}{
			"url":  req.SourceURL,
			"path": req.StagingPath(),
		})
		t.finish(Event{Kind: EventCompleted})

	case t.cancelled(ctx):
		a.logger.Info("transfer.cancelled", "Transfer cancelled", map[string]interface{}{
			"url": req.SourceURL,
			"pid": cmd.Process.Pid,
		})
		t.finish(Event{Kind: EventCancelled, ExitCode: exitCode(cmd, waitErr)})

	default:
		code := exitCode(cmd, waitErr)
		msg := strings.TrimSpace(errText.String())
		if msg == "" {
			msg = fmt.Sprintf("%s exited with code %d: %v", a.Binary, code, waitErr)
		}
		a.logger.Error("transfer.failed", "Transfer failed", map[string]interface{}{
			"url":       req.SourceURL,
			"exit_code": code,
			"error":     msg,
		})
		t.finish(failed(FailureTransfer, msg, code))
	}
}

func (a *Aria2) gracePeriod() time.Duration {
	if a.GracePeriod <= 0 {
		return DefaultGracePeriod
	}
	return a.GracePeriod
}

// consumeLines parses every line of r as a status line. When capture is set,
// the raw text is kept for failure reporting. Unreadable output is drained so
// the agent never blocks on a full pipe.
func consumeLines(r io.Reader, t *Transfer, capture *lockedBuffer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanStatusLines)

	for scanner.Scan() {
		line := scanner.Text()
		if capture != nil && line != "" {
			capture.WriteLine(line)
		}
		if ev, ok := progress.Parse(line); ok {
			t.progress(ev)
		}
	}

	err := scanner.Err()
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

// scanStatusLines splits on either '\n' or '\r'; console agents redraw the
// status line with carriage returns.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, bytes.TrimSpace(data[:i]), nil
	}
	if atEOF && len(data) > 0 {
		return len(data), bytes.TrimSpace(data), nil
	}
	return 0, nil, nil
}

// exitedCleanly reports a zero exit status. Wait returns the context error
// when the context was cancelled after the process had already exited.
func exitedCleanly(cmd *exec.Cmd, waitErr error) bool {
	return waitErr == nil || (cmd.ProcessState != nil && cmd.ProcessState.Success())
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) WriteLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(line)
	b.buf.WriteByte('\n')
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
