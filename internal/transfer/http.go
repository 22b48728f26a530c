package transfer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"modelfetch/internal/fsutil"
	"modelfetch/internal/logging"
	"modelfetch/internal/progress"
)

// HTTP mirrors the aria2c policy in-process: resume via Range requests,
// 10s connect and idle timeouts, 2 attempts 1s apart, no certificate checks.
type HTTP struct {
	Client         *http.Client
	Attempts       int
	RetryWait      time.Duration
	IdleTimeout    time.Duration
	ReportInterval time.Duration

	logger *logging.Logger
}

// NewHTTP creates an in-process HTTP agent with the default policy
func NewHTTP(logger *logging.Logger) *HTTP {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		// #nosec G402 -- mirrors may use self-signed certificates; same trade-off as --check-certificate=false
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return &HTTP{
		Client:         &http.Client{Transport: transport},
		Attempts:       2,
		RetryWait:      time.Second,
		IdleTimeout:    10 * time.Second,
		ReportInterval: time.Second,
		logger:         logger,
	}
}

// Start begins the download in the background and returns its handle
func (h *HTTP) Start(ctx context.Context, req Request) *Transfer {
	t, runCtx := newTransfer(ctx)
	go h.run(runCtx, t, req)
	return t
}

func (h *HTTP) run(ctx context.Context, t *Transfer, req Request) {
	if err := fsutil.EnsureDirectory(req.StagingDir); err != nil {
		t.finish(failed(FailureStaging, err.Error(), -1))
		return
	}

	attempts := h.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = h.fetch(ctx, t, req)
		if lastErr == nil {
			h.logger.Info("transfer.completed", "Transfer completed", map[string]interface{}{
				"url":  req.SourceURL,
				"path": req.StagingPath(),
			})
			t.finish(Event{Kind: EventCompleted})
			return
		}
		if t.cancelled(ctx) {
			t.finish(Event{Kind: EventCancelled, ExitCode: -1})
			return
		}

		h.logger.Warn("transfer.attempt_failed", "Download attempt failed", map[string]interface{}{
			"url":     req.SourceURL,
			"attempt": attempt,
			"error":   lastErr.Error(),
		})

		if attempt < attempts {
			select {
			case <-ctx.Done():
				t.finish(Event{Kind: EventCancelled, ExitCode: -1})
				return
			case <-time.After(h.RetryWait):
			}
		}
	}

	t.finish(failed(FailureTransfer, lastErr.Error(), -1))
}

// fetch performs one attempt, appending to any partial staging file
func (h *HTTP) fetch(ctx context.Context, t *Transfer, req Request) (err error) {
	path := req.StagingPath()
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, fsutil.DefaultFilePermissions) // #nosec G304 -- staging path built by the controller
	if err != nil {
		return fmt.Errorf("open staging file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close staging file: %w", cerr)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat staging file: %w", err)
	}
	offset := info.Size()

	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, req.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := h.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.SourceURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("seek staging file: %w", err)
		}
	case http.StatusOK:
		// Server ignored the range; restart in place
		if err := file.Truncate(0); err != nil {
			return fmt.Errorf("truncate staging file: %w", err)
		}
		offset = 0
	case http.StatusRequestedRangeNotSatisfiable:
		if offset > 0 {
			// Partial file already holds the whole resource
			return nil
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	meter := newRateMeter(offset, total)
	body := newIdleReader(resp.Body, h.idleTimeout(), cancelAttempt)
	defer body.stop()

	ticker := time.NewTicker(h.reportInterval())
	defer ticker.Stop()

	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := io.Copy(io.MultiWriter(file, meter), body)
		copyDone <- copyErr
	}()

	for {
		select {
		case copyErr := <-copyDone:
			if copyErr != nil {
				if body.timedOut() {
					return fmt.Errorf("no data received for %s", h.idleTimeout())
				}
				return fmt.Errorf("download body: %w", copyErr)
			}
			if total >= 0 && meter.written() != total {
				return fmt.Errorf("short download: got %d of %d bytes", meter.written(), total)
			}
			if err := file.Sync(); err != nil {
				return fmt.Errorf("sync staging file: %w", err)
			}
			t.progress(meter.snapshot())
			return nil
		case <-ticker.C:
			t.progress(meter.snapshot())
		}
	}
}

func (h *HTTP) idleTimeout() time.Duration {
	if h.IdleTimeout <= 0 {
		return 10 * time.Second
	}
	return h.IdleTimeout
}

func (h *HTTP) reportInterval() time.Duration {
	if h.ReportInterval <= 0 {
		return time.Second
	}
	return h.ReportInterval
}

// rateMeter counts written bytes and renders aria2c-style progress labels
type rateMeter struct {
	mu       sync.Mutex
	total    int64
	done     int64
	lastAt   time.Time
	lastDone int64
	rate     float64
}

func newRateMeter(start, total int64) *rateMeter {
	return &rateMeter{total: total, done: start, lastDone: start, lastAt: time.Now()}
}

func (m *rateMeter) Write(p []byte) (int, error) {
	m.mu.Lock()
	m.done += int64(len(p))
	m.mu.Unlock()
	return len(p), nil
}

func (m *rateMeter) written() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func (m *rateMeter) snapshot() progress.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(m.lastAt).Seconds(); elapsed > 0 {
		m.rate = float64(m.done-m.lastDone) / elapsed
	}
	m.lastAt = now
	m.lastDone = m.done

	ev := progress.Event{Speed: compactBytes(uint64(m.rate))}
	if m.total > 0 {
		ev.Percent = float64(m.done*100/m.total)
		if m.rate > 0 && m.done < m.total {
			remaining := float64(m.total-m.done) / m.rate
			ev.ETA = (time.Duration(remaining) * time.Second).String()
		}
	}
	return ev
}

// compactBytes formats like aria2c status lines ("3.9MiB")
func compactBytes(n uint64) string {
	return strings.ReplaceAll(humanize.IBytes(n), " ", "")
}

// idleReader cancels the request when no bytes arrive within the timeout
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	fired   chan struct{}
}

func newIdleReader(r io.Reader, timeout time.Duration, onIdle context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout, fired: make(chan struct{})}
	ir.timer = time.AfterFunc(timeout, func() {
		close(ir.fired)
		onIdle()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	if err != nil && !errors.Is(err, io.EOF) && ir.timedOut() {
		return n, fmt.Errorf("idle timeout: %w", err)
	}
	return n, err
}

func (ir *idleReader) timedOut() bool {
	select {
	case <-ir.fired:
		return true
	default:
		return false
	}
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}
