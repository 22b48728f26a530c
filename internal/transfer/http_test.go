package transfer

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var modelContent = bytes.Repeat([]byte("ggml"), 4096)

func newTestHTTP() *HTTP {
	agent := NewHTTP(nil)
	agent.RetryWait = 10 * time.Millisecond
	agent.ReportInterval = 10 * time.Millisecond
	agent.IdleTimeout = time.Second
	return agent
}

// rangeServer serves modelContent with Range support and records the Range headers it saw
func rangeServer(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var ranges []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ranges = append(ranges, r.Header.Get("Range"))
		mu.Unlock()
		http.ServeContent(w, r, "ggml-tiny.bin", time.Time{}, bytes.NewReader(modelContent))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), ranges...)
	}
}

func httpRequest(t *testing.T, url string) Request {
	t.Helper()
	req := newRequest(t)
	req.SourceURL = url
	return req
}

func writePartial(t *testing.T, req Request, data []byte) {
	t.Helper()
	if err := os.MkdirAll(req.StagingDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(req.StagingPath(), data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func assertStaged(t *testing.T, req Request) {
	t.Helper()
	data, err := os.ReadFile(req.StagingPath())
	if err != nil {
		t.Fatalf("Staged file missing: %v", err)
	}
	if !bytes.Equal(data, modelContent) {
		t.Errorf("Staged file has %d bytes, want %d matching bytes", len(data), len(modelContent))
	}
}

func TestHTTP_FreshDownload(t *testing.T) {
	srv, ranges := rangeServer(t)
	req := httpRequest(t, srv.URL+"/ggml-tiny.bin")

	events := collect(t, newTestHTTP().Start(context.Background(), req))
	checkStream(t, events, EventCompleted)
	assertStaged(t, req)

	if got := ranges(); len(got) != 1 || got[0] != "" {
		t.Errorf("Expected one request without Range, got %q", got)
	}

	last := events[len(events)-2]
	if last.Kind != EventProgress || last.Progress.Percent != 100 {
		t.Errorf("Expected a final 100%% progress event, got %+v", last)
	}
}

func TestHTTP_ResumesPartialFile(t *testing.T) {
	srv, ranges := rangeServer(t)
	req := httpRequest(t, srv.URL+"/ggml-tiny.bin")
	writePartial(t, req, modelContent[:1000])

	checkStream(t, collect(t, newTestHTTP().Start(context.Background(), req)), EventCompleted)
	assertStaged(t, req)

	if got := ranges(); len(got) != 1 || got[0] != "bytes=1000-" {
		t.Errorf("Expected a single resume request, got %q", got)
	}
}

func TestHTTP_CompletePartialIsSatisfied(t *testing.T) {
	srv, _ := rangeServer(t)
	req := httpRequest(t, srv.URL+"/ggml-tiny.bin")
	writePartial(t, req, modelContent)

	checkStream(t, collect(t, newTestHTTP().Start(context.Background(), req)), EventCompleted)
	assertStaged(t, req)
}

func TestHTTP_RangeIgnoredRestarts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(modelContent)
	}))
	defer srv.Close()

	req := httpRequest(t, srv.URL)
	writePartial(t, req, []byte("stale bytes from another file"))

	checkStream(t, collect(t, newTestHTTP().Start(context.Background(), req)), EventCompleted)
	assertStaged(t, req)
}

func TestHTTP_FailsAfterRetries(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	last := checkStream(t, collect(t, newTestHTTP().Start(context.Background(), httpRequest(t, srv.URL))), EventFailed)
	if last.Failure != FailureTransfer {
		t.Errorf("Expected failure kind %q, got %q", FailureTransfer, last.Failure)
	}
	if !strings.Contains(last.Message, "404") {
		t.Errorf("Expected status in message, got %q", last.Message)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 2 {
		t.Errorf("Expected 2 attempts, got %d", hits)
	}
}

// stallingServer sends a prefix of the content and then stops sending
func stallingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "16384")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(modelContent[:512])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTP_IdleTimeout(t *testing.T) {
	agent := newTestHTTP()
	agent.Attempts = 1
	agent.IdleTimeout = 100 * time.Millisecond

	last := checkStream(t, collect(t, agent.Start(context.Background(), httpRequest(t, stallingServer(t).URL))), EventFailed)
	if !strings.Contains(last.Message, "no data received") {
		t.Errorf("Expected idle timeout message, got %q", last.Message)
	}
}

func TestHTTP_Cancel(t *testing.T) {
	req := httpRequest(t, stallingServer(t).URL)
	tr := newTestHTTP().Start(context.Background(), req)

	// Wait until the sent prefix has reached the staging file
	timeout := time.After(10 * time.Second)
	for received := false; !received; {
		select {
		case ev := <-tr.Events():
			if ev.Kind != EventProgress {
				t.Fatalf("Expected progress before cancel, got %s (%q)", ev.Kind, ev.Message)
			}
			received = ev.Progress.Percent > 0
		case <-timeout:
			t.Fatal("no progress reported")
		}
	}

	tr.Cancel()
	checkStream(t, collect(t, tr), EventCancelled)

	if tr.PID() != 0 {
		t.Errorf("In-process agent should report PID 0, got %d", tr.PID())
	}
	// Partial data is kept for the next attempt
	if info, err := os.Stat(req.StagingPath()); err != nil || info.Size() == 0 {
		t.Errorf("Expected non-empty partial file, err=%v", err)
	}
}

func TestRateMeter_Snapshot(t *testing.T) {
	meter := newRateMeter(0, 200)
	meter.lastAt = time.Now().Add(-time.Second)
	_, _ = meter.Write(make([]byte, 100))

	ev := meter.snapshot()
	if ev.Percent != 50 {
		t.Errorf("Expected 50%%, got %v", ev.Percent)
	}
	if ev.Speed == "" || strings.Contains(ev.Speed, " ") {
		t.Errorf("Expected compact speed label, got %q", ev.Speed)
	}
	if ev.ETA == "" {
		t.Error("Expected ETA while bytes remain")
	}
}

func TestCompactBytes(t *testing.T) {
	tests := map[uint64]string{
		0:               "0B",
		1024:            "1.0KiB",
		4 * 1024 * 1024: "4.0MiB",
	}
	for in, want := range tests {
		if got := compactBytes(in); got != want {
			t.Errorf("compactBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
