package transfer

import (
	"context"
	"sync"
	"sync/atomic"

	"modelfetch/internal/progress"
)

// eventBuffer bounds queued progress snapshots; one slot stays reserved
// for the terminal event so finishing never blocks on a slow consumer.
const eventBuffer = 32

// Transfer is a handle to one running download
type Transfer struct {
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	// mu serialises emission from the stdout and stderr readers
	mu       sync.Mutex
	finished bool

	cancelRequested atomic.Bool
	pid             atomic.Int64
}

func newTransfer(parent context.Context) (*Transfer, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Transfer{
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}, ctx
}

// Events returns the ordered event stream. It is closed after the terminal event.
func (t *Transfer) Events() <-chan Event {
	return t.events
}

// Done is closed once the underlying work has fully stopped
// (for subprocess agents: the process has exited and been reaped).
func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

// PID returns the agent process id, or 0 for in-process agents and before spawn
func (t *Transfer) PID() int {
	return int(t.pid.Load())
}

// Cancel requests termination and blocks until the work has stopped.
// Calling Cancel on a finished transfer returns immediately.
func (t *Transfer) Cancel() {
	t.cancelRequested.Store(true)
	t.cancel()
	<-t.done
}

// cancelled reports whether the stop was requested by the caller
func (t *Transfer) cancelled(ctx context.Context) bool {
	return t.cancelRequested.Load() || ctx.Err() != nil
}

// progress queues a snapshot, dropping it when the consumer is behind.
func (t *Transfer) progress(ev progress.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished || len(t.events) >= cap(t.events)-1 {
		return
	}
	t.events <- Event{Kind: EventProgress, Progress: ev}
}

// finish marks the work stopped, emits the terminal event and closes the stream.
func (t *Transfer) finish(ev Event) {
	close(t.done)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return
	}
	t.finished = true
	t.events <- ev
	close(t.events)
	t.cancel()
}

func failed(kind FailureKind, msg string, code int) Event {
	return Event{Kind: EventFailed, Failure: kind, Message: msg, ExitCode: code}
}
