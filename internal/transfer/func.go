package transfer

import (
	"context"

	"modelfetch/internal/fsutil"
	"modelfetch/internal/progress"
)

// Func adapts an in-process download function to Agent. The function writes
// req.StagingPath(), calls report for each snapshot and returns nil on
// success. It must return promptly once ctx is done.
type Func func(ctx context.Context, req Request, report func(progress.Event)) error

// Start runs f in the background and returns its handle
func (f Func) Start(ctx context.Context, req Request) *Transfer {
	t, runCtx := newTransfer(ctx)
	go func() {
		if err := fsutil.EnsureDirectory(req.StagingDir); err != nil {
			t.finish(failed(FailureStaging, err.Error(), -1))
			return
		}

		err := f(runCtx, req, t.progress)
		switch {
		case err == nil:
			t.finish(Event{Kind: EventCompleted})
		case t.cancelled(runCtx):
			t.finish(Event{Kind: EventCancelled, ExitCode: -1})
		default:
			t.finish(failed(FailureTransfer, err.Error(), -1))
		}
	}()
	return t
}
