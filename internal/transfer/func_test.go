package transfer

import (
	"context"
	"errors"
	"os"
	"testing"

	"modelfetch/internal/progress"
)

func TestFunc_Lifecycle(t *testing.T) {
	tests := []struct {
		name string
		fn   Func
		want EventKind
	}{
		{
			name: "completed",
			fn: func(_ context.Context, req Request, report func(progress.Event)) error {
				report(progress.Event{Percent: 50, Speed: "1MiB", ETA: "1s"})
				return os.WriteFile(req.StagingPath(), []byte("x"), 0o600)
			},
			want: EventCompleted,
		},
		{
			name: "failed",
			fn: func(context.Context, Request, func(progress.Event)) error {
				return errors.New("mirror unreachable")
			},
			want: EventFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := collect(t, tt.fn.Start(context.Background(), newRequest(t)))
			last := checkStream(t, events, tt.want)
			if tt.want == EventFailed && last.Message != "mirror unreachable" {
				t.Errorf("Expected error text as message, got %q", last.Message)
			}
		})
	}
}

func TestFunc_Cancel(t *testing.T) {
	started := make(chan struct{})
	fn := Func(func(ctx context.Context, _ Request, _ func(progress.Event)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	tr := fn.Start(context.Background(), newRequest(t))
	<-started
	tr.Cancel()

	checkStream(t, collect(t, tr), EventCancelled)
}

func TestFunc_CleanFinishAfterCancel(t *testing.T) {
	started := make(chan struct{})
	fn := Func(func(ctx context.Context, req Request, _ func(progress.Event)) error {
		close(started)
		<-ctx.Done()
		return os.WriteFile(req.StagingPath(), []byte("x"), 0o600)
	})

	tr := fn.Start(context.Background(), newRequest(t))
	<-started
	tr.Cancel()

	checkStream(t, collect(t, tr), EventCompleted)
}
