package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vicentereig/whatsapp-media-dl/internal/progress"
	"github.com/vicentereig/whatsapp-media-dl/internal/types"
)

// Transport streams one attachment to dest, reporting progress as chunks
// arrive. It returns the number of bytes written.
type Transport interface {
	Fetch(ctx context.Context, ref types.MediaReference, dest string, onProgress types.ProgressFunc) (int64, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, ref types.MediaReference, dest string, onProgress types.ProgressFunc) (int64, error)

func (f TransportFunc) Fetch(ctx context.Context, ref types.MediaReference, dest string, onProgress types.ProgressFunc) (int64, error) {
	return f(ctx, ref, dest, onProgress)
}

// Task transfers exactly one reference to a fixed path.
type Task struct {
	ref       types.MediaReference
	dir       string
	path      string
	transport Transport
	reporter  *progress.Reporter
	timeout   time.Duration
}

func NewTask(ref types.MediaReference, dir string, transport Transport, sink progress.Sink, timeout time.Duration) *Task {
	name := FileName(ref)
	return &Task{
		ref:       ref,
		dir:       dir,
		path:      filepath.Join(dir, name),
		transport: transport,
		reporter:  progress.NewReporter(sink, ref.Position, name, ref.MessageID),
		timeout:   timeout,
	}
}

func (t *Task) Path() string { return t.path }

// Run waits for a slot, transfers, and always releases the slot. Partial
// bytes stay on disk when the transfer fails.
func (t *Task) Run(ctx context.Context, gate *Gate) (out Outcome) {
	out = Outcome{Reference: t.ref, Status: StatusFailed}

	// A task interrupted while queued stays off the display; the report
	// still carries it.
	if err := gate.Acquire(ctx); err != nil {
		out.Err = err
		return out
	}
	defer gate.Release()
	out.Admitted = true

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("%w: %v", ErrTransferPanic, r)
			t.reporter.Finish(out.BytesTransferred, out.Err)
		}
	}()

	if t.ref.Payload == nil {
		out.Status = StatusSucceeded
		t.reporter.Finish(0, nil)
		return out
	}

	if err := os.MkdirAll(t.dir, 0755); err != nil {
		out.Err = fmt.Errorf("failed to create directory: %w", err)
		t.reporter.Finish(0, out.Err)
		return out
	}
	out.LocalPath = t.path

	total, _ := t.ref.SizeHint()
	t.reporter.Start(total)

	fetchCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var seen int64
	n, err := t.transport.Fetch(fetchCtx, t.ref, t.path, func(done, total int64) {
		seen = done
		t.reporter.Update(done, total)
	})
	if n == 0 {
		n = seen
	}
	out.BytesTransferred = n
	if err != nil {
		out.Err = err
		t.reporter.Finish(n, err)
		return out
	}

	out.Status = StatusSucceeded
	t.reporter.Finish(n, nil)
	return out
}
