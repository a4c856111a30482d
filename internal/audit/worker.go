package audit

import (
	"context"
	"log/slog"
	"time"
)

// drainTimeout bounds how long Run keeps appending queued events after its
// context is cancelled.
const drainTimeout = 5 * time.Second

// Worker moves events from a Publisher queue into a Store.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run appends events until the inbox is closed or ctx is done. On
// cancellation, events already queued are still appended for up to
// drainTimeout, then Run returns ctx.Err(). A failed append is logged and
// the event dropped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.append(ctx, event)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	for n := 0; ; n++ {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				w.logger.WarnContext(ctx, "audit drain timed out", "appended", n)
				return
			}
			w.append(ctx, event)
		default:
			if n > 0 {
				w.logger.InfoContext(ctx, "audit queue drained", "appended", n)
			}
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "audit sink append failed",
			"event_id", event.ID,
			"transaction_id", event.TransactionID,
			"error", err,
		)
	}
}
