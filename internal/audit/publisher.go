package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"bskt/pkg/requestcontext"
)

// Publisher captures structured audit events. With a queue it hands events
// to a Worker; without one it appends synchronously.
type Publisher struct {
	store  Store
	queue  chan<- Event
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithQueue makes Emit non-blocking. Events are dropped when the queue is full.
func WithQueue(queue chan<- Event) Option {
	return func(p *Publisher) {
		p.queue = queue
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps the event and stores or enqueues it. Audit failures never
// fail the caller; they are logged.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if p.queue != nil {
		select {
		case p.queue <- event:
		default:
			p.logger.WarnContext(ctx, "audit queue full, event dropped",
				"transaction_id", event.TransactionID,
				"action", event.Action,
			)
		}
		return
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to append audit event",
			"transaction_id", event.TransactionID,
			"action", event.Action,
			"error", err,
		)
	}
}
