// Package requestcontext carries request-scoped values through
// context.Context so the workflow service never imports net/http.
// Middleware and the workflow entry points write them; everything else reads.
package requestcontext

import (
	"context"
	"time"

	id "bskt/pkg/domain"
)

type key int

const (
	requestIDKey key = iota
	transactionIDKey
	requestTimeKey
)

// RequestID returns the HTTP request id, or "" for CLI runs.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// TransactionID returns the correlation key of the instruction being run.
// It is empty until the instruction has been parsed.
func TransactionID(ctx context.Context) id.TransactionID {
	v, _ := ctx.Value(transactionIDKey).(id.TransactionID)
	return v
}

func WithTransactionID(ctx context.Context, txID id.TransactionID) context.Context {
	return context.WithValue(ctx, transactionIDKey, txID)
}

// Now returns the time pinned by the requesttime middleware or WithTime,
// falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}

// LogAttrs returns the ids present on ctx as slog key/value pairs.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if v := RequestID(ctx); v != "" {
		attrs = append(attrs, "request_id", v)
	}
	if v := TransactionID(ctx); v != "" {
		attrs = append(attrs, "transaction_id", v)
	}
	return attrs
}
