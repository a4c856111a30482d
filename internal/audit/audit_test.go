package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bskt/pkg/requestcontext"
)

type flakyStore struct {
	mu     sync.Mutex
	calls  int
	failOn int
	events []Event
}

func (s *flakyStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls == s.failOn {
		return errors.New("broker unavailable")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *flakyStore) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestPublisherStampsEvents(t *testing.T) {
	store := NewInMemory()
	p := NewPublisher(store)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-1"), now)

	p.Emit(ctx, Event{TransactionID: "TX-1", Action: ActionMint, Outcome: "success"})

	events, err := store.ListByTransaction(ctx, "TX-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, now, events[0].Timestamp)
	assert.Equal(t, "req-1", events[0].RequestID)
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	p.Emit(context.Background(), Event{Action: ActionMint})
}

func TestQueuedPublisherDropsWhenFull(t *testing.T) {
	queue := make(chan Event, 1)
	p := NewPublisher(nil, WithQueue(queue))

	p.Emit(context.Background(), Event{TransactionID: "A"})
	p.Emit(context.Background(), Event{TransactionID: "B"})

	require.Len(t, queue, 1)
	assert.Equal(t, "A", string((<-queue).TransactionID))
}

func TestWorkerSurvivesSinkFailure(t *testing.T) {
	store := &flakyStore{failOn: 1}
	inbox := make(chan Event, 3)
	inbox <- Event{ID: "1"}
	inbox <- Event{ID: "2"}
	inbox <- Event{ID: "3"}
	close(inbox)

	err := NewWorker(store, inbox, nil).Run(context.Background())
	require.NoError(t, err)

	events := store.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].ID)
	assert.Equal(t, "3", events[1].ID)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWorker(NewInMemory(), make(chan Event), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerDrainsQueueOnCancel(t *testing.T) {
	inbox := make(chan Event, 3)
	inbox <- Event{ID: "1"}
	inbox <- Event{ID: "2"}
	store := NewInMemory()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWorker(store, inbox, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, store.All(), 2)
}

func TestKafkaRecordIsKeyedByTransaction(t *testing.T) {
	rec, err := record("audit", Event{ID: "e1", TransactionID: "TX-9", Action: ActionMint, Outcome: "policy_rejected"})
	require.NoError(t, err)

	assert.Equal(t, "audit", rec.Topic)
	assert.Equal(t, []byte("TX-9"), rec.Key)
	var decoded Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, "policy_rejected", decoded.Outcome)
	require.Len(t, rec.Headers, 2)
	assert.Equal(t, "outcome", rec.Headers[1].Key)
}

func TestNewKafkaSinkValidates(t *testing.T) {
	_, err := NewKafkaSink(nil, "audit")
	assert.Error(t, err)
	_, err = NewKafkaSink([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}
