package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type memQueue struct {
	mu    sync.Mutex
	items [][]byte
}

func (q *memQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	q.mu.Lock()
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return item, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func (q *memQueue) Push(_ context.Context, payloads ...[]byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, payloads...)
	return nil
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type memSink struct {
	mu       sync.Mutex
	batchErr error
	rowErr   map[uuid.UUID]error
	failOnce map[uuid.UUID]bool
	copied   []model.AttemptEvent
	inserted []model.AttemptEvent
}

func (s *memSink) InsertBatch(_ context.Context, events []model.AttemptEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return s.batchErr
	}
	s.copied = append(s.copied, events...)
	return nil
}

func (s *memSink) Insert(_ context.Context, e model.AttemptEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.rowErr[e.AttemptID]; ok {
		return err
	}
	if s.failOnce[e.AttemptID] {
		delete(s.failOnce, e.AttemptID)
		return errors.New("connection reset")
	}
	s.inserted = append(s.inserted, e)
	return nil
}

func (s *memSink) counts() (copied, inserted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.copied), len(s.inserted)
}

func newTestEventWorker(q *memQueue, sink *memSink) *EventWorker {
	w := NewEventWorker(q, sink, zerolog.Nop())
	w.batchTimeout = 20 * time.Millisecond
	w.pollTimeout = 5 * time.Millisecond
	w.errBackoff = time.Millisecond
	return w
}

func pushEvents(t *testing.T, q *memQueue, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		data, err := json.Marshal(model.AttemptEvent{
			Type:       model.AttemptEventViolation,
			AttemptID:  id,
			ExamID:     uuid.New(),
			StudentID:  100,
			OccurredAt: time.Now(),
		})
		require.NoError(t, err)
		require.NoError(t, q.Push(context.Background(), data))
	}
}

func runWorker(w *EventWorker) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestEventWorker_FlushesBatchWithCopy(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &memQueue{}
	sink := &memSink{}
	pushEvents(t, q, uuid.New(), uuid.New(), uuid.New())

	stop := runWorker(newTestEventWorker(q, sink))
	defer stop()

	require.Eventually(t, func() bool {
		copied, _ := sink.counts()
		return copied == 3
	}, time.Second, 5*time.Millisecond)
}

func TestEventWorker_FallbackRequeuesTransientAndDropsIntegrity(t *testing.T) {
	defer goleak.VerifyNone(t)

	good, flaky, bad := uuid.New(), uuid.New(), uuid.New()
	q := &memQueue{}
	sink := &memSink{
		batchErr: errors.New("copy failed"),
		rowErr:   map[uuid.UUID]error{bad: &pgconn.PgError{Code: "23503"}},
		failOnce: map[uuid.UUID]bool{flaky: true},
	}
	pushEvents(t, q, good, flaky, bad)

	stop := runWorker(newTestEventWorker(q, sink))

	require.Eventually(t, func() bool {
		_, inserted := sink.counts()
		return inserted == 2
	}, time.Second, 5*time.Millisecond)
	stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	ids := []uuid.UUID{sink.inserted[0].AttemptID, sink.inserted[1].AttemptID}
	assert.ElementsMatch(t, []uuid.UUID{good, flaky}, ids)
	assert.Zero(t, q.len(), "the constraint violation must not be requeued")
}

func TestEventWorker_DrainsBufferOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &memQueue{}
	sink := &memSink{}
	w := newTestEventWorker(q, sink)
	w.batchTimeout = time.Hour
	pushEvents(t, q, uuid.New(), uuid.New())

	stop := runWorker(w)
	require.Eventually(t, func() bool { return q.len() == 0 }, time.Second, 5*time.Millisecond)

	copied, _ := sink.counts()
	assert.Zero(t, copied)

	stop()
	copied, _ = sink.counts()
	assert.Equal(t, 2, copied)
}

func TestEventWorker_DiscardsMalformedPayloads(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &memQueue{}
	sink := &memSink{}
	require.NoError(t, q.Push(context.Background(), []byte("{not json")))
	pushEvents(t, q, uuid.New())

	stop := runWorker(newTestEventWorker(q, sink))
	defer stop()

	require.Eventually(t, func() bool {
		copied, _ := sink.counts()
		return copied == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, q.len())
}

func TestIsIntegrityError(t *testing.T) {
	assert.True(t, isIntegrityError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isIntegrityError(&pgconn.PgError{Code: "57P01"}))
	assert.False(t, isIntegrityError(errors.New("boom")))
}
