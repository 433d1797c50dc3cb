package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// scriptedExpirer returns the queued results in order, then zero.
type scriptedExpirer struct {
	mu      sync.Mutex
	results []int
	err     error
	calls   int
}

func (e *scriptedExpirer) SubmitExpired(_ context.Context, _ int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return 0, e.err
	}
	if len(e.results) == 0 {
		return 0, nil
	}
	n := e.results[0]
	e.results = e.results[1:]
	return n, nil
}

func (e *scriptedExpirer) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestExpiryWorker_SweepRepeatsWhileBatchIsFull(t *testing.T) {
	exp := &scriptedExpirer{results: []int{5, 5, 2}}
	w := NewExpiryWorker(exp, time.Hour, 5, zerolog.Nop())

	w.sweep(context.Background())

	assert.Equal(t, 3, exp.callCount())
}

func TestExpiryWorker_SweepStopsOnError(t *testing.T) {
	exp := &scriptedExpirer{err: errors.New("db down")}
	w := NewExpiryWorker(exp, time.Hour, 5, zerolog.Nop())

	w.sweep(context.Background())

	assert.Equal(t, 1, exp.callCount())
}

func TestExpiryWorker_TicksUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	exp := &scriptedExpirer{}
	w := NewExpiryWorker(exp, 5*time.Millisecond, 10, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx)
	}()

	require.Eventually(t, func() bool { return exp.callCount() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
