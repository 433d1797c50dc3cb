package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventSink is the durable store for attempt events.
type EventSink interface {
	InsertBatch(ctx context.Context, events []model.AttemptEvent) error
	Insert(ctx context.Context, e model.AttemptEvent) error
}

// EventWorker drains the attempt event queue into the audit table.
type EventWorker struct {
	queue repository.EventQueue
	sink  EventSink
	log   zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
	errBackoff   time.Duration
}

func NewEventWorker(queue repository.EventQueue, sink EventSink, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		queue:        queue,
		sink:         sink,
		log:          log.With().Str("component", "event_worker").Logger(),
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		pollTimeout:  PollTimeout,
		errBackoff:   3 * time.Second,
	}
}

// Start runs until ctx is cancelled, then flushes what is still buffered.
func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EventWorker started")

	buffer := make([]model.AttemptEvent, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 &&
			(len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch; returns nil after pollTimeout on an empty queue
		raw, err := w.queue.Pop(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Dur("backoff", w.errBackoff).Msg("Queue error, backing off")
			sleepCtx(ctx, w.errBackoff)
			continue
		}
		if raw == nil {
			continue
		}

		// 4. Decode; malformed payloads can never succeed, so drop them
		var evt model.AttemptEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			w.log.Error().Err(err).Str("data", string(raw)).Msg("Discarding malformed event")
			continue
		}

		buffer = append(buffer, evt)
	}
}

// flushSafe attempts a COPY, then row-by-row inserts, then requeues.
func (w *EventWorker) flushSafe(ctx context.Context, batch []model.AttemptEvent) {
	err := w.sink.InsertBatch(ctx, batch)
	if err == nil {
		metrics.EventsPersisted.WithLabelValues("copy").Add(float64(len(batch)))
		return
	}

	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *EventWorker) fallbackInsert(ctx context.Context, batch []model.AttemptEvent) {
	var requeue []model.AttemptEvent

	for _, e := range batch {
		err := w.sink.Insert(ctx, e)
		if err == nil {
			metrics.EventsPersisted.WithLabelValues("row").Inc()
			continue
		}

		if isIntegrityError(err) {
			w.log.Error().Err(err).
				Str("attempt_id", e.AttemptID.String()).
				Str("type", string(e.Type)).
				Msg("Dropping event rejected by constraint")
			continue
		}

		w.log.Error().Err(err).Str("attempt_id", e.AttemptID.String()).Msg("Insert failed, requeueing")
		requeue = append(requeue, e)
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *EventWorker) requeue(ctx context.Context, items []model.AttemptEvent) {
	payloads := make([][]byte, 0, len(items))
	for _, e := range items {
		data, _ := json.Marshal(e)
		payloads = append(payloads, data)
	}

	// The caller's ctx may already be cancelled during shutdown.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := w.queue.Push(pushCtx, payloads...); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed events")

	// Avoid thrashing while the database is down.
	sleepCtx(ctx, w.errBackoff)
}

func (w *EventWorker) shutdown(buffer []model.AttemptEvent) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

// isIntegrityError reports Postgres class 23 errors (foreign key, not null,
// check). Retrying those cannot succeed.
func isIntegrityError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23"
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
