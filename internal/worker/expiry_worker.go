package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Expirer finalizes attempts whose time has run out.
type Expirer interface {
	SubmitExpired(ctx context.Context, limit int) (int, error)
}

// ExpiryWorker periodically submits attempts abandoned after their time ran
// out, so a student who closed the tab still gets a result.
type ExpiryWorker struct {
	expirer  Expirer
	interval time.Duration
	batch    int
	log      zerolog.Logger
}

func NewExpiryWorker(expirer Expirer, interval time.Duration, batch int, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		expirer:  expirer,
		interval: interval,
		batch:    batch,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start sweeps every interval until ctx is cancelled. A full batch triggers an
// immediate follow-up sweep.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Int("batch", w.batch).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.expirer.SubmitExpired(ctx, w.batch)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Expiry sweep failed")
			}
			return
		}
		if n > 0 {
			w.log.Info().Int("submitted", n).Msg("Submitted expired attempts")
		}
		if n < w.batch {
			return
		}
	}
}
