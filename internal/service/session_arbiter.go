package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

const (
	evictTries   = 3
	evictTimeout = 2 * time.Second
)

// Heartbeat reasons.
const (
	ReasonSessionReplaced  = "session_replaced"
	ReasonAlreadySubmitted = "already_submitted"
)

// HeartbeatResult tells the client whether it may keep working.
type HeartbeatResult struct {
	Kicked bool   `json:"kicked"`
	Reason string `json:"reason,omitempty"`
}

// SessionArbiter keeps at most one live client per in-progress attempt. The
// newest IssueSession always wins; older clients learn about it on their next
// heartbeat.
type SessionArbiter struct {
	attempts repository.AttemptStore
	cache    repository.TokenCache
	log      zerolog.Logger

	// Frozen attempts whose cached token could not be evicted. Heartbeats for
	// them skip the cache and retry the eviction.
	unevicted sync.Map
}

// NewSessionArbiter creates a new SessionArbiter. cache may be nil.
func NewSessionArbiter(attempts repository.AttemptStore, cache repository.TokenCache, log zerolog.Logger) *SessionArbiter {
	return &SessionArbiter{
		attempts: attempts,
		cache:    cache,
		log:      log.With().Str("component", "session_arbiter").Logger(),
	}
}

// IssueSession stores a fresh token on the locked attempt, replacing any
// previous one.
func (a *SessionArbiter) IssueSession(ctx context.Context, tx repository.AttemptTx) (string, error) {
	token := uuid.NewString()
	if err := tx.SetSessionToken(ctx, token); err != nil {
		return "", fmt.Errorf("set session token: %w", err)
	}
	return token, nil
}

// Authorize returns ErrSessionReplaced unless token is the attempt's live token.
func (a *SessionArbiter) Authorize(attempt *model.Attempt, token string) error {
	if !attempt.HasToken(token) {
		return ErrSessionReplaced
	}
	return nil
}

// Heartbeat reports whether the presenting client still owns the attempt.
// A cached token can only confirm ownership; a kick is always decided from the
// stored attempt.
func (a *SessionArbiter) Heartbeat(ctx context.Context, studentID int, attemptID uuid.UUID, token string) (*HeartbeatResult, error) {
	if _, stale := a.unevicted.Load(attemptID); stale {
		if err := a.evict(ctx, attemptID); err == nil {
			a.unevicted.Delete(attemptID)
		}
	} else if token != "" && a.cachedToken(ctx, attemptID) == token {
		return &HeartbeatResult{}, nil
	}

	attempt, err := a.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}

	if attempt.Status.Terminal() {
		return &HeartbeatResult{Reason: ReasonAlreadySubmitted}, nil
	}
	if attempt.SessionToken == nil || *attempt.SessionToken == "" {
		return &HeartbeatResult{}, nil
	}
	if *attempt.SessionToken != token {
		metrics.SessionKicks.Inc()
		a.log.Info().
			Str("attempt_id", attemptID.String()).
			Int("student_id", studentID).
			Msg("Stale session kicked")
		return &HeartbeatResult{Kicked: true, Reason: ReasonSessionReplaced}, nil
	}
	return &HeartbeatResult{}, nil
}

// Remember caches the live token. Callers hold the attempt lock so cache
// writes happen in the same order as token changes.
func (a *SessionArbiter) Remember(ctx context.Context, attemptID uuid.UUID, token string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(ctx, attemptID.String(), token); err != nil {
		a.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to cache session token")
	}
}

// Forget evicts the cached token of a frozen attempt. When eviction keeps
// failing, this process stops trusting the cache for the attempt.
func (a *SessionArbiter) Forget(ctx context.Context, attemptID uuid.UUID) {
	if a.cache == nil {
		return
	}
	if err := a.evict(ctx, attemptID); err != nil {
		a.unevicted.Store(attemptID, struct{}{})
		a.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to evict session token")
	}
}

// evict runs detached from the caller so a dropped client cannot leave the
// token behind.
func (a *SessionArbiter) evict(ctx context.Context, attemptID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), evictTimeout)
	defer cancel()

	var err error
	for i := 0; i < evictTries; i++ {
		if err = a.cache.Delete(ctx, attemptID.String()); err == nil {
			return nil
		}
	}
	return err
}

func (a *SessionArbiter) cachedToken(ctx context.Context, attemptID uuid.UUID) string {
	if a.cache == nil {
		return ""
	}
	token, err := a.cache.Get(ctx, attemptID.String())
	if err != nil {
		a.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Session cache read failed")
		return ""
	}
	return token
}
