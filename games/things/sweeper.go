package things

import (
	"context"
	"errors"
	"time"
)

// Expire deletes every session created before cutoff, together with its
// entries and scores. Each candidate is re-read under its lock, so a session
// reset after it was listed survives. A session that fails to delete is
// logged and skipped. It returns how many sessions were removed.
func (e *Engine) Expire(ctx context.Context, cutoff time.Time) (removed int, err error) {
	ctx, span := e.begin(ctx, "things.expire", "")
	defer func() { endSpan(span, err) }()

	ids, err := e.store.ExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, storageError("list expired sessions", err)
	}

	for _, id := range ids {
		deleted, err := e.expireOne(ctx, id, cutoff)
		if err != nil {
			e.log.Warn().Err(err).Str("session", id).Msg("delete expired session")
			continue
		}
		if deleted {
			removed++
		}
	}

	if removed > 0 {
		e.log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("expired sessions removed")
	}

	return removed, nil
}

func (e *Engine) expireOne(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	session, err := e.store.GetSession(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !session.CreatedAt.Before(cutoff) {
		e.log.Debug().Str("session", id).Msg("session renewed since listing, keeping it")
		return false, nil
	}

	if err := e.store.DeleteSession(ctx, id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// Sweeper periodically expires sessions older than a fixed age.
type Sweeper struct {
	engine   *Engine
	ttl      time.Duration
	interval time.Duration
}

// NewSweeper returns a Sweeper removing sessions older than ttl every
// interval.
func NewSweeper(engine *Engine, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{engine: engine, ttl: ttl, interval: interval}
}

// Sweep runs a single pass relative to now.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	return s.engine.Expire(ctx, now.Add(-s.ttl))
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx, s.engine.now()); err != nil {
				s.engine.log.Error().Err(err).Msg("session sweep failed")
			}
		}
	}
}
