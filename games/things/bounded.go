package things

import (
	"context"
	"time"
)

// boundedStore applies a per-call timeout to every Store method.
type boundedStore struct {
	Store
	timeout time.Duration
}

func (b *boundedStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.timeout)
}

func (b *boundedStore) CreateSession(ctx context.Context, s Session) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.CreateSession(ctx, s)
}

func (b *boundedStore) GetSession(ctx context.Context, id string) (Session, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.GetSession(ctx, id)
}

func (b *boundedStore) StartSession(ctx context.Context, id string, queue TurnQueue) (bool, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.StartSession(ctx, id, queue)
}

func (b *boundedStore) ResetSession(ctx context.Context, id, prompt string, createdAt time.Time) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.ResetSession(ctx, id, prompt, createdAt)
}

func (b *boundedStore) SetTurnQueue(ctx context.Context, id string, from, to TurnQueue) (bool, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.SetTurnQueue(ctx, id, from, to)
}

func (b *boundedStore) PutEntry(ctx context.Context, e Entry) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.PutEntry(ctx, e)
}

func (b *boundedStore) GetEntry(ctx context.Context, sessionID, entryID string) (Entry, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.GetEntry(ctx, sessionID, entryID)
}

func (b *boundedStore) ListEntries(ctx context.Context, sessionID string) ([]Entry, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.ListEntries(ctx, sessionID)
}

func (b *boundedStore) RevealEntry(ctx context.Context, sessionID, entryID string) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.RevealEntry(ctx, sessionID, entryID)
}

func (b *boundedStore) ResolveGuess(ctx context.Context, sessionID string, r Resolution) (int, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.ResolveGuess(ctx, sessionID, r)
}

func (b *boundedStore) DeleteEntries(ctx context.Context, sessionID string) (int, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.DeleteEntries(ctx, sessionID)
}

func (b *boundedStore) ListScores(ctx context.Context, sessionID string) ([]Score, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.ListScores(ctx, sessionID)
}

func (b *boundedStore) ExpiredSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.ExpiredSessions(ctx, cutoff)
}

func (b *boundedStore) DeleteSession(ctx context.Context, id string) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.Store.DeleteSession(ctx, id)
}
