package things

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// AddEntryResult is returned by AddEntry.
type AddEntryResult struct {
	Entry  Entry
	Events []Event
}

// StartResult is returned by Start. AlreadyStarted is set when the session
// had been started by an earlier or concurrent call; that is a success, and
// no events are emitted for it.
type StartResult struct {
	AlreadyStarted bool
	TurnQueue      TurnQueue
	Events         []Event
}

// ResetResult is returned by Reset.
type ResetResult struct {
	Removed int
	Events  []Event
}

// Create opens a new session owned by owner and returns its code. A blank
// prompt is replaced by DefaultPrompt.
func (e *Engine) Create(ctx context.Context, owner, prompt string) (id string, err error) {
	ctx, span := e.begin(ctx, "things.create", "")
	defer func() { endSpan(span, err) }()

	if blank(owner) {
		return "", ErrMissingOwner
	}

	s := Session{
		Owner:     owner,
		Prompt:    promptOrDefault(prompt),
		Status:    StatusOpen,
		TurnQueue: TurnQueue{},
		CreatedAt: e.now(),
	}

	for range maxCodeAttempts {
		s.ID = e.opts.NewCode()

		err = e.store.CreateSession(ctx, s)
		if errors.Is(err, ErrSessionExists) {
			e.log.Debug().Str("session", s.ID).Msg("session code collision, retrying")
			continue
		}
		if err != nil {
			return "", storageError("create session", err)
		}

		e.log.Info().Str("session", s.ID).Str("owner", owner).Msg("session created")

		return s.ID, nil
	}

	return "", fmt.Errorf("create session: %w: no free code after %d attempts", ErrStorageUnavailable, maxCodeAttempts)
}

// AddEntry records an answer while the session is still open.
func (e *Engine) AddEntry(ctx context.Context, sessionID, author, text string) (res AddEntryResult, err error) {
	ctx, span := e.begin(ctx, "things.add_entry", sessionID)
	defer func() { endSpan(span, err) }()

	if blank(author) {
		return res, ErrMissingAuthor
	}
	if blank(text) {
		return res, ErrMissingText
	}

	unlock := e.locks.lock(sessionID)
	defer unlock()

	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return res, storageError("get session", err)
	}
	if s.Started() {
		return res, ErrSessionStarted
	}

	entry := Entry{
		ID:        e.opts.NewEntryID(),
		SessionID: sessionID,
		Author:    author,
		Text:      text,
		CreatedAt: e.now(),
	}
	if err := e.store.PutEntry(ctx, entry); err != nil {
		return res, storageError("put entry", err)
	}

	e.log.Debug().Str("session", sessionID).Str("author", author).Msg("entry added")

	res = AddEntryResult{Entry: entry, Events: []Event{EntriesUpdated()}}
	e.publish(sessionID, res.Events)

	return res, nil
}

// Start freezes the entries, shuffles their distinct authors into the turn
// queue and reveals every entry. Starting an already started session
// succeeds with AlreadyStarted set and changes nothing.
func (e *Engine) Start(ctx context.Context, sessionID string) (res StartResult, err error) {
	ctx, span := e.begin(ctx, "things.start", sessionID)
	defer func() { endSpan(span, err) }()

	unlock := e.locks.lock(sessionID)
	defer unlock()

	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return res, storageError("get session", err)
	}
	if s.Started() {
		return StartResult{AlreadyStarted: true, TurnQueue: s.TurnQueue}, nil
	}

	entries, err := e.store.ListEntries(ctx, sessionID)
	if err != nil {
		return res, storageError("list entries", err)
	}

	authors := make([]string, 0, len(entries))
	for _, entry := range entries {
		authors = append(authors, entry.Author)
	}
	queue := NewTurnQueue(authors, e.opts.Shuffle)

	ok, err := e.store.StartSession(ctx, sessionID, queue)
	if err != nil {
		return res, storageError("start session", err)
	}
	if !ok {
		// Another process won the transition; report its result.
		e.log.Info().Str("session", sessionID).Msg("session already started, ignoring duplicate request")

		res = StartResult{AlreadyStarted: true}
		if current, err := e.store.GetSession(ctx, sessionID); err == nil {
			res.TurnQueue = current.TurnQueue
		}
		return res, nil
	}

	if latest, err := e.store.ListEntries(ctx, sessionID); err == nil {
		entries = latest
	}
	if failed := e.revealAll(ctx, sessionID, entries); failed > 0 {
		e.log.Warn().Str("session", sessionID).Int("failed", failed).Msg("some entries could not be revealed")
	}

	e.log.Info().Str("session", sessionID).Strs("turn_order", queue).Msg("session started")

	res = StartResult{TurnQueue: queue, Events: []Event{GameStarted(queue)}}
	e.publish(sessionID, res.Events)

	return res, nil
}

// revealAll marks entries revealed, retrying each a bounded number of times.
// Revealing is idempotent, so a retry never does harm. It returns the number
// of entries left unrevealed.
func (e *Engine) revealAll(ctx context.Context, sessionID string, entries []Entry) int {
	failed := 0
	for _, entry := range entries {
		if entry.Revealed {
			continue
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 50 * time.Millisecond
		b.MaxInterval = time.Second

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			err := e.store.RevealEntry(ctx, sessionID, entry.ID)
			if errors.Is(err, ErrNotFound) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(e.opts.RevealAttempts)))
		if err != nil {
			failed++
			e.log.Warn().Err(err).Str("session", sessionID).Str("entry", entry.ID).Msg("reveal entry")
		}
	}
	return failed
}

// Reset discards every entry and reopens the session with a new prompt.
// Scores are kept.
func (e *Engine) Reset(ctx context.Context, sessionID, prompt string) (res ResetResult, err error) {
	ctx, span := e.begin(ctx, "things.reset", sessionID)
	defer func() { endSpan(span, err) }()

	unlock := e.locks.lock(sessionID)
	defer unlock()

	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return res, storageError("get session", err)
	}

	removed, err := e.store.DeleteEntries(ctx, sessionID)
	if err != nil {
		return res, storageError("delete entries", err)
	}

	if err := e.store.ResetSession(ctx, sessionID, promptOrDefault(prompt), e.now()); err != nil {
		return res, storageError("reset session", err)
	}

	e.log.Info().Str("session", sessionID).Int("removed", removed).Msg("session reset")

	res = ResetResult{Removed: removed, Events: []Event{GameReset()}}
	e.publish(sessionID, res.Events)

	return res, nil
}

// Session returns a snapshot of a session.
func (e *Engine) Session(ctx context.Context, sessionID string) (Session, error) {
	s, err := e.store.GetSession(context.WithoutCancel(ctx), sessionID)
	return s, storageError("get session", err)
}

// Entries returns every entry of a session in submission order.
func (e *Engine) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	ctx = context.WithoutCancel(ctx)
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return nil, storageError("get session", err)
	}
	entries, err := e.store.ListEntries(ctx, sessionID)
	return entries, storageError("list entries", err)
}

// Scores returns every score recorded in a session.
func (e *Engine) Scores(ctx context.Context, sessionID string) ([]Score, error) {
	ctx = context.WithoutCancel(ctx)
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return nil, storageError("get session", err)
	}
	scores, err := e.store.ListScores(ctx, sessionID)
	return scores, storageError("list scores", err)
}
