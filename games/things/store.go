package things

import (
	"context"
	"time"
)

// Store persists sessions, entries and scores.
//
// Implementations return ErrSessionNotFound / ErrEntryNotFound for missing
// records and ErrSessionExists when CreateSession collides. Any other error
// is treated by the engine as the store being unavailable.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)

	// StartSession sets status to started and stores queue, but only if the
	// session is currently open. ok is false when the guard failed.
	StartSession(ctx context.Context, id string, queue TurnQueue) (ok bool, err error)

	// ResetSession unconditionally reopens a session with a new prompt, an
	// empty turn queue and a fresh creation time.
	ResetSession(ctx context.Context, id, prompt string, createdAt time.Time) error

	// SetTurnQueue replaces the turn queue with to, but only if the stored
	// queue still equals from. ok is false when the guard failed.
	SetTurnQueue(ctx context.Context, id string, from, to TurnQueue) (ok bool, err error)

	PutEntry(ctx context.Context, e Entry) error
	GetEntry(ctx context.Context, sessionID, entryID string) (Entry, error)
	ListEntries(ctx context.Context, sessionID string) ([]Entry, error)
	RevealEntry(ctx context.Context, sessionID, entryID string) error

	// ResolveGuess records a correct guess as one atomic write: the entry is
	// marked guessed, the guesser gains a point and the turn queue moves from
	// r.From to r.To. Nothing is written when the entry was already guessed
	// (ErrEntryGuessed) or the stored queue no longer equals r.From
	// (ErrQueueChanged). It returns the guesser's new total.
	ResolveGuess(ctx context.Context, sessionID string, r Resolution) (score int, err error)

	// DeleteEntries removes every entry of a session and reports how many
	// were removed.
	DeleteEntries(ctx context.Context, sessionID string) (int, error)

	ListScores(ctx context.Context, sessionID string) ([]Score, error)

	// ExpiredSessions lists sessions created before cutoff.
	ExpiredSessions(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteSession removes a session together with its entries and scores.
	DeleteSession(ctx context.Context, id string) error
}

// Resolution describes the writes of a correct guess.
type Resolution struct {
	EntryID string
	Guesser string
	From    TurnQueue
	To      TurnQueue
}

// Broadcaster fans events out to every client watching a session. Publish
// must not block on slow clients; delivery is best effort.
type Broadcaster interface {
	Publish(sessionID string, events ...Event)
}

// Discard is a Broadcaster that drops every event.
var Discard Broadcaster = discard{}

type discard struct{}

func (discard) Publish(string, ...Event) {}
