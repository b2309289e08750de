package things

import (
	"context"
	"errors"
)

// GuessResult is returned by Guess.
//
// AlreadyGuessed is a soft failure: somebody else resolved the entry first,
// so nothing was scored and no events were emitted.
type GuessResult struct {
	IsCorrect      bool
	AlreadyGuessed bool
	Entry          Entry
	TurnQueue      TurnQueue
	// Score is the guesser's new total after a correct guess.
	Score  int
	Events []Event
}

// Guess resolves guesser's claim that guess wrote the given entry.
//
// A correct guess marks the entry guessed, credits the guesser one point and
// takes the author out of the turn queue, all in one Store write. An
// incorrect guess passes the turn by rotating the queue. The resolution runs
// under the session's lock, and both writes are guarded on the queue they
// were computed from; when another process changed the queue first, the
// guess is re-evaluated against fresh state.
func (e *Engine) Guess(ctx context.Context, sessionID, entryID, guesser, guess string) (res GuessResult, err error) {
	ctx, span := e.begin(ctx, "things.guess", sessionID)
	defer func() { endSpan(span, err) }()

	if blank(guesser) {
		return res, ErrMissingPlayer
	}
	if blank(guess) {
		return res, ErrMissingGuess
	}

	unlock := e.locks.lock(sessionID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		res, err = e.resolve(ctx, sessionID, entryID, guesser, guess)
		if !errors.Is(err, ErrQueueChanged) || attempt >= maxQueueAttempts {
			break
		}
		e.log.Debug().Str("session", sessionID).Int("attempt", attempt).Msg("turn queue changed, retrying guess")
	}
	if err != nil {
		return GuessResult{}, err
	}

	e.publish(sessionID, res.Events)

	return res, nil
}

func (e *Engine) resolve(ctx context.Context, sessionID, entryID, guesser, guess string) (GuessResult, error) {
	entry, err := e.store.GetEntry(ctx, sessionID, entryID)
	if err != nil {
		return GuessResult{}, storageError("get entry", err)
	}
	if entry.Guessed {
		return GuessResult{AlreadyGuessed: true, Entry: entry}, nil
	}
	if !entry.Guessable() {
		return GuessResult{}, ErrNotGuessable
	}

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return GuessResult{}, storageError("get session", err)
	}

	if e.opts.EnforceTurns {
		if head, ok := session.TurnQueue.Head(); ok && head != guesser {
			return GuessResult{}, ErrNotYourTurn
		}
	}

	// Loaded lazily; only the self-guess rule and the all-guessed removal
	// policy need the full list.
	var entries []Entry
	loadEntries := func() error {
		if entries != nil {
			return nil
		}
		list, err := e.store.ListEntries(ctx, sessionID)
		if err != nil {
			return storageError("list entries", err)
		}
		entries = list
		return nil
	}

	if !e.opts.AllowSelfGuess && entry.Author == guesser {
		if err := loadEntries(); err != nil {
			return GuessResult{}, err
		}
		if unguessed(entries) > 1 {
			return GuessResult{}, ErrSelfGuess
		}
	}

	if !e.matches(entry.Author, guess) {
		return e.wrongGuess(ctx, session, entry, guesser)
	}

	queue := session.TurnQueue
	remove := true
	if e.opts.Removal == RemoveWhenAllGuessed {
		if err := loadEntries(); err != nil {
			return GuessResult{}, err
		}
		remove = !authorHasPending(entries, entry)
	}
	if remove {
		queue = queue.Remove(entry.Author)
	}

	score, err := e.store.ResolveGuess(ctx, sessionID, Resolution{
		EntryID: entryID,
		Guesser: guesser,
		From:    session.TurnQueue,
		To:      queue,
	})
	if errors.Is(err, ErrEntryGuessed) {
		e.log.Debug().Str("session", sessionID).Str("entry", entryID).Str("guesser", guesser).Msg("entry already guessed")
		entry.Guessed = true
		return GuessResult{AlreadyGuessed: true, Entry: entry}, nil
	}
	if err != nil {
		return GuessResult{}, storageError("resolve guess", err)
	}
	entry.Guessed = true

	e.log.Info().
		Str("session", sessionID).
		Str("guesser", guesser).
		Str("author", entry.Author).
		Int("score", score).
		Msg("correct guess")

	return GuessResult{
		IsCorrect: true,
		Entry:     entry,
		TurnQueue: queue,
		Score:     score,
		Events: []Event{
			ScoreUpdated(guesser, entry.Author, entry.Text),
			NextTurn(queue),
			EntriesUpdated(),
		},
	}, nil
}

func (e *Engine) wrongGuess(ctx context.Context, session Session, entry Entry, guesser string) (GuessResult, error) {
	queue := session.TurnQueue.Rotate()
	if !queue.Equal(session.TurnQueue) {
		ok, err := e.store.SetTurnQueue(ctx, session.ID, session.TurnQueue, queue)
		if err != nil {
			return GuessResult{}, storageError("set turn queue", err)
		}
		if !ok {
			return GuessResult{}, ErrQueueChanged
		}
	}

	e.log.Info().
		Str("session", session.ID).
		Str("guesser", guesser).
		Msg("wrong guess")

	return GuessResult{
		Entry:     entry,
		TurnQueue: queue,
		Events: []Event{
			WrongAnswer(guesser, entry.Author, entry.Text),
			NextTurn(queue),
		},
	}, nil
}

func unguessed(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if !e.Guessed {
			n++
		}
	}
	return n
}

// authorHasPending reports whether the author of resolved wrote any other
// entry that is still unguessed.
func authorHasPending(entries []Entry, resolved Entry) bool {
	for _, e := range entries {
		if e.ID != resolved.ID && e.Author == resolved.Author && !e.Guessed {
			return true
		}
	}
	return false
}
