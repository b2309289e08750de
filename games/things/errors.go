package things

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the engine matches exactly one of
// these with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidInput       = errors.New("invalid input")
)

var (
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrEntryNotFound   = fmt.Errorf("entry %w", ErrNotFound)

	ErrSessionExists  = fmt.Errorf("%w: session id already in use", ErrConflict)
	ErrSessionStarted = fmt.Errorf("%w: session has already started", ErrConflict)
	ErrNotGuessable   = fmt.Errorf("%w: entry has not been revealed", ErrConflict)
	ErrSelfGuess      = fmt.Errorf("%w: players may not guess their own entry until it is the last one", ErrConflict)
	ErrNotYourTurn    = fmt.Errorf("%w: it is not this player's turn", ErrConflict)

	// Returned by Store guards. The engine handles both itself; callers only
	// see ErrQueueChanged after repeated lost races with another process.
	ErrEntryGuessed = fmt.Errorf("%w: entry has already been guessed", ErrConflict)
	ErrQueueChanged = fmt.Errorf("%w: turn queue changed concurrently", ErrConflict)

	ErrMissingOwner  = fmt.Errorf("%w: owner name is required", ErrInvalidInput)
	ErrMissingAuthor = fmt.Errorf("%w: author name is required", ErrInvalidInput)
	ErrMissingText   = fmt.Errorf("%w: entry text is required", ErrInvalidInput)
	ErrMissingPlayer = fmt.Errorf("%w: guesser name is required", ErrInvalidInput)
	ErrMissingGuess  = fmt.Errorf("%w: guess is required", ErrInvalidInput)
)

// storageError classifies an error returned by a Store. Domain sentinels pass
// through; anything else is reported as ErrStorageUnavailable.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
