// Package things implements the turn coordination and guess resolution for a
// round of "who said it": players answer a shared prompt anonymously, the
// answers are revealed, and players take turns naming the author of each
// answer.
//
// The engine owns no state of its own beyond a per-session lock registry.
// Sessions, entries and scores live in a Store; domain events go to a
// Broadcaster. Both are injected by the caller.
package things

import (
	"slices"
	"time"
)

// DefaultPrompt is used when a session is created or reset without a prompt.
const DefaultPrompt = "What is your favorite thing?"

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusOpen    Status = "open"
	StatusStarted Status = "started"
)

// Session is one game room, identified by a short shareable code.
type Session struct {
	ID        string
	Owner     string
	Prompt    string
	Status    Status
	TurnQueue TurnQueue
	CreatedAt time.Time
}

// Started reports whether entries are frozen and turns are active.
func (s Session) Started() bool { return s.Status == StatusStarted }

// Clone returns a copy that shares no memory with s.
func (s Session) Clone() Session {
	s.TurnQueue = slices.Clone(s.TurnQueue)
	return s
}

// Entry is one submitted answer.
//
// Revealed and Guessed only ever move from false to true; Guessed implies
// Revealed.
type Entry struct {
	ID        string
	SessionID string
	Author    string
	Text      string
	CreatedAt time.Time
	Revealed  bool
	Guessed   bool
}

// Guessable reports whether a guess may currently be made against e.
func (e Entry) Guessable() bool { return e.Revealed && !e.Guessed }

// Score accumulates correct guesses for one player in one session.
type Score struct {
	SessionID string
	Player    string
	Score     int
}
