// Package memory is an in-process things.Store. State is lost when the
// process exits.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/whosaidit/games/things"
)

// Store keeps sessions, entries and scores in maps guarded by one RWMutex.
// Values are copied on the way in and out, so callers never share memory
// with the store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]things.Session
	entries  map[string][]things.Entry // session id -> entries in insertion order
	scores   map[string]map[string]int // session id -> player -> score
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]things.Session),
		entries:  make(map[string][]things.Entry),
		scores:   make(map[string]map[string]int),
	}
}

func (s *Store) CreateSession(ctx context.Context, session things.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return things.ErrSessionExists
	}
	s.sessions[session.ID] = session.Clone()

	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (things.Session, error) {
	if err := ctx.Err(); err != nil {
		return things.Session{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return things.Session{}, things.ErrSessionNotFound
	}

	return session.Clone(), nil
}

func (s *Store) StartSession(ctx context.Context, id string, queue things.TurnQueue) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return false, things.ErrSessionNotFound
	}
	if session.Status == things.StatusStarted {
		return false, nil
	}

	session.Status = things.StatusStarted
	session.TurnQueue = slices.Clone(queue)
	s.sessions[id] = session

	return true, nil
}

func (s *Store) ResetSession(ctx context.Context, id, prompt string, createdAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return things.ErrSessionNotFound
	}

	session.Prompt = prompt
	session.Status = things.StatusOpen
	session.TurnQueue = things.TurnQueue{}
	session.CreatedAt = createdAt
	s.sessions[id] = session

	return nil
}

func (s *Store) SetTurnQueue(ctx context.Context, id string, from, to things.TurnQueue) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return false, things.ErrSessionNotFound
	}
	if !session.TurnQueue.Equal(from) {
		return false, nil
	}

	session.TurnQueue = slices.Clone(to)
	s.sessions[id] = session

	return true, nil
}

func (s *Store) PutEntry(ctx context.Context, entry things.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[entry.SessionID]
	for i := range list {
		if list[i].ID == entry.ID {
			list[i] = entry
			return nil
		}
	}
	s.entries[entry.SessionID] = append(list, entry)

	return nil
}

func (s *Store) GetEntry(ctx context.Context, sessionID, entryID string) (things.Entry, error) {
	if err := ctx.Err(); err != nil {
		return things.Entry{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(sessionID, entryID)
	if i < 0 {
		return things.Entry{}, things.ErrEntryNotFound
	}

	return s.entries[sessionID][i], nil
}

func (s *Store) ListEntries(ctx context.Context, sessionID string) ([]things.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.entries[sessionID])
	if out == nil {
		out = []things.Entry{}
	}

	return out, nil
}

func (s *Store) RevealEntry(ctx context.Context, sessionID, entryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(sessionID, entryID)
	if i < 0 {
		return things.ErrEntryNotFound
	}
	s.entries[sessionID][i].Revealed = true

	return nil
}

// ResolveGuess checks every guard before touching anything, so a rejected
// resolution leaves the store unchanged.
func (s *Store) ResolveGuess(ctx context.Context, sessionID string, r things.Resolution) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return 0, things.ErrSessionNotFound
	}
	i := s.indexOf(sessionID, r.EntryID)
	if i < 0 {
		return 0, things.ErrEntryNotFound
	}
	entry := &s.entries[sessionID][i]
	if entry.Guessed {
		return 0, things.ErrEntryGuessed
	}
	if !session.TurnQueue.Equal(r.From) {
		return 0, things.ErrQueueChanged
	}

	entry.Guessed = true
	session.TurnQueue = slices.Clone(r.To)
	s.sessions[sessionID] = session

	scores, ok := s.scores[sessionID]
	if !ok {
		scores = make(map[string]int)
		s.scores[sessionID] = scores
	}
	scores[r.Guesser]++

	return scores[r.Guesser], nil
}

func (s *Store) DeleteEntries(ctx context.Context, sessionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries[sessionID])
	delete(s.entries, sessionID)

	return n, nil
}

func (s *Store) ListScores(ctx context.Context, sessionID string) ([]things.Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]things.Score, 0, len(s.scores[sessionID]))
	for player, score := range s.scores[sessionID] {
		out = append(out, things.Score{SessionID: sessionID, Player: player, Score: score})
	}
	slices.SortFunc(out, func(a, b things.Score) int {
		return strings.Compare(a.Player, b.Player)
	})

	return out, nil
}

func (s *Store) ExpiredSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, session := range s.sessions {
		if session.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	return ids, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return things.ErrSessionNotFound
	}
	delete(s.sessions, id)
	delete(s.entries, id)
	delete(s.scores, id)

	return nil
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(sessionID, entryID string) int {
	return slices.IndexFunc(s.entries[sessionID], func(e things.Entry) bool {
		return e.ID == entryID
	})
}

var _ things.Store = (*Store)(nil)
