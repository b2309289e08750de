package things_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Seednode/whosaidit/games/things"
	"github.com/Seednode/whosaidit/store/memory"
)

var errBackend = errors.New("backend down")

// recorder is a Broadcaster that keeps every published event.
type recorder struct {
	mu     sync.Mutex
	events map[string][]things.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(map[string][]things.Event)}
}

func (r *recorder) Publish(sessionID string, events ...things.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[sessionID] = append(r.events[sessionID], events...)
}

func (r *recorder) names(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.events[sessionID]))
	for _, ev := range r.events[sessionID] {
		out = append(out, ev.Name())
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = make(map[string][]things.Event)
}

// keepOrder leaves the queue in first-submission order.
func keepOrder(int, func(i, j int)) {}

type fixture struct {
	engine *things.Engine
	store  *memory.Store
	bus    *recorder
	clock  *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newFixture(t *testing.T, opts things.Options) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.New(),
		bus:   newRecorder(),
		clock: &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	if opts.Shuffle == nil {
		opts.Shuffle = keepOrder
	}
	if opts.Now == nil {
		opts.Now = f.clock.Now
	}
	f.engine = things.New(f.store, f.bus, opts)
	return f
}

func (f *fixture) create(t *testing.T, owner, prompt string) string {
	t.Helper()

	id, err := f.engine.Create(context.Background(), owner, prompt)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return id
}

func (f *fixture) add(t *testing.T, sessionID, author, text string) things.Entry {
	t.Helper()

	res, err := f.engine.AddEntry(context.Background(), sessionID, author, text)
	if err != nil {
		t.Fatalf("AddEntry(%q) error = %v", author, err)
	}
	return res.Entry
}

func (f *fixture) start(t *testing.T, sessionID string) things.StartResult {
	t.Helper()

	res, err := f.engine.Start(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return res
}

func (f *fixture) session(t *testing.T, sessionID string) things.Session {
	t.Helper()

	s, err := f.engine.Session(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	return s
}

func (f *fixture) entry(t *testing.T, sessionID, entryID string) things.Entry {
	t.Helper()

	e, err := f.store.GetEntry(context.Background(), sessionID, entryID)
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	return e
}

func (f *fixture) scores(t *testing.T, sessionID string) map[string]int {
	t.Helper()

	list, err := f.engine.Scores(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Scores() error = %v", err)
	}
	out := make(map[string]int, len(list))
	for _, s := range list {
		out[s.Player] = s.Score
	}
	return out
}

// failingStore fails the named operations with errBackend and delegates
// everything else.
type failingStore struct {
	things.Store

	mu    sync.Mutex
	fail  map[string]int
	calls map[string]int
}

func newFailingStore(inner things.Store) *failingStore {
	return &failingStore{Store: inner, fail: make(map[string]int), calls: make(map[string]int)}
}

// failNext makes the next n calls of op fail. A negative n fails forever.
func (s *failingStore) failNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail[op] = n
}

func (s *failingStore) check(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[op]++
	switch n := s.fail[op]; {
	case n < 0:
		return errBackend
	case n > 0:
		s.fail[op] = n - 1
		return errBackend
	}
	return nil
}

func (s *failingStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[op]
}

func (s *failingStore) CreateSession(ctx context.Context, session things.Session) error {
	if err := s.check("CreateSession"); err != nil {
		return err
	}
	return s.Store.CreateSession(ctx, session)
}

func (s *failingStore) RevealEntry(ctx context.Context, sessionID, entryID string) error {
	if err := s.check("RevealEntry"); err != nil {
		return err
	}
	return s.Store.RevealEntry(ctx, sessionID, entryID)
}

func (s *failingStore) SetTurnQueue(ctx context.Context, id string, from, to things.TurnQueue) (bool, error) {
	if err := s.check("SetTurnQueue"); err != nil {
		return false, err
	}
	return s.Store.SetTurnQueue(ctx, id, from, to)
}

func (s *failingStore) ResolveGuess(ctx context.Context, sessionID string, r things.Resolution) (int, error) {
	if err := s.check("ResolveGuess"); err != nil {
		return 0, err
	}
	return s.Store.ResolveGuess(ctx, sessionID, r)
}

func (s *failingStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.check("DeleteSession"); err != nil {
		return err
	}
	return s.Store.DeleteSession(ctx, id)
}

// meddlingStore stands in for another process sharing the store: it runs
// meddle against the inner store just before guarded queue writes and just
// after the expiry listing.
type meddlingStore struct {
	things.Store

	mu     sync.Mutex
	left   int
	meddle func(ctx context.Context, inner things.Store)
}

// meddleNext arms meddle for the next n hook points. A negative n never runs
// out.
func (s *meddlingStore) meddleNext(n int, meddle func(ctx context.Context, inner things.Store)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.left, s.meddle = n, meddle
}

func (s *meddlingStore) interfere(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.left == 0 || s.meddle == nil {
		return
	}
	if s.left > 0 {
		s.left--
	}
	s.meddle(ctx, s.Store)
}

func (s *meddlingStore) SetTurnQueue(ctx context.Context, id string, from, to things.TurnQueue) (bool, error) {
	s.interfere(ctx)
	return s.Store.SetTurnQueue(ctx, id, from, to)
}

func (s *meddlingStore) ResolveGuess(ctx context.Context, sessionID string, r things.Resolution) (int, error) {
	s.interfere(ctx)
	return s.Store.ResolveGuess(ctx, sessionID, r)
}

func (s *meddlingStore) ExpiredSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := s.Store.ExpiredSessions(ctx, cutoff)
	if err == nil {
		s.interfere(ctx)
	}
	return ids, err
}

// replaceQueue swaps a session's stored queue through the guarded write, as
// another process would.
func replaceQueue(t *testing.T, inner things.Store, sessionID string, next func(things.TurnQueue) things.TurnQueue) {
	t.Helper()

	ctx := context.Background()
	session, err := inner.GetSession(ctx, sessionID)
	if err != nil {
		t.Errorf("GetSession() error = %v", err)
		return
	}
	if ok, err := inner.SetTurnQueue(ctx, sessionID, session.TurnQueue, next(session.TurnQueue)); err != nil || !ok {
		t.Errorf("SetTurnQueue() = %v, %v", ok, err)
	}
}
