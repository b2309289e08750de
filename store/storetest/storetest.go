// Package storetest holds the behaviour every things.Store implementation
// must share. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Seednode/whosaidit/games/things"
)

// Run exercises a fresh store returned by open for each subtest.
func Run(t *testing.T, open func(t *testing.T) things.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s things.Store)
	}{
		{"CreateGetSession", testCreateGetSession},
		{"CreateSessionCollision", testCreateSessionCollision},
		{"MissingRecords", testMissingRecords},
		{"StartSessionGuard", testStartSessionGuard},
		{"ConcurrentStartSingleWinner", testConcurrentStart},
		{"ResetSession", testResetSession},
		{"SetTurnQueue", testSetTurnQueue},
		{"EntriesRoundTrip", testEntries},
		{"ResolveGuessGuards", testResolveGuess},
		{"ResolveGuessStaleQueueWritesNothing", testResolveGuessStaleQueue},
		{"ConcurrentResolveGuessSingleWinner", testConcurrentResolveGuess},
		{"DeleteEntries", testDeleteEntries},
		{"Scores", testScores},
		{"ExpireAndDeleteSession", testExpireAndDelete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

var epoch = time.Date(2026, time.October, 1, 18, 0, 0, 0, time.UTC)

func session(id string) things.Session {
	return things.Session{
		ID:        id,
		Owner:     "Alice",
		Prompt:    "Things you would find in a haunted house",
		Status:    things.StatusOpen,
		TurnQueue: things.TurnQueue{},
		CreatedAt: epoch,
	}
}

func mustCreate(t *testing.T, s things.Store, id string) {
	t.Helper()
	if err := s.CreateSession(context.Background(), session(id)); err != nil {
		t.Fatalf("create session %s: %v", id, err)
	}
}

func mustPutEntry(t *testing.T, s things.Store, sessionID, id, author string, offset time.Duration) {
	t.Helper()
	e := things.Entry{
		ID:        id,
		SessionID: sessionID,
		Author:    author,
		Text:      "answer from " + author,
		CreatedAt: epoch.Add(offset),
	}
	if err := s.PutEntry(context.Background(), e); err != nil {
		t.Fatalf("put entry %s: %v", id, err)
	}
}

func testCreateGetSession(t *testing.T, s things.Store) {
	ctx := context.Background()
	mustCreate(t, s, "ABCD")

	got, err := s.GetSession(ctx, "ABCD")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	want := session("ABCD")
	if got.ID != want.ID || got.Owner != want.Owner || got.Prompt != want.Prompt {
		t.Fatalf("session = %+v, want %+v", got, want)
	}
	if got.Status != things.StatusOpen {
		t.Fatalf("status = %q, want %q", got.Status, things.StatusOpen)
	}
	if got.TurnQueue.Len() != 0 {
		t.Fatalf("turn queue = %v, want empty", got.TurnQueue)
	}
	if !got.CreatedAt.Equal(epoch) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, epoch)
	}
}

func testCreateSessionCollision(t *testing.T, s things.Store) {
	mustCreate(t, s, "ABCD")

	err := s.CreateSession(context.Background(), session("ABCD"))
	if !errors.Is(err, things.ErrSessionExists) {
		t.Fatalf("duplicate create error = %v, want %v", err, things.ErrSessionExists)
	}
}

func testMissingRecords(t *testing.T, s things.Store) {
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "NOPE"); !errors.Is(err, things.ErrSessionNotFound) {
		t.Fatalf("get session error = %v, want %v", err, things.ErrSessionNotFound)
	}
	if _, err := s.StartSession(ctx, "NOPE", nil); !errors.Is(err, things.ErrSessionNotFound) {
		t.Fatalf("start session error = %v, want %v", err, things.ErrSessionNotFound)
	}
	if err := s.ResetSession(ctx, "NOPE", "p", epoch); !errors.Is(err, things.ErrSessionNotFound) {
		t.Fatalf("reset session error = %v, want %v", err, things.ErrSessionNotFound)
	}
	if _, err := s.SetTurnQueue(ctx, "NOPE", nil, nil); !errors.Is(err, things.ErrSessionNotFound) {
		t.Fatalf("set turn queue error = %v, want %v", err, things.ErrSessionNotFound)
	}
	if err := s.DeleteSession(ctx, "NOPE"); !errors.Is(err, things.ErrSessionNotFound) {
		t.Fatalf("delete session error = %v, want %v", err, things.ErrSessionNotFound)
	}

	mustCreate(t, s, "ABCD")
	if _, err := s.GetEntry(ctx, "ABCD", "missing"); !errors.Is(err, things.ErrEntryNotFound) {
		t.Fatalf("get entry error = %v, want %v", err, things.ErrEntryNotFound)
	}
	if err := s.RevealEntry(ctx, "ABCD", "missing"); !errors.Is(err, things.ErrEntryNotFound) {
		t.Fatalf("reveal entry error = %v, want %v", err, things.ErrEntryNotFound)
	}
	if _, err := s.ResolveGuess(ctx, "ABCD", things.Resolution{EntryID: "missing", Guesser: "Bob"}); !errors.Is(err, things.ErrEntryNotFound) {
		t.Fatalf("resolve guess error = %v, want %v", err, things.ErrEntryNotFound)
	}
	if _, err := s.ResolveGuess(ctx, "NOPE", things.Resolution{EntryID: "missing", Guesser: "Bob"}); !errors.Is(err, things.ErrNotFound) {
		t.Fatalf("resolve guess in missing session error = %v, want %v", err, things.ErrNotFound)
	}
}

func testStartSessionGuard(t *testing.T, s things.Store) {
	ctx := context.Background()
	mustCreate(t, s, "ABCD")

	ok, err := s.StartSession(ctx, "ABCD", things.TurnQueue{"Bob", "Alice"})
	if err != nil || !ok {
		t.Fatalf("first start = %v, %v; want true, nil", ok, err)
	}

	ok, err = s.StartSession(ctx, "ABCD", things.TurnQueue{"Carol"})
	if err != nil || ok {
		t.Fatalf("second start = %v, %v; want false, nil", ok, err)
	}

	got, err := s.GetSession(ctx, "ABCD")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != things.StatusStarted {
		t.Fatalf("status = %q, want %q", got.Status, things.StatusStarted)
	}
	if want := (things.TurnQueue{"Bob", "Alice"}); !got.TurnQueue.Equal(want) {
		t.Fatalf("turn queue = %v, want %v", got.TurnQueue, want)
	}
}

func testConcurrentStart(t *testing.T, s things.Store) {
	mustCreate(t, s, "ABCD")

	const callers = 8
	var (
		wins atomic.Int32
		wg   sync.WaitGroup
		errs = make(chan error, callers)
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.StartSession(context.Background(), "ABCD", things.TurnQueue{fmt.Sprintf("p%d", i)})
			if err != nil {
				errs <- err
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("start session: %v", err)
	}
	if got := wins.Load(); got != 1 {
		t.Fatalf("winning starts = %d, want 1", got)
	}
}

func testResetSession(t *testing.T, s things.Store) {
	ctx := context.Background()
	mustCreate(t, s, "ABCD")
	if _, err := s.StartSession(ctx, "ABCD", things.TurnQueue{"Alice"}); err != nil {
		t.Fatalf("start session: %v", err)
	}

	later := epoch.Add(time.Hour)
	if err := s.ResetSession(ctx, "ABCD", "New prompt", later); err != nil {
		t.Fatalf("reset session: %v", err)
	}

	got, err := s.GetSession(ctx, "ABCD")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != things.StatusOpen {
		t.Fatalf("status = %q, want %q", got.Status, things.StatusOpen)
	}
	if got.Prompt != "New prompt" {
		t.Fatalf("prompt = %q, want %q", got.Prompt, "New prompt")
	}
	if got.TurnQueue.Len() != 0 {
		t.Fatalf("turn queue = %v, want empty", got.TurnQueue)
	}
	if !got.CreatedAt.Equal(later) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, later)
	}
	if got.Owner != "Alice" {
		t.Fatalf("owner = %q, want Alice", got.Owner)
	}
}

func testSetTurnQueue(t *testing.T, s things.Store) {
	ctx := context.Background()
	mustCreate(t, s, "ABCD")

	want := things.TurnQueue{"Carol", "Alice", "Bob"}
	ok, err := s.SetTurnQueue(ctx, "ABCD", things.TurnQueue{}, want)
	if err != nil || !ok {
		t.Fatalf("set turn queue = %v, %v; want true, nil", ok, err)
	}
	// The store must not alias the caller's slice.
	want[0] = "Mallory"

	ok, err = s.SetTurnQueue(ctx, "ABCD", things.TurnQueue{}, things.TurnQueue{"Dave"})
	if err != nil || ok {
		t.Fatalf("set turn queue from stale queue = %v, %v; want false, nil", ok, err)
	}

	got, err := s.GetSession(ctx, "ABCD")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if exp := (things.TurnQueue{"Carol", "Alice", "Bob"}); !got.TurnQueue.Equal(exp) {
		t.Fatalf("turn queue = %v, want %v", got.TurnQueue, exp)
	}

	// Writing the queue it already holds still counts as applied.
	ok, err = s.SetTurnQueue(ctx, "ABCD", got.TurnQueue, got.TurnQueue)
	if err != nil || !ok {
		t.Fatalf("set unchanged turn queue = %v, %v; want true, nil", ok, err)
	}
}

func testEntries(t *testing.T, s things.Store) {
	ctx := context.Background()
	mustCreate(t, s, "ABCD")
	mustCreate(t, s, "WXYZ")
	mustPutEntry(t, s, "ABCD", "e1", "Alice", 0)
	mustPutEntry(t, s, "ABCD", "e2", "Bob", time.Second)
	mustPutEntry(t, s, "WXYZ", "e3", "Carol", 0)

	list, err := s.ListEntries(ctx, "ABCD")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(list) != 2 || list[0].ID != "e1" || list[1].ID != "e2" {
		t.Fatalf("entries = %+v, want e1, e2 in order", list)
	}

	empty, err := s.ListEntries(ctx, "NONE")
	if err != nil {
		t.Fatalf("list entries of unknown session: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("entries = %+v, want none", empty)
	}

	if err := s.RevealEntry(ctx, "ABCD", "e1"); err != nil {
		t.Fatalf("reveal entry: %v", err)
	}
	// Revealing twice is harmless.
	if err := s.RevealEntry(ctx, "ABCD", "e1"); err != nil {
		t.Fatalf("reveal entry again: %v", err)
	}

	got, err := s.GetEntry(ctx, "ABCD", "e1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !got.Revealed || got.Guessed {
		t.Fatalf("entry flags = revealed:%v guessed:%v, want true/false", got.Revealed, got.Guessed)
	}
	if got.Author != "Alice" || got.Text != "answer from Alice" {
		t.Fatalf("entry = %+v", got)
	}

	if _, err := s.GetEntry(ctx, "WXYZ", "e1"); !errors.Is(err, things.ErrEntryNotFound) {
		t.Fatalf("cross-session get entry error = %v, want %v", err, things.ErrEntryNotFound)
	}
}

func mustStart(t *testing.T, s things.Store, id string, queue things.TurnQueue) {
	t.Helper()
	if ok, err := s.StartSession(context.Background(), id, queue); err != nil || !ok {
		t.Fatalf("start session %s = %v, %v", id, ok, err)
	}
}

func scoresOf(t *testing.T, s things.Store, sessionID string) map[string]int {
	t.Helper()
	list, err := s.ListScores(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("list scores: %v", err)
	}
	out := make(map[string]int, len(list))
	for _, sc := range list {
		out[sc.Player] = sc.Score
	}
	return out
}

func testResolveGuess(t *testing.T, s things.Store) {
	ctx := context.Background()
	mustCreate(t, s, "ABCD")
	mustPutEntry(t, s, "ABCD", "e1", "Alice", 0)
	mustStart(t, s, "ABCD", things.TurnQueue{"Alice", "Bob"})

	r := things.Resolution{
		EntryID: "e1",
		Guesser: "Bob",
		From:    things.TurnQueue{"Alice", "Bob"},
		To:      things.TurnQueue{"Bob"},
	}
	score, err := s.ResolveGuess(ctx, "ABCD", r)
	if err != nil || score != 1 {
		t.Fatalf("first resolve = %d, %v; want 1, nil", score, err)
	}

	got, err := s.GetEntry(ctx, "ABCD", "e1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !got.Guessed {
		t.Fatal("entry not guessed after resolve")
	}
	session, err := s.GetSession(ctx, "ABCD")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !session.TurnQueue.Equal(r.To) {
		t.Fatalf("turn queue = %v, want %v", session.TurnQueue, r.To)
	}

	r.From = r.To
	if _, err := s.ResolveGuess(ctx, "ABCD", r); !errors.Is(err, things.ErrEntryGuessed) {
		t.Fatalf("second resolve error = %v, want %v", err, things.ErrEntryGuessed)
	}
	if got := scoresOf(t, s, "ABCD"); got["Bob"] != 1 || len(got) != 1 {
		t.Fatalf("scores = %v, want Bob: 1", got)
	}
}

func testResolveGuessStaleQueue(t *testing.T, s things.Store) {
	ctx := context.Background()
	mustCreate(t, s, "ABCD")
	mustPutEntry(t, s, "ABCD", "e1", "Alice", 0)
	mustStart(t, s, "ABCD", things.TurnQueue{"Bob", "Alice"})

	_, err := s.ResolveGuess(ctx, "ABCD", things.Resolution{
		EntryID: "e1",
		Guesser: "Bob",
		From:    things.TurnQueue{"Alice", "Bob"},
		To:      things.TurnQueue{"Bob"},
	})
	if !errors.Is(err, things.ErrQueueChanged) {
		t.Fatalf("resolve error = %v, want %v", err, things.ErrQueueChanged)
	}

	got, err := s.GetEntry(ctx, "ABCD", "e1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if got.Guessed {
		t.Fatal("rejected resolve marked the entry guessed")
	}
	session, err := s.GetSession(ctx, "ABCD")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if want := (things.TurnQueue{"Bob", "Alice"}); !session.TurnQueue.Equal(want) {
		t.Fatalf("turn queue = %v, want %v", session.TurnQueue, want)
	}
	if got := scoresOf(t, s, "ABCD"); len(got) != 0 {
		t.Fatalf("scores = %v, want none", got)
	}
}

func testConcurrentResolveGuess(t *testing.T, s things.Store) {
	mustCreate(t, s, "ABCD")
	mustPutEntry(t, s, "ABCD", "e1", "Alice", 0)
	mustStart(t, s, "ABCD", things.TurnQueue{"Alice", "Bob"})

	const callers = 8
	var (
		wins atomic.Int32
		wg   sync.WaitGroup
		errs = make(chan error, callers)
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ResolveGuess(context.Background(), "ABCD", things.Resolution{
				EntryID: "e1",
				Guesser: fmt.Sprintf("p%d", i),
				From:    things.TurnQueue{"Alice", "Bob"},
				To:      things.TurnQueue{"Bob"},
			})
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, things.ErrEntryGuessed):
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("resolve guess: %v", err)
	}
	if got := wins.Load(); got != 1 {
		t.Fatalf("winning resolves = %d, want 1", got)
	}

	total := 0
	for _, score := range scoresOf(t, s, "ABCD") {
		total += score
	}
	if total != 1 {
		t.Fatalf("total score = %d, want 1", total)
	}
}

func testDeleteEntries(t *testing.T, s things.Store) {
	ctx := context.Background()
	mustCreate(t, s, "ABCD")
	mustCreate(t, s, "WXYZ")
	mustPutEntry(t, s, "ABCD", "e1", "Alice", 0)
	mustPutEntry(t, s, "ABCD", "e2", "Bob", time.Second)
	mustPutEntry(t, s, "WXYZ", "e3", "Carol", 0)

	n, err := s.DeleteEntries(ctx, "ABCD")
	if err != nil {
		t.Fatalf("delete entries: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}

	list, err := s.ListEntries(ctx, "ABCD")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("entries after delete = %+v, want none", list)
	}

	other, err := s.ListEntries(ctx, "WXYZ")
	if err != nil {
		t.Fatalf("list other entries: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("other session entries = %d, want 1", len(other))
	}
}

func testScores(t *testing.T, s things.Store) {
	ctx := context.Background()
	mustCreate(t, s, "ABCD")
	for i := range 4 {
		mustPutEntry(t, s, "ABCD", fmt.Sprintf("e%d", i), "Carol", time.Duration(i)*time.Second)
	}

	for i, want := range []int{1, 2, 3} {
		got, err := s.ResolveGuess(ctx, "ABCD", things.Resolution{EntryID: fmt.Sprintf("e%d", i), Guesser: "Bob"})
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("score after %d guesses = %d, want %d", i+1, got, want)
		}
	}
	if _, err := s.ResolveGuess(ctx, "ABCD", things.Resolution{EntryID: "e3", Guesser: "Alice"}); err != nil {
		t.Fatalf("resolve for Alice: %v", err)
	}

	scores, err := s.ListScores(ctx, "ABCD")
	if err != nil {
		t.Fatalf("list scores: %v", err)
	}
	want := []things.Score{
		{SessionID: "ABCD", Player: "Alice", Score: 1},
		{SessionID: "ABCD", Player: "Bob", Score: 3},
	}
	if len(scores) != len(want) {
		t.Fatalf("scores = %+v, want %+v", scores, want)
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Fatalf("scores[%d] = %+v, want %+v", i, scores[i], want[i])
		}
	}
}

func testExpireAndDelete(t *testing.T, s things.Store) {
	ctx := context.Background()

	old := session("OLDS")
	old.CreatedAt = epoch.Add(-72 * time.Hour)
	if err := s.CreateSession(ctx, old); err != nil {
		t.Fatalf("create old session: %v", err)
	}
	mustCreate(t, s, "NEWS")
	mustPutEntry(t, s, "OLDS", "e1", "Alice", 0)
	if _, err := s.ResolveGuess(ctx, "OLDS", things.Resolution{EntryID: "e1", Guesser: "Bob"}); err != nil {
		t.Fatalf("resolve guess: %v", err)
	}

	ids, err := s.ExpiredSessions(ctx, epoch.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("expired sessions: %v", err)
	}
	if len(ids) != 1 || ids[0] != "OLDS" {
		t.Fatalf("expired = %v, want [OLDS]", ids)
	}

	if err := s.DeleteSession(ctx, "OLDS"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.GetSession(ctx, "OLDS"); !errors.Is(err, things.ErrSessionNotFound) {
		t.Fatalf("get deleted session error = %v, want %v", err, things.ErrSessionNotFound)
	}
	entries, err := s.ListEntries(ctx, "OLDS")
	if err != nil || len(entries) != 0 {
		t.Fatalf("entries of deleted session = %v, %v; want none", entries, err)
	}
	scores, err := s.ListScores(ctx, "OLDS")
	if err != nil || len(scores) != 0 {
		t.Fatalf("scores of deleted session = %v, %v; want none", scores, err)
	}
	if _, err := s.GetSession(ctx, "NEWS"); err != nil {
		t.Fatalf("unexpired session: %v", err)
	}
}
