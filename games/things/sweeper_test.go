package things_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Seednode/whosaidit/games/things"
	"github.com/Seednode/whosaidit/store/memory"
)

func TestSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t, things.Options{})
	ctx := context.Background()

	old := f.create(t, "Alice", "P")
	a := f.add(t, old, "Alice", "one")
	f.add(t, old, "Bob", "two")
	f.start(t, old)
	guess(t, f, old, a.ID, "Bob", "Alice")

	f.clock.Advance(47 * time.Hour)
	fresh := f.create(t, "Carol", "P")
	f.clock.Advance(2 * time.Hour)

	sweeper := things.NewSweeper(f.engine, 48*time.Hour, time.Hour)
	removed, err := sweeper.Sweep(ctx, f.clock.Now())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if _, err := f.engine.Session(ctx, old); !errors.Is(err, things.ErrSessionNotFound) {
		t.Fatalf("Session(old) error = %v, want %v", err, things.ErrSessionNotFound)
	}
	if list, _ := f.store.ListEntries(ctx, old); len(list) != 0 {
		t.Fatalf("entries of expired session = %v", list)
	}
	if list, _ := f.store.ListScores(ctx, old); len(list) != 0 {
		t.Fatalf("scores of expired session = %v", list)
	}
	f.session(t, fresh)
}

func TestSweepSkipsFailures(t *testing.T) {
	t.Parallel()

	store := newFailingStore(memory.New())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := things.New(store, nil, things.Options{Now: func() time.Time { return now }})

	ctx := context.Background()
	for _, owner := range []string{"Alice", "Bob"} {
		if _, err := e.Create(ctx, owner, ""); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	store.failNext("DeleteSession", 1)
	removed, err := e.Expire(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Expire() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	removed, err = e.Expire(ctx, now.Add(time.Minute))
	if err != nil || removed != 1 {
		t.Fatalf("second Expire() = %d, %v, want 1, nil", removed, err)
	}
}

func TestExpireKeepsSessionResetAfterListing(t *testing.T) {
	t.Parallel()

	store := &meddlingStore{Store: memory.New()}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := things.New(store, nil, things.Options{Now: func() time.Time { return now }})

	ctx := context.Background()
	id, err := e.Create(ctx, "Alice", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	store.meddleNext(1, func(ctx context.Context, inner things.Store) {
		if err := inner.ResetSession(ctx, id, "fresh", now.Add(time.Hour)); err != nil {
			t.Errorf("ResetSession() error = %v", err)
		}
	})
	removed, err := e.Expire(ctx, now.Add(time.Minute))
	if err != nil || removed != 0 {
		t.Fatalf("Expire() = %d, %v, want 0, nil", removed, err)
	}
	if _, err := e.Session(ctx, id); err != nil {
		t.Fatalf("Session() after reset = %v, want it kept", err)
	}

	removed, err = e.Expire(ctx, now.Add(2*time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("later Expire() = %d, %v, want 1, nil", removed, err)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, things.Options{})
	sweeper := things.NewSweeper(f.engine, time.Hour, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
