package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Seednode/whosaidit/games/things"
	"github.com/Seednode/whosaidit/store/storetest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "whosaidit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestStore(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) things.Store { return openTempStore(t) })
}

func TestMigrationsApplyOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reopen.db")
	for i := range 2 {
		store, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}

		var applied int
		if err := store.db.QueryRow(`SELECT COUNT(*) FROM ` + migrationTable).Scan(&applied); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if applied != 1 {
			t.Fatalf("applied migrations = %d, want 1", applied)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
}

func TestPutEntryUnknownSession(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	err := store.PutEntry(context.Background(), things.Entry{ID: "e1", SessionID: "NOPE", Author: "Alice", Text: "x"})
	if err == nil {
		t.Fatal("expected error for entry without session")
	}
}

func TestResolveGuessRollsBack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trigger string
	}{
		{"score write fails", `CREATE TRIGGER fail_write BEFORE INSERT ON scores
			BEGIN SELECT RAISE(ABORT, 'score write failed'); END`},
		{"queue write fails", `CREATE TRIGGER fail_write BEFORE UPDATE OF turn_queue ON sessions
			BEGIN SELECT RAISE(ABORT, 'queue write failed'); END`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := openTempStore(t)
			if err := store.CreateSession(ctx, things.Session{ID: "ABCD", Owner: "Alice", Status: things.StatusOpen}); err != nil {
				t.Fatalf("create session: %v", err)
			}
			if err := store.PutEntry(ctx, things.Entry{ID: "e1", SessionID: "ABCD", Author: "Alice", Text: "x", Revealed: true}); err != nil {
				t.Fatalf("put entry: %v", err)
			}
			if _, err := store.StartSession(ctx, "ABCD", things.TurnQueue{"Alice", "Bob"}); err != nil {
				t.Fatalf("start session: %v", err)
			}

			r := things.Resolution{
				EntryID: "e1",
				Guesser: "Bob",
				From:    things.TurnQueue{"Alice", "Bob"},
				To:      things.TurnQueue{"Bob"},
			}

			if _, err := store.db.ExecContext(ctx, tt.trigger); err != nil {
				t.Fatalf("create trigger: %v", err)
			}
			if _, err := store.ResolveGuess(ctx, "ABCD", r); err == nil {
				t.Fatal("expected resolve guess to fail")
			}

			entry, err := store.GetEntry(ctx, "ABCD", "e1")
			if err != nil {
				t.Fatalf("get entry: %v", err)
			}
			if entry.Guessed {
				t.Fatal("failed resolve left the entry guessed")
			}
			session, err := store.GetSession(ctx, "ABCD")
			if err != nil {
				t.Fatalf("get session: %v", err)
			}
			if !session.TurnQueue.Equal(r.From) {
				t.Fatalf("turn queue = %v, want %v", session.TurnQueue, r.From)
			}
			if scores, _ := store.ListScores(ctx, "ABCD"); len(scores) != 0 {
				t.Fatalf("scores = %+v, want none", scores)
			}

			if _, err := store.db.ExecContext(ctx, `DROP TRIGGER fail_write`); err != nil {
				t.Fatalf("drop trigger: %v", err)
			}
			score, err := store.ResolveGuess(ctx, "ABCD", r)
			if err != nil || score != 1 {
				t.Fatalf("retried resolve = %d, %v; want 1, nil", score, err)
			}
			if session, _ := store.GetSession(ctx, "ABCD"); !session.TurnQueue.Equal(r.To) {
				t.Fatalf("turn queue after retry = %v, want %v", session.TurnQueue, r.To)
			}
		})
	}
}

func TestUpSection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, in, want string
	}{
		{"no markers", "CREATE TABLE a (x INT);", "CREATE TABLE a (x INT);"},
		{"up only", "-- +migrate Up\nCREATE TABLE a (x INT);", "\nCREATE TABLE a (x INT);"},
		{"up and down", "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;", "\nCREATE TABLE a (x INT);\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := upSection(tt.in); got != tt.want {
				t.Fatalf("upSection = %q, want %q", got, tt.want)
			}
		})
	}
}
