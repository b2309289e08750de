package things_test

import (
	"slices"
	"testing"

	"github.com/Seednode/whosaidit/games/things"
)

func TestNewTurnQueueDeduplicates(t *testing.T) {
	t.Parallel()

	q := things.NewTurnQueue([]string{"Alice", "Bob", "Alice", "Carol", "Bob"}, keepOrder)

	want := things.TurnQueue{"Alice", "Bob", "Carol"}
	if !q.Equal(want) {
		t.Fatalf("queue = %v, want %v", q, want)
	}
}

func TestNewTurnQueueIsPermutation(t *testing.T) {
	t.Parallel()

	players := []string{"Alice", "Bob", "Carol", "Dave", "Erin"}
	for range 50 {
		q := things.NewTurnQueue(players, nil)
		if q.Len() != len(players) {
			t.Fatalf("len = %d, want %d", q.Len(), len(players))
		}
		got := slices.Clone([]string(q))
		slices.Sort(got)
		if !slices.Equal(got, players) {
			t.Fatalf("queue %v is not a permutation of %v", q, players)
		}
	}
}

func TestNewTurnQueueUsesShuffle(t *testing.T) {
	t.Parallel()

	reverse := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}

	q := things.NewTurnQueue([]string{"Alice", "Bob", "Carol"}, reverse)
	want := things.TurnQueue{"Carol", "Bob", "Alice"}
	if !q.Equal(want) {
		t.Fatalf("queue = %v, want %v", q, want)
	}
}

func TestTurnQueueRemove(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		queue  things.TurnQueue
		remove string
		want   things.TurnQueue
	}{
		{"head", things.TurnQueue{"A", "B", "C"}, "A", things.TurnQueue{"B", "C"}},
		{"middle", things.TurnQueue{"A", "B", "C"}, "B", things.TurnQueue{"A", "C"}},
		{"tail", things.TurnQueue{"A", "B", "C"}, "C", things.TurnQueue{"A", "B"}},
		{"absent", things.TurnQueue{"A", "B"}, "Z", things.TurnQueue{"A", "B"}},
		{"last", things.TurnQueue{"A"}, "A", things.TurnQueue{}},
		{"empty", things.TurnQueue{}, "A", things.TurnQueue{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			before := slices.Clone(tt.queue)
			got := tt.queue.Remove(tt.remove)
			if !got.Equal(tt.want) {
				t.Fatalf("Remove(%q) = %v, want %v", tt.remove, got, tt.want)
			}
			if !tt.queue.Equal(before) {
				t.Fatalf("receiver modified: %v, want %v", tt.queue, before)
			}
		})
	}
}

func TestTurnQueueRotate(t *testing.T) {
	t.Parallel()

	q := things.TurnQueue{"A", "B", "C"}

	once := q.Rotate()
	if want := (things.TurnQueue{"B", "C", "A"}); !once.Equal(want) {
		t.Fatalf("Rotate() = %v, want %v", once, want)
	}
	if want := (things.TurnQueue{"A", "B", "C"}); !q.Equal(want) {
		t.Fatalf("receiver modified: %v", q)
	}

	r := q
	for range q.Len() {
		r = r.Rotate()
	}
	if !r.Equal(q) {
		t.Fatalf("%d rotations = %v, want %v", q.Len(), r, q)
	}
}

func TestTurnQueueRotateShort(t *testing.T) {
	t.Parallel()

	for _, q := range []things.TurnQueue{nil, {}, {"A"}} {
		if got := q.Rotate(); !got.Equal(q) {
			t.Fatalf("Rotate(%v) = %v, want unchanged", q, got)
		}
	}
}

func TestTurnQueueHead(t *testing.T) {
	t.Parallel()

	if _, ok := (things.TurnQueue{}).Head(); ok {
		t.Fatal("Head() on empty queue reported ok")
	}
	head, ok := things.TurnQueue{"A", "B"}.Head()
	if !ok || head != "A" {
		t.Fatalf("Head() = %q, %v, want A, true", head, ok)
	}
}

func TestNextTurnEvent(t *testing.T) {
	t.Parallel()

	ev := things.NextTurn(nil).(things.NextTurnEvent)
	if ev.CurrentPlayer != nil {
		t.Fatalf("current player = %q, want nil", *ev.CurrentPlayer)
	}
	if ev.TurnOrder == nil || len(ev.TurnOrder) != 0 {
		t.Fatalf("turn order = %#v, want empty non-nil", ev.TurnOrder)
	}

	q := things.TurnQueue{"A", "B"}
	ev = things.NextTurn(q).(things.NextTurnEvent)
	if ev.CurrentPlayer == nil || *ev.CurrentPlayer != "A" {
		t.Fatalf("current player = %v, want A", ev.CurrentPlayer)
	}
	ev.TurnOrder[0] = "Z"
	if q[0] != "A" {
		t.Fatal("event turn order aliases the queue")
	}
}
