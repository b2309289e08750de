package things

import (
	crand "crypto/rand"
	"math/big"
	"math/rand/v2"
	"slices"
)

// TurnQueue is the ordered list of players who still owe a guess. The head
// holds the current turn. A queue never contains the same name twice.
//
// TurnQueue values are treated as immutable: every mutation returns a new
// queue.
type TurnQueue []string

// Shuffler permutes n elements through swap, with the same contract as
// rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

// CryptoShuffle is a uniform Fisher-Yates shuffle drawing from crypto/rand.
func CryptoShuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j, err := crand.Int(crand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			// fall back to math/rand if crypto fails
			swap(i, rand.IntN(i+1))
			continue
		}
		swap(i, int(j.Int64()))
	}
}

// NewTurnQueue builds a queue from the distinct names in players, in an order
// chosen by shuffle. Submission order deliberately has no influence on the
// result. A nil shuffle uses CryptoShuffle.
func NewTurnQueue(players []string, shuffle Shuffler) TurnQueue {
	if shuffle == nil {
		shuffle = CryptoShuffle
	}

	seen := make(map[string]bool, len(players))
	q := make(TurnQueue, 0, len(players))
	for _, p := range players {
		if seen[p] {
			continue
		}
		seen[p] = true
		q = append(q, p)
	}

	shuffle(len(q), func(i, j int) {
		q[i], q[j] = q[j], q[i]
	})

	return q
}

// Head returns the player whose turn it is. ok is false when the queue is
// empty, meaning every entry has been resolved.
func (q TurnQueue) Head() (name string, ok bool) {
	if len(q) == 0 {
		return "", false
	}
	return q[0], true
}

func (q TurnQueue) Len() int { return len(q) }

func (q TurnQueue) Contains(name string) bool { return slices.Contains(q, name) }

// Remove returns q without name, keeping the relative order of the rest.
func (q TurnQueue) Remove(name string) TurnQueue {
	out := make(TurnQueue, 0, len(q))
	for _, p := range q {
		if p != name {
			out = append(out, p)
		}
	}
	return out
}

// Rotate returns q with its head moved to the tail. Queues of length 0 or 1
// are returned unchanged.
func (q TurnQueue) Rotate() TurnQueue {
	if len(q) <= 1 {
		return slices.Clone(q)
	}
	out := make(TurnQueue, 0, len(q))
	out = append(out, q[1:]...)
	return append(out, q[0])
}

// Equal reports whether q and other hold the same names in the same order.
func (q TurnQueue) Equal(other TurnQueue) bool { return slices.Equal(q, other) }
