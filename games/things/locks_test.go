package things

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSessionLocksSerializeOneSession(t *testing.T) {
	t.Parallel()

	l := newSessionLocks()

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock := l.lock("ABCD")
			defer unlock()

			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if p := peak.Load(); p != 1 {
		t.Fatalf("peak holders = %d, want 1", p)
	}
	if n := l.active(); n != 0 {
		t.Fatalf("active locks = %d, want 0", n)
	}
}

func TestSessionLocksIndependentSessions(t *testing.T) {
	t.Parallel()

	l := newSessionLocks()

	unlockA := l.lock("AAAA")
	done := make(chan struct{})
	go func() {
		unlock := l.lock("BBBB")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another session blocked")
	}

	if n := l.active(); n != 1 {
		t.Fatalf("active locks = %d, want 1", n)
	}
	unlockA()
	if n := l.active(); n != 0 {
		t.Fatalf("active locks = %d, want 0", n)
	}
}
