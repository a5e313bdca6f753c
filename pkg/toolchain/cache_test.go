package toolchain

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestCacheGuard_SerializesSameKey(t *testing.T) {
	guard := NewCacheGuard()

	var inCritical atomic.Int32
	var maxSeen atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := guard.Lock("esp32,wifi,uart@xtensa-esp32-none-elf")
			defer unlock()

			n := inCritical.Add(1)
			if old := maxSeen.Load(); n > old {
				maxSeen.Store(n)
			}
			inCritical.Add(-1)
		}()
	}
	wg.Wait()

	if maxSeen.Load() > 1 {
		t.Fatalf("saw %d goroutines inside the same-key critical section", maxSeen.Load())
	}
}

func TestCacheGuard_DistinctKeysIndependent(t *testing.T) {
	guard := NewCacheGuard()

	// Holding one key must not block another.
	unlockA := guard.Lock("a@target")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := guard.Lock("b@target")
		unlockB()
		close(done)
	}()

	<-done
}
