package session

import (
	"context"
	"sync"
	"testing"
)

func TestKeyedMutexExcludesSameKey(t *testing.T) {
	locks := NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	var holders, maxHolders int

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(ctx, "user-1")
			if err != nil {
				t.Errorf("lock error: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxHolders {
				maxHolders = holders
			}
			mu.Unlock()

			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxHolders != 1 {
		t.Fatalf("expected at most one holder per key, saw %d", maxHolders)
	}
	if len(locks.entries) != 0 {
		t.Fatalf("expected lock table to drain, %d entries left", len(locks.entries))
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locks := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := locks.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("lock error: %v", err)
	}
	defer unlockA()

	// A held lock on another key must not block this one.
	done := make(chan struct{})
	go func() {
		unlockB, err := locks.Lock(ctx, "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()
	<-done
}
