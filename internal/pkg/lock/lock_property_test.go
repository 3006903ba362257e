// Property-based tests for per-player locking.
package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// playerRecord stands in for a stored player during read-modify-write.
type playerRecord struct {
	Currency  int64
	Inventory []string
}

// held reports whether the player's mutex is currently taken.
func held(pl *PlayerLock, playerID int64) bool {
	mu := pl.get(playerID)
	if mu.TryLock() {
		mu.Unlock()
		return false
	}
	return true
}

// TestConcurrentCurrencyGrantsProperty checks that concurrent grants to one
// player serialized by the lock end in the same state as sequential ones.
func TestConcurrentCurrencyGrantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(0, 10000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")

		amounts := make([]int64, numOps)
		expected := initial
		for i := range amounts {
			amounts[i] = rapid.Int64Range(-500, 500).Draw(t, "amount")
			expected += amounts[i]
		}
		playerID := rapid.Int64Range(1, 1000000).Draw(t, "playerID")

		pl := NewPlayerLock()
		rec := &playerRecord{Currency: initial}

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, amount := range amounts {
			go func(amount int64) {
				defer wg.Done()
				_ = pl.WithLockContext(context.Background(), playerID, 5*time.Second, func() error {
					current := rec.Currency
					rec.Currency = current + amount
					return nil
				})
			}(amount)
		}
		wg.Wait()

		if rec.Currency != expected {
			t.Fatalf("currency mismatch: expected %d, got %d", expected, rec.Currency)
		}
	})
}

// TestWithLockContextKeepsEveryItemProperty checks that concurrent item
// grants never drop an item.
func TestWithLockContextKeepsEveryItemProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numOps := rapid.IntRange(5, 30).Draw(t, "numOps")
		playerID := rapid.Int64Range(1, 1000000).Draw(t, "playerID")

		pl := NewPlayerLock()
		rec := &playerRecord{}

		var wg sync.WaitGroup
		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = pl.WithLockContext(context.Background(), playerID, 5*time.Second, func() error {
					inv := append([]string(nil), rec.Inventory...)
					rec.Inventory = append(inv, "lighter")
					return nil
				})
			}()
		}
		wg.Wait()

		if len(rec.Inventory) != numOps {
			t.Fatalf("expected %d items, got %d", numOps, len(rec.Inventory))
		}
		if held(pl, playerID) {
			t.Fatal("lock should be free after all grants finished")
		}
	})
}

// TestIndependentPlayersProperty checks that each player's lock guards only
// that player's record.
func TestIndependentPlayersProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numPlayers := rapid.IntRange(2, 10).Draw(t, "numPlayers")
		opsPerPlayer := rapid.IntRange(5, 20).Draw(t, "opsPerPlayer")

		pl := NewPlayerLock()
		records := make(map[int64]*playerRecord, numPlayers)
		for i := 1; i <= numPlayers; i++ {
			records[int64(i)] = &playerRecord{Currency: 100}
		}

		var wg sync.WaitGroup
		wg.Add(numPlayers * opsPerPlayer)
		for id := int64(1); id <= int64(numPlayers); id++ {
			for j := 0; j < opsPerPlayer; j++ {
				go func(id int64) {
					defer wg.Done()
					_ = pl.WithLockContext(context.Background(), id, 5*time.Second, func() error {
						records[id].Currency += 10
						return nil
					})
				}(id)
			}
		}
		wg.Wait()

		for id, rec := range records {
			want := int64(100 + opsPerPlayer*10)
			if rec.Currency != want {
				t.Fatalf("player %d: expected %d, got %d", id, want, rec.Currency)
			}
		}
	})
}

func TestWithLockContext_Timeout(t *testing.T) {
	pl := NewPlayerLock()
	pl.get(7).Lock()

	err := pl.WithLockContext(context.Background(), 7, 20*time.Millisecond, func() error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	if err != ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	pl.unlock(7)

	// The abandoned waiter releases the lock after acquiring it.
	deadline := time.Now().Add(time.Second)
	for held(pl, 7) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ran := false
	err = pl.WithLockContext(context.Background(), 7, time.Second, func() error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("expected fn to run, err=%v ran=%v", err, ran)
	}
}

func TestWithLockContext_CancelledContext(t *testing.T) {
	pl := NewPlayerLock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pl.WithLockContext(ctx, 3, time.Second, func() error {
		t.Fatal("fn must not run on a cancelled context")
		return nil
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if held(pl, 3) {
		t.Fatal("lock should be released after a cancelled call")
	}
}
