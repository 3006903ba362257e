package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"crimson-city-bot/internal/model"
	"crimson-city-bot/internal/repository"
)

func TestAdmin_RefusesEveryoneElse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.players.SubmitVoice(ctx, 1, "v")
	require.NoError(t, err)

	_, err = f.admin.Approve(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, f.admin.Reject(ctx, 2, 1), ErrUnauthorized)
	_, err = f.admin.GiveMoney(ctx, 1, 1, 1000)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.admin.PlayerInfo(ctx, 0, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.admin.Broadcast(ctx, 1, func(context.Context, *model.Player) error { return nil })
	assert.ErrorIs(t, err, ErrUnauthorized)

	p, err := f.store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.LifecyclePendingApproval, p.Lifecycle)
	assert.Equal(t, int64(100), p.Currency)
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.admin.Approve(ctx, testAdminID, 50)
	var ue *UsageError
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, repository.ErrPlayerNotFound)
	_, err = f.store.Get(ctx, 50)
	assert.ErrorIs(t, err, repository.ErrPlayerNotFound, "approve must not create records")

	_, err = f.players.Enter(ctx, 50)
	require.NoError(t, err)
	_, err = f.admin.Approve(ctx, testAdminID, 50)
	require.ErrorAs(t, err, &ue, "unregistered players cannot be approved")

	_, err = f.players.SubmitVoice(ctx, 50, "v")
	require.NoError(t, err)
	p, err := f.admin.Approve(ctx, testAdminID, 50)
	require.NoError(t, err)
	assert.Equal(t, model.LifecycleApproved, p.Lifecycle)

	_, err = f.admin.Approve(ctx, testAdminID, 50)
	require.ErrorAs(t, err, &ue, "approving twice is a usage error")
}

func TestReject_PurgesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.players.SubmitVoice(ctx, 60, "v")
	require.NoError(t, err)
	_, err = f.admin.GiveMoney(ctx, testAdminID, 60, 500)
	require.NoError(t, err)

	require.NoError(t, f.admin.Reject(ctx, testAdminID, 60))

	_, err = f.store.Get(ctx, 60)
	assert.ErrorIs(t, err, repository.ErrPlayerNotFound)

	p, err := f.players.Enter(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, model.LifecycleUnregistered, p.Lifecycle)
	assert.Equal(t, int64(model.InitialCurrency), p.Currency)
	assert.Empty(t, p.VoiceRef)

	var ue *UsageError
	assert.ErrorAs(t, f.admin.Reject(ctx, testAdminID, 60), &ue, "only pending players can be rejected")
	assert.ErrorAs(t, f.admin.Reject(ctx, testAdminID, 61), &ue)
}

func TestApproveAndRejectRace_ExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const players = 50
	for id := int64(300); id < 300+players; id++ {
		_, err := f.players.SubmitVoice(ctx, id, "v")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	approved := make([]bool, players)
	rejected := make([]bool, players)
	for i := 0; i < players; i++ {
		id := int64(300 + i)
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := f.admin.Approve(ctx, testAdminID, id)
			approved[i] = err == nil
		}(i)
		go func(i int) {
			defer wg.Done()
			rejected[i] = f.admin.Reject(ctx, testAdminID, id) == nil
		}(i)
	}
	wg.Wait()

	for i := 0; i < players; i++ {
		id := int64(300 + i)
		require.NotEqual(t, approved[i], rejected[i], "player %d", id)

		p, err := f.store.Get(ctx, id)
		if rejected[i] {
			assert.ErrorIs(t, err, repository.ErrPlayerNotFound)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, model.LifecycleApproved, p.Lifecycle)
	}
}

func TestSetStat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, 70, "Stat", model.ProfessionCharmer)

	p, err := f.admin.SetStat(ctx, testAdminID, 70, model.StatCharm, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Stats.Charm)

	var ue *UsageError
	_, err = f.admin.SetStat(ctx, testAdminID, 70, "luck", 5)
	assert.ErrorAs(t, err, &ue)
	_, err = f.admin.SetStat(ctx, testAdminID, 71, model.StatCharm, 5)
	assert.ErrorAs(t, err, &ue)
}

func TestGiveMoney_NoFloor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.players.Enter(ctx, 80)
	require.NoError(t, err)

	p, err := f.admin.GiveMoney(ctx, testAdminID, 80, -50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.Currency)

	p, err = f.admin.GiveMoney(ctx, testAdminID, 80, -75)
	require.NoError(t, err)
	assert.Equal(t, int64(-25), p.Currency)
}

func TestGiveItemAndVIP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.players.Enter(ctx, 81)
	require.NoError(t, err)

	_, err = f.admin.GiveItem(ctx, testAdminID, 81, "brass knuckles")
	require.NoError(t, err)
	p, err := f.admin.GiveItem(ctx, testAdminID, 81, " lighter ")
	require.NoError(t, err)
	assert.Equal(t, []string{"brass knuckles", "lighter"}, p.Inventory)

	var ue *UsageError
	_, err = f.admin.GiveItem(ctx, testAdminID, 81, "  ")
	assert.ErrorAs(t, err, &ue)

	p, err = f.admin.SetVIP(ctx, testAdminID, 81, true)
	require.NoError(t, err)
	assert.True(t, p.IsVIP)
}

func TestTeleport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.players.Enter(ctx, 82)
	require.NoError(t, err)

	p, err := f.admin.Teleport(ctx, testAdminID, 82, "industrial_zone")
	require.NoError(t, err)
	assert.Equal(t, "industrial_zone", p.Location)

	_, err = f.admin.Teleport(ctx, testAdminID, 82, "moon")
	var ue *UsageError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Msg, "downtown")
	assert.Contains(t, ue.Msg, "the_plaza")
}

func TestPlayerInfo_NonCreating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.admin.PlayerInfo(ctx, testAdminID, 90)
	var ue *UsageError
	require.ErrorAs(t, err, &ue)
	_, err = f.store.Get(ctx, 90)
	assert.ErrorIs(t, err, repository.ErrPlayerNotFound)

	_, err = f.players.Enter(ctx, 90)
	require.NoError(t, err)
	dump, err := f.admin.PlayerInfo(ctx, testAdminID, 90)
	require.NoError(t, err)

	var decoded model.Player
	require.NoError(t, json.Unmarshal([]byte(dump), &decoded))
	assert.Equal(t, int64(90), decoded.ID)
	assert.Equal(t, "downtown", decoded.Location)
}

func TestWhisperTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lang, err := f.admin.WhisperTarget(ctx, testAdminID, 91)
	require.NoError(t, err)
	assert.Equal(t, model.LangEN, lang)

	_, err = f.players.SetLanguage(ctx, 91, model.LangFA)
	require.NoError(t, err)
	lang, err = f.admin.WhisperTarget(ctx, testAdminID, 91)
	require.NoError(t, err)
	assert.Equal(t, model.LangFA, lang)
}

func TestBroadcast_ApprovedOnlyAndFailuresSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.players.Enter(ctx, 100)
	require.NoError(t, err)
	_, err = f.players.SubmitVoice(ctx, 101, "v")
	require.NoError(t, err)
	f.onboard(t, 102, "A", model.ProfessionCharmer)
	f.onboard(t, 103, "B", model.ProfessionHustler)
	_, err = f.players.SubmitVoice(ctx, 104, "v")
	require.NoError(t, err)
	_, err = f.admin.Approve(ctx, testAdminID, 104)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen []int64
	)
	sent, err := f.admin.Broadcast(ctx, testAdminID, func(_ context.Context, p *model.Player) error {
		mu.Lock()
		seen = append(seen, p.ID)
		mu.Unlock()
		if p.ID == 103 {
			return errors.New("blocked by user")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []int64{102, 103, 104}, seen)
}

func TestBroadcast_OutlivesEventDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const players = 200
	for id := int64(1000); id < 1000+players; id++ {
		_, err := f.players.SubmitVoice(ctx, id, "v")
		require.NoError(t, err)
		_, err = f.admin.Approve(ctx, testAdminID, id)
		require.NoError(t, err)
	}

	eventCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	var expired atomic.Int64
	sent, err := f.admin.Broadcast(eventCtx, testAdminID, func(ctx context.Context, _ *model.Player) error {
		time.Sleep(2 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			expired.Add(1)
			return err
		}
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("delivery without deadline")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Error(t, eventCtx.Err(), "event deadline should have passed during the batch")
	assert.Equal(t, players, sent)
	assert.Zero(t, expired.Load())
}

// TestBroadcastConcurrencyBoundProperty checks that deliveries never exceed
// the configured parallelism.
func TestBroadcastConcurrencyBoundProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		limit := rapid.IntRange(1, 4).Draw(t, "limit")
		n := rapid.IntRange(1, 12).Draw(t, "players")
		f.admin = NewAdminService(f.store, f.graph, testAdminID, limit)

		for i := 0; i < n; i++ {
			f.onboard(t, int64(200+i), "P", model.ProfessionCharmer)
		}

		var inFlight, peak atomic.Int64
		sent, err := f.admin.Broadcast(ctx, testAdminID, func(context.Context, *model.Player) error {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			return nil
		})
		if err != nil {
			t.Fatalf("broadcast: %v", err)
		}
		if sent != n {
			t.Fatalf("expected %d deliveries, got %d", n, sent)
		}
		if peak.Load() > int64(limit) {
			t.Fatalf("peak concurrency %d exceeds limit %d", peak.Load(), limit)
		}
	})
}

// TestConcurrentGrantsToDistinctPlayersProperty checks that interleaved
// admin grants to different players never lose a write.
func TestConcurrentGrantsToDistinctPlayersProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		players := rapid.IntRange(2, 6).Draw(t, "players")
		grants := rapid.IntRange(1, 15).Draw(t, "grants")

		for i := 1; i <= players; i++ {
			if _, err := f.players.Enter(ctx, int64(i)); err != nil {
				t.Fatalf("enter: %v", err)
			}
		}

		var wg sync.WaitGroup
		for i := 1; i <= players; i++ {
			for j := 0; j < grants; j++ {
				wg.Add(2)
				go func(id int64) {
					defer wg.Done()
					_, _ = f.admin.GiveMoney(ctx, testAdminID, id, 5)
				}(int64(i))
				go func(id int64) {
					defer wg.Done()
					_, _ = f.admin.GiveItem(ctx, testAdminID, id, "token")
				}(int64(i))
			}
		}
		wg.Wait()

		for i := 1; i <= players; i++ {
			p, err := f.store.Get(ctx, int64(i))
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if p.Currency != int64(model.InitialCurrency+5*grants) {
				t.Fatalf("player %d currency %d, want %d", i, p.Currency, model.InitialCurrency+5*grants)
			}
			if len(p.Inventory) != grants {
				t.Fatalf("player %d has %d items, want %d", i, len(p.Inventory), grants)
			}
		}
	})
}
