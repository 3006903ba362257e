// Tests for the player stores. The same behaviour checks run against every
// backend; PostgreSQL uses testcontainers-go and is skipped without Docker.
package repository

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"crimson-city-bot/internal/model"
	"crimson-city-bot/internal/pkg/db"
)

const testStart = "downtown"

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a migrated pool.
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

func newSQLiteStore(t *testing.T) *SQLitePlayerStore {
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "players.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.CloseSQLite(conn) })
	return NewSQLitePlayerStore(conn, testStart)
}

type storeCase struct {
	name string
	new  func(t *testing.T) PlayerStore
	// serialized stores never give up on contention.
	serialized bool
}

func storeCases() []storeCase {
	return []storeCase{
		{
			name:       "memory",
			new:        func(*testing.T) PlayerStore { return NewMemoryPlayerStore(testStart) },
			serialized: true,
		},
		{
			name: "sqlite",
			new:  func(t *testing.T) PlayerStore { return newSQLiteStore(t) },
		},
		{
			name: "postgres",
			new: func(t *testing.T) PlayerStore {
				pool, cleanup := setupTestDB(t)
				t.Cleanup(cleanup)
				return NewPostgresPlayerStore(pool, testStart)
			},
			serialized: true,
		},
	}
}

func TestPlayerStores(t *testing.T) {
	for _, tc := range storeCases() {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.new(t)
			ctx := context.Background()

			t.Run("GetMissing", func(t *testing.T) {
				_, err := store.Get(ctx, 404)
				assert.ErrorIs(t, err, ErrPlayerNotFound)
			})

			t.Run("GetOrCreateDefaults", func(t *testing.T) {
				p, created, err := store.GetOrCreate(ctx, 1001)
				require.NoError(t, err)
				assert.True(t, created)
				assert.Equal(t, int64(1001), p.ID)
				assert.Equal(t, model.LangEN, p.Language)
				assert.Equal(t, model.LifecycleUnregistered, p.Lifecycle)
				assert.Equal(t, testStart, p.Location)
				assert.Empty(t, p.Inventory)
				assert.NotNil(t, p.Inventory)
				assert.Equal(t, model.Stats{Charm: 1, Intellect: 1, StreetSmarts: 1}, p.Stats)
				assert.Equal(t, int64(100), p.Currency)
				assert.False(t, p.IsVIP)

				again, created, err := store.GetOrCreate(ctx, 1001)
				require.NoError(t, err)
				assert.False(t, created)
				assert.Equal(t, p.Version, again.Version)
			})

			t.Run("UpdatePersistsEveryField", func(t *testing.T) {
				_, _, err := store.GetOrCreate(ctx, 1002)
				require.NoError(t, err)

				saved, err := store.Update(ctx, 1002, func(p *model.Player) error {
					p.Language = model.LangFA
					p.Lifecycle = model.LifecycleApproved
					p.VoiceRef = "voice-file-1"
					p.Name = "Vesper"
					p.Location = "the_plaza"
					p.Inventory = append(p.Inventory, "lighter", "lighter")
					p.Stats.Charm = 7
					p.Currency = -40
					p.IsVIP = true
					return nil
				})
				require.NoError(t, err)
				assert.Equal(t, int64(1), saved.Version)

				got, err := store.Get(ctx, 1002)
				require.NoError(t, err)
				assert.Equal(t, model.LangFA, got.Language)
				assert.Equal(t, model.LifecycleApproved, got.Lifecycle)
				assert.Equal(t, "voice-file-1", got.VoiceRef)
				assert.Equal(t, "Vesper", got.Name)
				assert.Equal(t, "the_plaza", got.Location)
				assert.Equal(t, []string{"lighter", "lighter"}, got.Inventory)
				assert.Equal(t, int64(7), got.Stats.Charm)
				assert.Equal(t, int64(-40), got.Currency)
				assert.True(t, got.IsVIP)
				assert.Equal(t, int64(1), got.Version)
			})

			t.Run("UpdateErrorAborts", func(t *testing.T) {
				_, _, err := store.GetOrCreate(ctx, 1003)
				require.NoError(t, err)

				boom := errors.New("boom")
				_, err = store.Update(ctx, 1003, func(p *model.Player) error {
					p.Currency = 0
					return boom
				})
				assert.ErrorIs(t, err, boom)

				got, err := store.Get(ctx, 1003)
				require.NoError(t, err)
				assert.Equal(t, int64(100), got.Currency)
				assert.Equal(t, int64(0), got.Version)
			})

			t.Run("UpdateMissing", func(t *testing.T) {
				_, err := store.Update(ctx, 1404, func(p *model.Player) error { return nil })
				assert.ErrorIs(t, err, ErrPlayerNotFound)
			})

			t.Run("ReturnedPlayersAreCopies", func(t *testing.T) {
				p, _, err := store.GetOrCreate(ctx, 1004)
				require.NoError(t, err)
				p.Inventory = append(p.Inventory, "ghost")
				p.Currency = 1

				got, err := store.Get(ctx, 1004)
				require.NoError(t, err)
				assert.Empty(t, got.Inventory)
				assert.Equal(t, int64(100), got.Currency)
			})

			t.Run("DeleteIf", func(t *testing.T) {
				_, _, err := store.GetOrCreate(ctx, 1005)
				require.NoError(t, err)

				require.NoError(t, store.DeleteIf(ctx, 1005, nil))
				assert.ErrorIs(t, store.DeleteIf(ctx, 1005, nil), ErrPlayerNotFound)

				_, err = store.Get(ctx, 1005)
				assert.ErrorIs(t, err, ErrPlayerNotFound)
			})

			t.Run("DeleteIfCheckRejects", func(t *testing.T) {
				_, _, err := store.GetOrCreate(ctx, 1007)
				require.NoError(t, err)
				_, err = store.Update(ctx, 1007, func(p *model.Player) error {
					p.Lifecycle = model.LifecycleApproved
					return nil
				})
				require.NoError(t, err)

				denied := errors.New("not pending")
				var seen model.Lifecycle
				err = store.DeleteIf(ctx, 1007, func(p *model.Player) error {
					seen = p.Lifecycle
					if p.Lifecycle != model.LifecyclePendingApproval {
						return denied
					}
					return nil
				})
				assert.ErrorIs(t, err, denied)
				assert.Equal(t, model.LifecycleApproved, seen)

				got, err := store.Get(ctx, 1007)
				require.NoError(t, err)
				assert.Equal(t, model.LifecycleApproved, got.Lifecycle)
			})

			t.Run("ListOrderedByID", func(t *testing.T) {
				players, err := store.List(ctx)
				require.NoError(t, err)
				for i := 1; i < len(players); i++ {
					assert.Less(t, players[i-1].ID, players[i].ID)
				}
				assert.NotEmpty(t, players)
			})

			t.Run("ConcurrentUpdatesNeverLoseWrites", func(t *testing.T) {
				const id, workers = 1006, 16
				_, _, err := store.GetOrCreate(ctx, id)
				require.NoError(t, err)

				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					successes int64
				)
				wg.Add(workers)
				for i := 0; i < workers; i++ {
					go func() {
						defer wg.Done()
						_, err := store.Update(ctx, id, func(p *model.Player) error {
							p.Currency += 10
							p.Inventory = append(p.Inventory, "chip")
							return nil
						})
						mu.Lock()
						defer mu.Unlock()
						if err == nil {
							successes++
							return
						}
						assert.ErrorIs(t, err, ErrStaleData)
					}()
				}
				wg.Wait()

				if tc.serialized {
					assert.Equal(t, int64(workers), successes)
				}
				got, err := store.Get(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, 100+10*successes, got.Currency)
				assert.Len(t, got.Inventory, int(successes))
				assert.Equal(t, successes, got.Version)
			})
		})
	}
}

func TestNormalize_RepairsDamagedRecord(t *testing.T) {
	p := &model.Player{
		ID:         9,
		Language:   "de",
		Lifecycle:  "banned",
		Profession: "wizard",
	}
	normalize(p, testStart)

	assert.Equal(t, model.LangEN, p.Language)
	assert.Equal(t, model.LifecycleUnregistered, p.Lifecycle)
	assert.Equal(t, model.Profession(""), p.Profession)
	assert.Equal(t, testStart, p.Location)
	assert.NotNil(t, p.Inventory)
}

func TestSQLiteStore_BadInventoryReadsEmpty(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_, _, err := store.GetOrCreate(ctx, 77)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `UPDATE players SET inventory = 'not json' WHERE id = ?`, 77)
	require.NoError(t, err)

	got, err := store.Get(ctx, 77)
	require.NoError(t, err)
	assert.Empty(t, got.Inventory)
}

func TestMemoryStore_UpdateHonorsContext(t *testing.T) {
	store := NewMemoryPlayerStore("downtown")
	_, _, err := store.GetOrCreate(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err = store.Update(ctx, 1, func(p *model.Player) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStore_UpdateDoesNotOverwriteRecreatedRecord(t *testing.T) {
	store := NewMemoryPlayerStore(testStart)
	ctx := context.Background()
	_, _, err := store.GetOrCreate(ctx, 5)
	require.NoError(t, err)

	_, err = store.Update(ctx, 5, func(p *model.Player) error {
		// Drop the record behind the lock and let first contact recreate it.
		store.mu.Lock()
		delete(store.players, 5)
		store.mu.Unlock()
		_, created, err := store.GetOrCreate(ctx, 5)
		require.NoError(t, err)
		require.True(t, created)

		p.Name = "Stale"
		p.Currency = 9000
		return nil
	})
	assert.ErrorIs(t, err, ErrStaleData)

	got, err := store.Get(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, got.Name)
	assert.Equal(t, int64(100), got.Currency)
	assert.Equal(t, int64(0), got.Version)
}

func TestMemoryStore_DeleteIfWaitsForUpdate(t *testing.T) {
	store := NewMemoryPlayerStore(testStart)
	ctx := context.Background()
	_, _, err := store.GetOrCreate(ctx, 6)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := store.Update(ctx, 6, func(p *model.Player) error {
			close(entered)
			<-release
			p.Lifecycle = model.LifecycleApproved
			return nil
		})
		done <- err
	}()
	<-entered

	deleted := make(chan error, 1)
	go func() {
		deleted <- store.DeleteIf(ctx, 6, func(p *model.Player) error {
			if p.Lifecycle == model.LifecycleApproved {
				return errors.New("already approved")
			}
			return nil
		})
	}()

	select {
	case err := <-deleted:
		t.Fatalf("delete finished while update held the player: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)
	assert.EqualError(t, <-deleted, "already approved")

	got, err := store.Get(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, model.LifecycleApproved, got.Lifecycle)
}
