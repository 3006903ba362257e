package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"crimson-city-bot/internal/model"
	"crimson-city-bot/internal/pkg/lock"
)

// lockTimeout bounds how long an update waits behind another writer of the
// same player.
const lockTimeout = 5 * time.Second

// MemoryPlayerStore keeps players in process memory. It backs tests and the
// "memory" storage driver; nothing survives a restart.
type MemoryPlayerStore struct {
	mu            sync.RWMutex
	players       map[int64]*model.Player
	locks         *lock.PlayerLock
	startLocation string
}

// NewMemoryPlayerStore creates an empty in-memory store.
func NewMemoryPlayerStore(startLocation string) *MemoryPlayerStore {
	return &MemoryPlayerStore{
		players:       make(map[int64]*model.Player),
		locks:         lock.NewPlayerLock(),
		startLocation: startLocation,
	}
}

func (s *MemoryPlayerStore) load(id int64) (*model.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	return p, ok
}

// Get returns a copy of the stored player.
func (s *MemoryPlayerStore) Get(_ context.Context, id int64) (*model.Player, error) {
	p, ok := s.load(id)
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p.Clone(), nil
}

// GetOrCreate returns the player, creating the default record if needed.
func (s *MemoryPlayerStore) GetOrCreate(_ context.Context, id int64) (*model.Player, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.players[id]; ok {
		return p.Clone(), false, nil
	}
	p := model.NewPlayer(id, s.startLocation)
	s.players[id] = p
	return p.Clone(), true, nil
}

// Update serializes writers of one player through the per-player lock.
func (s *MemoryPlayerStore) Update(ctx context.Context, id int64, fn UpdateFunc) (*model.Player, error) {
	var saved *model.Player
	err := s.locks.WithLockContext(ctx, id, lockTimeout, func() error {
		current, ok := s.load(id)
		if !ok {
			return ErrPlayerNotFound
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		normalize(next, s.startLocation)
		next.ID = id
		next.Version = current.Version + 1
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now().UTC()

		s.mu.Lock()
		// The record may have been deleted and recreated while fn ran.
		if s.players[id] != current {
			s.mu.Unlock()
			return ErrStaleData
		}
		s.players[id] = next
		s.mu.Unlock()

		saved = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// DeleteIf removes the player under the same per-player lock Update holds.
func (s *MemoryPlayerStore) DeleteIf(ctx context.Context, id int64, check CheckFunc) error {
	return s.locks.WithLockContext(ctx, id, lockTimeout, func() error {
		current, ok := s.load(id)
		if !ok {
			return ErrPlayerNotFound
		}
		if check != nil {
			if err := check(current.Clone()); err != nil {
				return err
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.players[id] != current {
			return ErrStaleData
		}
		delete(s.players, id)
		return nil
	})
}

// List returns copies of every player ordered by id.
func (s *MemoryPlayerStore) List(_ context.Context) ([]*model.Player, error) {
	s.mu.RLock()
	players := make([]*model.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players, nil
}
