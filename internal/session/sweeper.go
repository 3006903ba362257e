package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically drops idle sessions.
type Sweeper struct {
	cron  *cron.Cron
	store *Store
	ttl   time.Duration
}

// NewSweeper schedules Store.Sweep on a cron spec such as "@every 10m".
func NewSweeper(store *Store, schedule string, ttl time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		cron:  cron.New(cron.WithLocation(time.UTC)),
		store: store,
		ttl:   ttl,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	if n := s.store.Sweep(s.ttl); n > 0 {
		log.Info().
			Int("dropped", n).
			Int("remaining", s.store.Len()).
			Msg("Idle sessions swept")
	}
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Info().Dur("ttl", s.ttl).Msg("Session sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Session sweeper stopped")
}
