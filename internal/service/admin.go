package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"crimson-city-bot/internal/model"
	"crimson-city-bot/internal/repository"
	"crimson-city-bot/internal/world"
)

// AdminService implements the god-mode operations. Every method checks the
// caller first and returns ErrUnauthorized for anyone but the admin.
type AdminService struct {
	store       repository.PlayerStore
	graph       *world.Graph
	adminID     int64
	concurrency int
}

// NewAdminService creates a new AdminService instance. concurrency bounds
// parallel deliveries during a broadcast.
func NewAdminService(store repository.PlayerStore, graph *world.Graph, adminID int64, concurrency int) *AdminService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &AdminService{
		store:       store,
		graph:       graph,
		adminID:     adminID,
		concurrency: concurrency,
	}
}

// IsAdmin reports whether id is the configured admin.
func (s *AdminService) IsAdmin(id int64) bool {
	return s.adminID != 0 && id == s.adminID
}

// AdminID returns the configured admin id.
func (s *AdminService) AdminID() int64 {
	return s.adminID
}

func (s *AdminService) authorize(callerID int64, op string) error {
	if s.IsAdmin(callerID) {
		return nil
	}
	log.Warn().
		Int64("user_id", callerID).
		Str("operation", op).
		Msg("Unauthorized admin operation refused")
	return ErrUnauthorized
}

func audit(callerID, targetID int64, op string) {
	log.Info().
		Int64("admin_id", callerID).
		Int64("target_id", targetID).
		Str("operation", op).
		Msg("Admin operation executed")
}

// Approve moves a pending player to Approved.
func (s *AdminService) Approve(ctx context.Context, callerID, targetID int64) (*model.Player, error) {
	if err := s.authorize(callerID, "approve"); err != nil {
		return nil, err
	}
	p, err := s.store.Update(ctx, targetID, func(p *model.Player) error {
		if p.Lifecycle != model.LifecyclePendingApproval {
			return usagef("player %d is not pending approval (%s)", targetID, p.Lifecycle)
		}
		p.Lifecycle = model.LifecycleApproved
		return nil
	})
	if err != nil {
		return nil, targetErr(targetID, "approve player", err)
	}
	audit(callerID, targetID, "approve")
	return p, nil
}

// Reject deletes a pending player's record.
func (s *AdminService) Reject(ctx context.Context, callerID, targetID int64) error {
	if err := s.authorize(callerID, "reject"); err != nil {
		return err
	}
	err := s.store.DeleteIf(ctx, targetID, func(p *model.Player) error {
		if p.Lifecycle != model.LifecyclePendingApproval {
			return usagef("player %d is not pending approval (%s)", targetID, p.Lifecycle)
		}
		return nil
	})
	if err != nil {
		return targetErr(targetID, "reject player", err)
	}
	audit(callerID, targetID, "reject")
	return nil
}

// SetStat assigns one stat of a player.
func (s *AdminService) SetStat(ctx context.Context, callerID, targetID int64, stat model.Stat, value int64) (*model.Player, error) {
	if err := s.authorize(callerID, "setstat"); err != nil {
		return nil, err
	}
	p, err := s.store.Update(ctx, targetID, func(p *model.Player) error {
		if err := p.Stats.Set(stat, value); err != nil {
			return usagef("unknown stat %q", stat)
		}
		return nil
	})
	if err != nil {
		return nil, targetErr(targetID, "set stat", err)
	}
	audit(callerID, targetID, "setstat")
	return p, nil
}

// GiveItem appends an item to a player's inventory.
func (s *AdminService) GiveItem(ctx context.Context, callerID, targetID int64, item string) (*model.Player, error) {
	if err := s.authorize(callerID, "giveitem"); err != nil {
		return nil, err
	}
	item = strings.TrimSpace(item)
	if item == "" {
		return nil, usagef("item name is empty")
	}
	p, err := s.store.Update(ctx, targetID, func(p *model.Player) error {
		p.Inventory = append(p.Inventory, item)
		return nil
	})
	if err != nil {
		return nil, targetErr(targetID, "give item", err)
	}
	audit(callerID, targetID, "giveitem")
	return p, nil
}

// GiveMoney adds amount to a player's currency. Negative amounts subtract
// and the balance may go below zero.
func (s *AdminService) GiveMoney(ctx context.Context, callerID, targetID, amount int64) (*model.Player, error) {
	if err := s.authorize(callerID, "givemoney"); err != nil {
		return nil, err
	}
	p, err := s.store.Update(ctx, targetID, func(p *model.Player) error {
		p.Currency += amount
		return nil
	})
	if err != nil {
		return nil, targetErr(targetID, "give money", err)
	}
	log.Info().
		Int64("admin_id", callerID).
		Int64("target_id", targetID).
		Int64("amount", amount).
		Str("operation", "givemoney").
		Msg("Admin operation executed")
	return p, nil
}

// SetVIP grants or revokes VIP status.
func (s *AdminService) SetVIP(ctx context.Context, callerID, targetID int64, vip bool) (*model.Player, error) {
	if err := s.authorize(callerID, "setvip"); err != nil {
		return nil, err
	}
	p, err := s.store.Update(ctx, targetID, func(p *model.Player) error {
		p.IsVIP = vip
		return nil
	})
	if err != nil {
		return nil, targetErr(targetID, "set vip", err)
	}
	audit(callerID, targetID, "setvip")
	return p, nil
}

// Teleport moves a player to any location of the graph.
func (s *AdminService) Teleport(ctx context.Context, callerID, targetID int64, locationID string) (*model.Player, error) {
	if err := s.authorize(callerID, "teleport"); err != nil {
		return nil, err
	}
	if !s.graph.HasLocation(locationID) {
		return nil, usagef("unknown location %q, valid locations: %s",
			locationID, strings.Join(s.graph.LocationIDs(), ", "))
	}
	p, err := s.store.Update(ctx, targetID, func(p *model.Player) error {
		p.Location = locationID
		return nil
	})
	if err != nil {
		return nil, targetErr(targetID, "teleport player", err)
	}
	audit(callerID, targetID, "teleport")
	return p, nil
}

// PlayerInfo returns the stored record as indented JSON. It never creates a
// record.
func (s *AdminService) PlayerInfo(ctx context.Context, callerID, targetID int64) (string, error) {
	if err := s.authorize(callerID, "playerinfo"); err != nil {
		return "", err
	}
	p, err := s.store.Get(ctx, targetID)
	if err != nil {
		return "", targetErr(targetID, "load player", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode player: %w", err)
	}
	return string(data), nil
}

// WhisperTarget resolves the language to whisper to a player in. Unknown
// players get the default language.
func (s *AdminService) WhisperTarget(ctx context.Context, callerID, targetID int64) (model.Language, error) {
	if err := s.authorize(callerID, "whisper"); err != nil {
		return "", err
	}
	p, err := s.store.Get(ctx, targetID)
	switch {
	case err == nil:
		audit(callerID, targetID, "whisper")
		return p.Language, nil
	case errors.Is(err, repository.ErrPlayerNotFound):
		audit(callerID, targetID, "whisper")
		return model.DefaultLanguage, nil
	default:
		return "", fmt.Errorf("failed to load player: %w", err)
	}
}

// BroadcastSendTimeout bounds a single broadcast delivery.
const BroadcastSendTimeout = 10 * time.Second

// DeliverFunc sends a message to one player.
type DeliverFunc func(ctx context.Context, p *model.Player) error

// Broadcast calls deliver for every approved player, at most concurrency at
// a time. Cancelling ctx does not cut the batch short. Failed deliveries are
// logged and skipped. It returns how many deliveries succeeded.
func (s *AdminService) Broadcast(ctx context.Context, callerID int64, deliver DeliverFunc) (int, error) {
	if err := s.authorize(callerID, "broadcast"); err != nil {
		return 0, err
	}
	players, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list players: %w", err)
	}

	// The fan-out outlives the admin's event deadline; each recipient gets
	// its own.
	base := context.WithoutCancel(ctx)

	var sent atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, p := range players {
		if !p.IsApproved() {
			continue
		}
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(base, BroadcastSendTimeout)
			defer cancel()
			if err := deliver(rctx, p); err != nil {
				log.Warn().Err(err).Int64("player_id", p.ID).Msg("Broadcast delivery failed")
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int64("admin_id", callerID).
		Int64("delivered", sent.Load()).
		Str("operation", "broadcast").
		Msg("Admin operation executed")
	return int(sent.Load()), nil
}
