package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"crimson-city-bot/internal/model"
	"crimson-city-bot/internal/repository"
	"crimson-city-bot/internal/world"
)

// MaxNameLength is the longest accepted character name, in runes.
const MaxNameLength = 64

// PlayerService runs the onboarding state machine and the world actions of
// a single player.
type PlayerService struct {
	store   repository.PlayerStore
	graph   *world.Graph
	adminID int64
}

// NewPlayerService creates a new PlayerService instance.
func NewPlayerService(store repository.PlayerStore, graph *world.Graph, adminID int64) *PlayerService {
	return &PlayerService{
		store:   store,
		graph:   graph,
		adminID: adminID,
	}
}

// Enter loads the player, creating the default record on first contact.
func (s *PlayerService) Enter(ctx context.Context, id int64) (*model.Player, error) {
	p, created, err := s.store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	if created {
		log.Info().Int64("player_id", id).Msg("New player record created")
	}
	return p, nil
}

// SetLanguage changes the player's language. Nothing else is touched.
func (s *PlayerService) SetLanguage(ctx context.Context, id int64, lang model.Language) (*model.Player, error) {
	if !lang.Valid() {
		return nil, fmt.Errorf("unsupported language %q", lang)
	}
	if _, err := s.Enter(ctx, id); err != nil {
		return nil, err
	}
	p, err := s.store.Update(ctx, id, func(p *model.Player) error {
		p.Language = lang
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	return p, nil
}

// SubmitVoice records the approval clip and moves the player to
// PendingApproval. Any later submission returns ErrAlreadySubmitted and
// leaves the record as it was.
func (s *PlayerService) SubmitVoice(ctx context.Context, id int64, voiceRef string) (*model.Player, error) {
	if voiceRef == "" {
		return nil, errors.New("empty voice reference")
	}
	if _, err := s.Enter(ctx, id); err != nil {
		return nil, err
	}
	p, err := s.store.Update(ctx, id, func(p *model.Player) error {
		if p.Lifecycle != model.LifecycleUnregistered {
			return ErrAlreadySubmitted
		}
		p.VoiceRef = voiceRef
		p.Lifecycle = model.LifecyclePendingApproval
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to submit voice: %w", err)
	}

	log.Info().Int64("player_id", id).Msg("Voice submitted for approval")
	return p, nil
}

// NormalizeName trims raw and checks its length.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// SetName stores the character name of an approved player who has none yet.
func (s *PlayerService) SetName(ctx context.Context, id int64, raw string) (*model.Player, error) {
	name, err := NormalizeName(raw)
	if err != nil {
		return nil, err
	}
	p, err := s.store.Update(ctx, id, func(p *model.Player) error {
		if p.Lifecycle != model.LifecycleApproved || p.HasName() {
			return ErrWrongStage
		}
		p.Name = name
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrWrongStage) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to set name: %w", err)
	}
	return p, nil
}

// ChooseProfession completes character creation.
func (s *PlayerService) ChooseProfession(ctx context.Context, id int64, prof model.Profession) (*model.Player, error) {
	if !prof.Valid() {
		return nil, fmt.Errorf("unknown profession %q", prof)
	}
	p, err := s.store.Update(ctx, id, func(p *model.Player) error {
		if p.Lifecycle != model.LifecycleApproved || !p.HasName() {
			return ErrWrongStage
		}
		return p.ChooseProfession(prof)
	})
	if err != nil {
		if errors.Is(err, ErrWrongStage) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to choose profession: %w", err)
	}

	log.Info().
		Int64("player_id", id).
		Str("profession", string(prof)).
		Msg("Character created")
	return p, nil
}

// Move walks the player to a location directly connected to the current one.
// Adjacency is checked against the stored location inside the update.
func (s *PlayerService) Move(ctx context.Context, id int64, dest string) (*model.Player, error) {
	if !s.graph.HasLocation(dest) {
		return nil, fmt.Errorf("%w: location %q", world.ErrNotFound, dest)
	}
	p, err := s.store.Update(ctx, id, func(p *model.Player) error {
		if !p.HasCharacter() {
			return ErrWrongStage
		}
		if !s.graph.IsConnected(p.Location, dest) {
			return ErrNotAdjacent
		}
		p.Location = dest
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotAdjacent) || errors.Is(err, ErrWrongStage) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to move: %w", err)
	}
	return p, nil
}

// LookView is what a player sees at their location.
type LookView struct {
	Location *world.Location
	Places   []*world.SubLocation
	NPCs     []*world.NPC
	// AdminPresent is set when the admin stands in the same location as a
	// viewer who is not the admin.
	AdminPresent bool
}

// Look describes the player's current location.
func (s *PlayerService) Look(ctx context.Context, p *model.Player) (*LookView, error) {
	loc, err := s.graph.Location(p.Location)
	if err != nil {
		return nil, err
	}
	places, err := s.graph.VisibleSubLocations(loc.ID, p.IsVIP)
	if err != nil {
		return nil, err
	}
	npcs, err := s.graph.VisibleNPCs(loc.ID, p.IsVIP)
	if err != nil {
		return nil, err
	}

	view := &LookView{Location: loc, Places: places, NPCs: npcs}

	if s.adminID != 0 && p.ID != s.adminID {
		admin, err := s.store.Get(ctx, s.adminID)
		switch {
		case err == nil:
			view.AdminPresent = admin.Location == p.Location
		case errors.Is(err, repository.ErrPlayerNotFound):
		default:
			return nil, fmt.Errorf("failed to check admin presence: %w", err)
		}
	}
	return view, nil
}

// Destinations lists the locations reachable from the player's location.
func (s *PlayerService) Destinations(p *model.Player) ([]*world.Location, error) {
	return s.graph.Connections(p.Location)
}

// Talk returns the NPC the player may talk to. The NPC must stand in a place
// the player can see from the current location.
func (s *PlayerService) Talk(p *model.Player, npcID string) (*world.NPC, error) {
	if !s.graph.NPCVisibleFrom(p.Location, npcID, p.IsVIP) {
		return nil, fmt.Errorf("%w: npc %q", world.ErrNotFound, npcID)
	}
	return s.graph.NPC(npcID)
}

// Location resolves the player's current location.
func (s *PlayerService) Location(p *model.Player) (*world.Location, error) {
	return s.graph.Location(p.Location)
}
