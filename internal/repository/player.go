// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"crimson-city-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrPlayerNotFound = errors.New("player not found")
	// ErrStaleData means the record changed between read and write and the
	// update could not be applied after retrying.
	ErrStaleData = errors.New("player record changed concurrently")
)

// maxUpdateAttempts bounds compare-and-swap retries.
const maxUpdateAttempts = 5

// UpdateFunc mutates a copy of the stored player. Returning an error aborts
// the update without writing. It may run more than once when a store retries
// after a conflict, so it must only touch the player it is given and
// variables it fully reassigns.
type UpdateFunc func(p *model.Player) error

// CheckFunc inspects a copy of the stored player. Returning an error aborts
// the operation it guards.
type CheckFunc func(p *model.Player) error

// PlayerStore persists players keyed by Telegram user id. Updates are atomic
// per id: concurrent updates of different players never interfere and
// concurrent updates of one player are serialized.
type PlayerStore interface {
	// Get returns the player or ErrPlayerNotFound. It never creates records.
	Get(ctx context.Context, id int64) (*model.Player, error)
	// GetOrCreate loads the player, creating the default record on first
	// contact. The bool reports whether a record was created.
	GetOrCreate(ctx context.Context, id int64) (*model.Player, bool, error)
	// Update applies fn to the stored player and writes the result.
	Update(ctx context.Context, id int64, fn UpdateFunc) (*model.Player, error)
	// DeleteIf removes the player if check accepts the record it would
	// delete. The check and the delete are atomic with respect to Update.
	// A missing record yields ErrPlayerNotFound; a nil check always deletes.
	DeleteIf(ctx context.Context, id int64, check CheckFunc) error
	// List returns every player ordered by id.
	List(ctx context.Context) ([]*model.Player, error)
}

// normalize repairs fields a damaged row may carry so that callers always
// see a usable record.
func normalize(p *model.Player, startLocation string) {
	if !p.Language.Valid() {
		log.Warn().Int64("player_id", p.ID).Str("language", string(p.Language)).Msg("Unknown stored language, using default")
		p.Language = model.DefaultLanguage
	}
	if !p.Lifecycle.Valid() {
		log.Warn().Int64("player_id", p.ID).Str("lifecycle", string(p.Lifecycle)).Msg("Unknown stored lifecycle, resetting")
		p.Lifecycle = model.LifecycleUnregistered
	}
	if p.Profession != "" && !p.Profession.Valid() {
		log.Warn().Int64("player_id", p.ID).Str("profession", string(p.Profession)).Msg("Unknown stored profession, clearing")
		p.Profession = ""
	}
	if p.Location == "" {
		p.Location = startLocation
	}
	if p.Inventory == nil {
		p.Inventory = []string{}
	}
}
