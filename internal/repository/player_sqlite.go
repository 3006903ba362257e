package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"crimson-city-bot/internal/model"
)

// playerRow is the SQLite shape of a player. Inventory is a JSON array and
// timestamps are unix milliseconds.
type playerRow struct {
	ID           int64  `db:"id"`
	Language     string `db:"language"`
	Lifecycle    string `db:"lifecycle"`
	VoiceRef     string `db:"voice_ref"`
	Name         string `db:"name"`
	Profession   string `db:"profession"`
	Location     string `db:"location"`
	Inventory    string `db:"inventory"`
	Charm        int64  `db:"charm"`
	Intellect    int64  `db:"intellect"`
	StreetSmarts int64  `db:"street_smarts"`
	Currency     int64  `db:"currency"`
	IsVIP        bool   `db:"is_vip"`
	Version      int64  `db:"version"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func toRow(p *model.Player) (playerRow, error) {
	inv := p.Inventory
	if inv == nil {
		inv = []string{}
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return playerRow{}, fmt.Errorf("failed to encode inventory: %w", err)
	}
	return playerRow{
		ID:           p.ID,
		Language:     string(p.Language),
		Lifecycle:    string(p.Lifecycle),
		VoiceRef:     p.VoiceRef,
		Name:         p.Name,
		Profession:   string(p.Profession),
		Location:     p.Location,
		Inventory:    string(data),
		Charm:        p.Stats.Charm,
		Intellect:    p.Stats.Intellect,
		StreetSmarts: p.Stats.StreetSmarts,
		Currency:     p.Currency,
		IsVIP:        p.IsVIP,
		Version:      p.Version,
		CreatedAt:    p.CreatedAt.UnixMilli(),
		UpdatedAt:    p.UpdatedAt.UnixMilli(),
	}, nil
}

func (r playerRow) player(startLocation string) *model.Player {
	p := &model.Player{
		ID:         r.ID,
		Language:   model.Language(r.Language),
		Lifecycle:  model.Lifecycle(r.Lifecycle),
		VoiceRef:   r.VoiceRef,
		Name:       r.Name,
		Profession: model.Profession(r.Profession),
		Location:   r.Location,
		Stats: model.Stats{
			Charm:        r.Charm,
			Intellect:    r.Intellect,
			StreetSmarts: r.StreetSmarts,
		},
		Currency:  r.Currency,
		IsVIP:     r.IsVIP,
		Version:   r.Version,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(r.UpdatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(r.Inventory), &p.Inventory); err != nil {
		log.Warn().Err(err).Int64("player_id", r.ID).Msg("Unreadable stored inventory, treating as empty")
		p.Inventory = nil
	}
	normalize(p, startLocation)
	return p
}

// SQLitePlayerStore keeps players in a SQLite file. Updates are optimistic:
// a write only lands if the row still carries the version that was read.
type SQLitePlayerStore struct {
	db            *sqlx.DB
	startLocation string
}

// NewSQLitePlayerStore creates a store on an open, migrated database.
func NewSQLitePlayerStore(db *sqlx.DB, startLocation string) *SQLitePlayerStore {
	return &SQLitePlayerStore{db: db, startLocation: startLocation}
}

const sqliteSelectPlayer = `
	SELECT id, language, lifecycle, voice_ref, name, profession, location, inventory,
		charm, intellect, street_smarts, currency, is_vip, version, created_at, updated_at
	FROM players`

// Get retrieves a player by Telegram ID.
func (s *SQLitePlayerStore) Get(ctx context.Context, id int64) (*model.Player, error) {
	var row playerRow
	if err := s.db.GetContext(ctx, &row, sqliteSelectPlayer+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return row.player(s.startLocation), nil
}

// GetOrCreate retrieves a player, inserting the default record if none exists.
func (s *SQLitePlayerStore) GetOrCreate(ctx context.Context, id int64) (*model.Player, bool, error) {
	row, err := toRow(model.NewPlayer(id, s.startLocation))
	if err != nil {
		return nil, false, err
	}

	const insert = `
		INSERT INTO players (id, language, lifecycle, voice_ref, name, profession, location, inventory,
			charm, intellect, street_smarts, currency, is_vip, version, created_at, updated_at)
		VALUES (:id, :language, :lifecycle, :voice_ref, :name, :profession, :location, :inventory,
			:charm, :intellect, :street_smarts, :currency, :is_vip, :version, :created_at, :updated_at)
		ON CONFLICT (id) DO NOTHING`

	result, err := s.db.NamedExecContext(ctx, insert, row)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create player: %w", err)
	}
	created := false
	if n, err := result.RowsAffected(); err == nil && n == 1 {
		created = true
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return p, created, nil
}

// Update reads the player, applies fn and writes back only if nobody else
// wrote in between, retrying a bounded number of times.
func (s *SQLitePlayerStore) Update(ctx context.Context, id int64, fn UpdateFunc) (*model.Player, error) {
	const update = `
		UPDATE players
		SET language = :language, lifecycle = :lifecycle, voice_ref = :voice_ref, name = :name,
			profession = :profession, location = :location, inventory = :inventory,
			charm = :charm, intellect = :intellect, street_smarts = :street_smarts,
			currency = :currency, is_vip = :is_vip, version = version + 1, updated_at = :updated_at
		WHERE id = :id AND version = :version`

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.ID = id
		next.Version = current.Version
		next.UpdatedAt = time.Now().UTC()

		row, err := toRow(next)
		if err != nil {
			return nil, err
		}
		result, err := s.db.NamedExecContext(ctx, update, row)
		if err != nil {
			return nil, fmt.Errorf("failed to update player: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to update player: %w", err)
		}
		if n == 1 {
			return s.Get(ctx, id)
		}

		log.Debug().Int64("player_id", id).Int("attempt", attempt).Msg("Player changed during update, retrying")
	}
	return nil, ErrStaleData
}

// DeleteIf runs check against the current row and deletes it only if its
// version is still the one check saw.
func (s *SQLitePlayerStore) DeleteIf(ctx context.Context, id int64, check CheckFunc) error {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(current.Clone()); err != nil {
				return err
			}
		}

		result, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ? AND version = ?`, id, current.Version)
		if err != nil {
			return fmt.Errorf("failed to delete player: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete player: %w", err)
		}
		if n == 1 {
			return nil
		}

		log.Debug().Int64("player_id", id).Int("attempt", attempt).Msg("Player changed during delete, retrying")
	}
	return ErrStaleData
}

// List returns all players ordered by id.
func (s *SQLitePlayerStore) List(ctx context.Context) ([]*model.Player, error) {
	var rows []playerRow
	if err := s.db.SelectContext(ctx, &rows, sqliteSelectPlayer+` ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	players := make([]*model.Player, 0, len(rows))
	for _, row := range rows {
		players = append(players, row.player(s.startLocation))
	}
	return players, nil
}
