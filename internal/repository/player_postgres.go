package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crimson-city-bot/internal/model"
)

const playerColumns = `id, language, lifecycle, voice_ref, name, profession, location, inventory,
	charm, intellect, street_smarts, currency, is_vip, version, created_at, updated_at`

// PostgresPlayerStore keeps players in PostgreSQL. Updates take a row lock
// for the duration of the read-modify-write.
type PostgresPlayerStore struct {
	pool          *pgxpool.Pool
	startLocation string
}

// NewPostgresPlayerStore creates a new PostgresPlayerStore instance.
// New players are placed at startLocation.
func NewPostgresPlayerStore(pool *pgxpool.Pool, startLocation string) *PostgresPlayerStore {
	return &PostgresPlayerStore{pool: pool, startLocation: startLocation}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresPlayerStore) scan(row rowScanner) (*model.Player, error) {
	var (
		p                             model.Player
		language, lifecycle, profName string
	)
	err := row.Scan(
		&p.ID,
		&language,
		&lifecycle,
		&p.VoiceRef,
		&p.Name,
		&profName,
		&p.Location,
		&p.Inventory,
		&p.Stats.Charm,
		&p.Stats.Intellect,
		&p.Stats.StreetSmarts,
		&p.Currency,
		&p.IsVIP,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Language = model.Language(language)
	p.Lifecycle = model.Lifecycle(lifecycle)
	p.Profession = model.Profession(profName)
	normalize(&p, r.startLocation)
	return &p, nil
}

// Get retrieves a player by Telegram ID.
// Returns ErrPlayerNotFound if the player does not exist.
func (r *PostgresPlayerStore) Get(ctx context.Context, id int64) (*model.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	p, err := r.scan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

// GetOrCreate retrieves a player, inserting the default record if none exists.
func (r *PostgresPlayerStore) GetOrCreate(ctx context.Context, id int64) (*model.Player, bool, error) {
	p, err := r.Get(ctx, id)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrPlayerNotFound) {
		return nil, false, err
	}

	def := model.NewPlayer(id, r.startLocation)
	query := `
		INSERT INTO players (id, language, lifecycle, voice_ref, name, profession, location, inventory,
			charm, intellect, street_smarts, currency, is_vip, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + playerColumns

	p, err = r.scan(r.pool.QueryRow(ctx, query,
		def.ID,
		string(def.Language),
		string(def.Lifecycle),
		def.VoiceRef,
		def.Name,
		string(def.Profession),
		def.Location,
		def.Inventory,
		def.Stats.Charm,
		def.Stats.Intellect,
		def.Stats.StreetSmarts,
		def.Currency,
		def.IsVIP,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Another request created the player first.
			p, err = r.Get(ctx, id)
			if err != nil {
				return nil, false, err
			}
			return p, false, nil
		}
		return nil, false, fmt.Errorf("failed to create player: %w", err)
	}
	return p, true, nil
}

// Update locks the player's row, applies fn and writes every field back.
func (r *PostgresPlayerStore) Update(ctx context.Context, id int64, fn UpdateFunc) (*model.Player, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1 FOR UPDATE`
	current, err := r.scan(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to lock player: %w", err)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	const update = `
		UPDATE players
		SET language = $2, lifecycle = $3, voice_ref = $4, name = $5, profession = $6,
			location = $7, inventory = $8, charm = $9, intellect = $10, street_smarts = $11,
			currency = $12, is_vip = $13, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + playerColumns

	saved, err := r.scan(tx.QueryRow(ctx, update,
		id,
		string(next.Language),
		string(next.Lifecycle),
		next.VoiceRef,
		next.Name,
		string(next.Profession),
		next.Location,
		next.Inventory,
		next.Stats.Charm,
		next.Stats.Intellect,
		next.Stats.StreetSmarts,
		next.Currency,
		next.IsVIP,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update player: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit player update: %w", err)
	}
	return saved, nil
}

// DeleteIf locks the player's row, runs check and deletes it in the same
// transaction.
func (r *PostgresPlayerStore) DeleteIf(ctx context.Context, id int64, check CheckFunc) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1 FOR UPDATE`
	current, err := r.scan(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPlayerNotFound
		}
		return fmt.Errorf("failed to lock player: %w", err)
	}
	if check != nil {
		if err := check(current.Clone()); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM players WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit player delete: %w", err)
	}
	return nil
}

// List returns all players ordered by id.
func (r *PostgresPlayerStore) List(ctx context.Context) ([]*model.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []*model.Player
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating players: %w", err)
	}

	return players, nil
}
