package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"crimson-city-bot/internal/pkg/db/migrations"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// OpenSQLite connects to the SQLite file at path and applies the embedded
// migrations.
func OpenSQLite(path string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := MigrateSQLite(conn.DB); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close sqlite after migration failure")
		}
		return nil, err
	}

	log.Info().Str("path", path).Msg("SQLite connected and migrations applied")
	return conn, nil
}

// MigrateSQLite applies every pending embedded migration.
func MigrateSQLite(conn *sql.DB) error {
	if conn == nil {
		return errors.New("sqlite connection is nil")
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug().Msg("No sqlite migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply sqlite migrations: %w", err)
	}

	log.Info().Msg("SQLite migrations applied")
	return nil
}

// CloseSQLite closes the database, logging any error.
func CloseSQLite(conn *sqlx.DB) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close sqlite")
		return
	}
	log.Info().Msg("SQLite connection closed")
}
