package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/lvdund/agent-english-teacher/internal/config"
)

// Connect initializes the database connection and runs migrations.
func Connect(cfg config.PostgresConfig, log zerolog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Info().Msg("database migrations applied")
	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
            id TEXT PRIMARY KEY,
            type TEXT NOT NULL DEFAULT 'group',
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            owner_id TEXT NOT NULL,
            visibility TEXT NOT NULL DEFAULT 'private',
            max_members INT NOT NULL DEFAULT 50,
            allow_messages BOOLEAN NOT NULL DEFAULT TRUE,
            allow_file_sharing BOOLEAN NOT NULL DEFAULT TRUE,
            allow_voice BOOLEAN NOT NULL DEFAULT FALSE,
            allow_video BOOLEAN NOT NULL DEFAULT FALSE,
            moderation_level TEXT NOT NULL DEFAULT 'standard',
            retention_days INT NOT NULL DEFAULT 30,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            last_activity TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS room_members (
            room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            actor_id TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'member',
            joined_at TIMESTAMPTZ DEFAULT NOW(),
            last_activity TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY(room_id, actor_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_room_members_actor ON room_members(actor_id);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
