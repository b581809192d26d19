package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"github.com/praptisiva25/WorkBud/config"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE,
		display_name TEXT,
		image_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS threads (
		id uuid PRIMARY KEY DEFAULT uuid_generate_v4(),
		type TEXT NOT NULL DEFAULT 'direct' CHECK (type IN ('direct', 'group', 'system_assistant')),
		title TEXT,
		dm_key TEXT,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS threads_dm_key_uidx ON threads (dm_key)`,
	`CREATE INDEX IF NOT EXISTS threads_type_updated_idx ON threads (type, updated_at)`,

	`CREATE TABLE IF NOT EXISTS thread_participants (
		thread_id uuid NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('owner', 'member')),
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (thread_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS thread_participants_user_idx ON thread_participants (user_id)`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
		id uuid PRIMARY KEY DEFAULT uuid_generate_v4(),
		seq BIGSERIAL NOT NULL,
		thread_id uuid NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
		source TEXT NOT NULL DEFAULT 'manual' CHECK (source IN ('manual', 'automated', 'system')),
		kind TEXT NOT NULL DEFAULT 'text' CHECK (kind IN ('text', 'image', 'file')),
		content TEXT,
		file_url TEXT,
		file_name TEXT,
		file_size BIGINT,
		file_meta JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		CHECK ((kind = 'text') = (content IS NOT NULL)),
		CHECK ((kind = 'text') = (file_url IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_thread_created_idx ON chat_messages (thread_id, created_at, seq)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_sender_created_idx ON chat_messages (sender_id, created_at)`,
}

// InitDatabase opens a pgx pool for cfg and creates the chat tables.
func InitDatabase(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pcfg.MaxConnLifetime = time.Hour
	pcfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.ConnectConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, query := range schema {
		if _, err := pool.Exec(ctx, query); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return pool, nil
}

// Open returns the Store selected by driver.
func Open(ctx context.Context, driver string, cfg config.Database, log *zap.Logger) (Store, error) {
	switch driver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return NewMemory(), nil
	case config.StoreDriverPostgres:
		pool, err := InitDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgres(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
