package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            name VARCHAR(100) NOT NULL DEFAULT '',
            profile_picture TEXT NOT NULL DEFAULT '',
            wallet_address VARCHAR(64) UNIQUE,
            phone VARCHAR(20) UNIQUE NOT NULL,
            email VARCHAR(255) UNIQUE,
            confirmed BOOLEAN NOT NULL DEFAULT FALSE,
            admin BOOLEAN NOT NULL DEFAULT FALSE,
            amount_won DOUBLE PRECISION NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		// No foreign key on user_id: senders may be deleted and room
		// queries attach the sender snapshot with a left join.
		`CREATE TABLE IF NOT EXISTS chat_messages (
            id BIGSERIAL PRIMARY KEY,
            room_id BIGINT NOT NULL,
            user_id BIGINT NOT NULL,
            type VARCHAR(32) NOT NULL,
            message TEXT NOT NULL DEFAULT '',
            payload JSONB,
            date TIMESTAMPTZ NOT NULL DEFAULT now(),
            read TIMESTAMPTZ
        )`,

		`CREATE INDEX IF NOT EXISTS idx_chat_messages_room_date
            ON chat_messages (room_id, date DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_chat_messages_unread
            ON chat_messages (user_id) WHERE read IS NULL`,

		`CREATE INDEX IF NOT EXISTS idx_users_amount_won
            ON users (amount_won DESC)`,
	}

	for _, query := range queries {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
