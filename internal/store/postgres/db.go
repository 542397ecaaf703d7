package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the tables the gateway touches.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id               BIGSERIAL    PRIMARY KEY,
			username         VARCHAR(50)  UNIQUE NOT NULL,
			hashed_password  VARCHAR(255) NOT NULL,
			is_active        BOOLEAN      NOT NULL DEFAULT TRUE,
			created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id         BIGSERIAL    PRIMARY KEY,
			user1_id   BIGINT       NOT NULL REFERENCES users(id),
			user2_id   BIGINT       NOT NULL REFERENCES users(id),
			status     VARCHAR(16)  NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS relationships (
			requester_id BIGINT      NOT NULL REFERENCES users(id),
			addressee_id BIGINT      NOT NULL REFERENCES users(id),
			status       VARCHAR(16) NOT NULL DEFAULT 'pending',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (requester_id, addressee_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id              BIGSERIAL    PRIMARY KEY,
			conversation_id BIGINT       NOT NULL REFERENCES conversations(id),
			sender_id       BIGINT       NOT NULL REFERENCES users(id),
			receiver_id     BIGINT       NOT NULL REFERENCES users(id),
			content         TEXT         NOT NULL,
			type            VARCHAR(16)  NOT NULL DEFAULT 'text',
			created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			read_at         TIMESTAMPTZ,
			is_deleted      BOOLEAN      NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS presence (
			user_id       BIGINT       PRIMARY KEY REFERENCES users(id),
			status        VARCHAR(16)  NOT NULL,
			last_activity TIMESTAMPTZ  NOT NULL,
			device_id     VARCHAR(128) NOT NULL DEFAULT '',
			is_active     BOOLEAN      NOT NULL DEFAULT FALSE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user1 ON conversations(user1_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user2 ON conversations(user2_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_addressee ON relationships(addressee_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_receiver ON messages(conversation_id, receiver_id) WHERE read_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_presence_status_activity ON presence(status, last_activity)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
