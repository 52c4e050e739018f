package database

import (
	"database/sql"
)

type PgKopaRepository struct {
	conn *sql.DB
}

func NewPgKopaRepository(dsn string) (*PgKopaRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgKopaRepository{conn: db}, nil
}

func (db *PgKopaRepository) Ping() error {
	return db.conn.Ping()
}

// EnsureSchema creates the tables the repository depends on if they do not
// exist yet.
func (db *PgKopaRepository) EnsureSchema() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			state_code TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS memberships (
			user_id TEXT NOT NULL,
			room_id TEXT NOT NULL REFERENCES rooms (id),
			joined_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, room_id)
		);
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL REFERENCES rooms (id),
			sender_id TEXT NOT NULL,
			body TEXT NOT NULL,
			seq_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS messages_room_seq ON messages (room_id, seq_id);
	`)

	return err
}

func (db *PgKopaRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
