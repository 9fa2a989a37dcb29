package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/roomcast/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	settings   TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS bots (
	id            TEXT NOT NULL,
	room_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'default',
	capabilities  TEXT NOT NULL DEFAULT '[]',
	registered_at TIMESTAMP NOT NULL,
	PRIMARY KEY (room_id, id)
);
CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	room_id     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	sender_name TEXT NOT NULL DEFAULT '',
	sender_type TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at);
`

// Store implements store.RoomStore and store.MessageStore on a local SQLite
// file. Used when no Postgres DSN is configured (single-node dev mode).
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is single-writer; serialize access through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewSQLiteStores opens a SQLite-backed store bundle.
func NewSQLiteStores(path string) (*store.Stores, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &store.Stores{Rooms: s, Messages: s, Close: s.db.Close}, nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	var room store.Room
	var settingsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, settings, created_at, updated_at FROM rooms WHERE id = ?`, id,
	).Scan(&room.ID, &room.Name, &settingsJSON, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if settingsJSON != "" {
		if err := json.Unmarshal([]byte(settingsJSON), &room.Settings); err != nil {
			return nil, fmt.Errorf("parse room settings: %w", err)
		}
	}
	return &room, nil
}

func (s *Store) UpsertRoom(ctx context.Context, room *store.Room) error {
	settingsJSON, err := json.Marshal(room.Settings)
	if err != nil {
		return fmt.Errorf("marshal room settings: %w", err)
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, settings, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, settings = excluded.settings, updated_at = excluded.updated_at`,
		room.ID, room.Name, string(settingsJSON), room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}
	return nil
}

func (s *Store) UpdateSettings(ctx context.Context, roomID string, settings store.RoomSettings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal room settings: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET settings = ?, updated_at = ? WHERE id = ?`,
		string(settingsJSON), time.Now().UTC(), roomID,
	)
	if err != nil {
		return fmt.Errorf("update room settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListBots(ctx context.Context, roomID string) ([]store.Bot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, name, provider, model, system_prompt, role, capabilities
		 FROM bots WHERE room_id = ? ORDER BY registered_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var bots []store.Bot
	for rows.Next() {
		var b store.Bot
		var capsJSON string
		if err := rows.Scan(&b.ID, &b.RoomID, &b.Name, &b.Provider, &b.Model, &b.SystemPrompt, &b.Role, &capsJSON); err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		if capsJSON != "" {
			json.Unmarshal([]byte(capsJSON), &b.Capabilities)
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

func (s *Store) UpsertBot(ctx context.Context, bot *store.Bot) error {
	capsJSON, _ := json.Marshal(bot.Capabilities)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bots (id, room_id, name, provider, model, system_prompt, role, capabilities, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (room_id, id) DO UPDATE
		 SET name = excluded.name, provider = excluded.provider, model = excluded.model,
		     system_prompt = excluded.system_prompt, role = excluded.role, capabilities = excluded.capabilities`,
		bot.ID, bot.RoomID, bot.Name, bot.Provider, bot.Model, bot.SystemPrompt, bot.Role, string(capsJSON), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert bot: %w", err)
	}
	return nil
}

func (s *Store) DeleteBot(ctx context.Context, roomID, botID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE room_id = ? AND id = ?`, roomID, botID)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.Must(uuid.NewV7())
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, sender_name, sender_type, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.RoomID, msg.SenderID, msg.SenderName, msg.SenderType, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, sender_name, sender_type, content, created_at
		 FROM (
		   SELECT * FROM messages WHERE room_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at ASC, id ASC`,
		roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		var id string
		if err := rows.Scan(&id, &m.RoomID, &m.SenderID, &m.SenderName, &m.SenderType, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID, _ = uuid.Parse(id)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
