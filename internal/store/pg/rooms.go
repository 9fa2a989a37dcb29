package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/roomcast/internal/store"
)

// PGRoomStore implements store.RoomStore backed by Postgres.
type PGRoomStore struct {
	db *sql.DB
}

func NewPGRoomStore(db *sql.DB) *PGRoomStore {
	return &PGRoomStore{db: db}
}

func (s *PGRoomStore) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	var room store.Room
	var settingsJSON []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, settings, created_at, updated_at FROM rooms WHERE id = $1`, id,
	).Scan(&room.ID, &room.Name, &settingsJSON, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &room.Settings); err != nil {
			return nil, fmt.Errorf("parse room settings: %w", err)
		}
	}
	return &room, nil
}

func (s *PGRoomStore) UpsertRoom(ctx context.Context, room *store.Room) error {
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
		`INSERT INTO rooms (id, name, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = $2, settings = $3, updated_at = $5`,
		room.ID, room.Name, settingsJSON, room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}
	return nil
}

func (s *PGRoomStore) UpdateSettings(ctx context.Context, roomID string, settings store.RoomSettings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal room settings: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET settings = $2, updated_at = $3 WHERE id = $1`,
		roomID, settingsJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update room settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGRoomStore) ListBots(ctx context.Context, roomID string) ([]store.Bot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, name, provider, model, system_prompt, role, capabilities
		 FROM bots WHERE room_id = $1 ORDER BY registered_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var bots []store.Bot
	for rows.Next() {
		var b store.Bot
		var capsJSON []byte
		if err := rows.Scan(&b.ID, &b.RoomID, &b.Name, &b.Provider, &b.Model, &b.SystemPrompt, &b.Role, &capsJSON); err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		if len(capsJSON) > 0 {
			json.Unmarshal(capsJSON, &b.Capabilities)
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

func (s *PGRoomStore) UpsertBot(ctx context.Context, bot *store.Bot) error {
	capsJSON, _ := json.Marshal(bot.Capabilities)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bots (id, room_id, name, provider, model, system_prompt, role, capabilities, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (room_id, id) DO UPDATE
		 SET name = $3, provider = $4, model = $5, system_prompt = $6, role = $7, capabilities = $8`,
		bot.ID, bot.RoomID, bot.Name, bot.Provider, bot.Model, bot.SystemPrompt, bot.Role, capsJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert bot: %w", err)
	}
	return nil
}

func (s *PGRoomStore) DeleteBot(ctx context.Context, roomID, botID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE room_id = $1 AND id = $2`, roomID, botID)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	return nil
}
