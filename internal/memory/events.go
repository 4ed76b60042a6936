package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is a dated entry in the persona's experience log.
type Event struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Description string            `json:"description"`
	UserID      string            `json:"user_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// RecordEvent appends an event to the experience log.
func (s *Store) RecordEvent(kind, description, userID string, metadata map[string]string) (*Event, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal event metadata: %w", err)
	}
	ev := &Event{
		ID:          uuid.New().String(),
		Kind:        kind,
		Description: description,
		UserID:      userID,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
	_, err = s.db.Exec(`
		INSERT INTO events (id, kind, description, user_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, kind, description, userID, string(meta), ev.CreatedAt.Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}
	s.logger.Debug("event recorded", zap.String("kind", kind))
	return ev, nil
}

// EventsSince returns events of the given kind recorded at or after
// since. Empty kind matches all kinds.
func (s *Store) EventsSince(kind string, since time.Time) ([]*Event, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, description, user_id, metadata, created_at
		FROM events
		WHERE (? = '' OR kind = ?) AND created_at >= ?
		ORDER BY created_at ASC`,
		kind, kind, since.Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var ev Event
		var meta, created string
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Description, &ev.UserID, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("%w: event metadata %q", ErrCorruptRecord, meta)
		}
		t, err := time.Parse(timeFormat, created)
		if err != nil {
			return nil, fmt.Errorf("%w: event created_at %q", ErrCorruptRecord, created)
		}
		ev.CreatedAt = t
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// SaveState persists a named JSON state blob for other subsystems
// (drives, personality, profile updater). The value must marshal.
func (s *Store) SaveState(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

// LoadState unmarshals a named state blob into out. Returns ErrNotFound
// when the key has never been saved.
func (s *Store) LoadState(key string, out any) error {
	var data string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load state %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("%w: state %s", ErrCorruptRecord, key)
	}
	return nil
}
