// Package archive keeps the persona's long-term record in PostgreSQL:
// chat sessions, their messages, and published diary entries. The
// working memory store handles scoring and decay; the archive is the
// append-only history behind it.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	platform   TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (platform, channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	session_id UUID NOT NULL REFERENCES sessions(id),
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS diary_entries (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	kind         TEXT NOT NULL,
	content      TEXT NOT NULL,
	image_urls   TEXT[] NOT NULL DEFAULT '{}',
	published_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_diary_published ON diary_entries(published_at);
`

// Archive wraps a PostgreSQL connection pool.
type Archive struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New connects to PostgreSQL and ensures the schema exists.
func New(dsn string, logger *zap.Logger) (*Archive, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(context.Background(), schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive schema: %w", err)
	}
	logger.Info("PostgreSQL archive connected")
	return &Archive{db: pool, logger: logger}, nil
}

// FindOrCreateSession returns an existing session or creates a new one.
func (a *Archive) FindOrCreateSession(ctx context.Context, platform, channelID, userID string) (string, error) {
	var id string
	err := a.db.QueryRow(ctx, `
		INSERT INTO sessions (platform, channel_id, user_id, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (platform, channel_id, user_id)
		DO UPDATE SET status = 'active'
		RETURNING id`,
		platform, channelID, userID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("find or create session: %w", err)
	}
	return id, nil
}

// AppendMessage stores a message in the given session.
func (a *Archive) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := a.db.Exec(ctx, `
		INSERT INTO messages (session_id, role, content)
		VALUES ($1, $2, $3)`,
		sessionID, role, content,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Message is one archived chat turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentMessages returns the most recent messages for a session in
// chronological order.
func (a *Archive) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.Query(ctx, `
		SELECT role, content, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DiaryEntry is one published feed post kept for history.
type DiaryEntry struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Content     string    `json:"content"`
	ImageURLs   []string  `json:"image_urls,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// SaveDiary records a published post.
func (a *Archive) SaveDiary(ctx context.Context, kind, content string, imageURLs []string) (string, error) {
	if imageURLs == nil {
		imageURLs = []string{}
	}
	var id string
	err := a.db.QueryRow(ctx, `
		INSERT INTO diary_entries (kind, content, image_urls)
		VALUES ($1, $2, $3)
		RETURNING id`,
		kind, content, imageURLs,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save diary: %w", err)
	}
	return id, nil
}

// RecentDiaries returns the latest published entries, newest first.
// The composer feeds these back as context so consecutive posts don't
// repeat themselves.
func (a *Archive) RecentDiaries(ctx context.Context, limit int) ([]DiaryEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := a.db.Query(ctx, `
		SELECT id, kind, content, image_urls, published_at
		FROM diary_entries
		ORDER BY published_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent diaries: %w", err)
	}
	defer rows.Close()

	var entries []DiaryEntry
	for rows.Next() {
		var e DiaryEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Content, &e.ImageURLs, &e.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan diary: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close shuts down the connection pool.
func (a *Archive) Close() {
	a.db.Close()
}
