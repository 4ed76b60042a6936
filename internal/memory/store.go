package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Sentinel errors returned by the store. Callers that treat memory as
// best-effort log these and continue; nothing here panics or swallows.
var (
	ErrNotFound      = errors.New("memory: record not found")
	ErrCorruptRecord = errors.New("memory: corrupt record")
)

// timeFormat is how timestamps are persisted. RFC3339Nano round-trips
// through TEXT columns without precision loss.
const timeFormat = time.RFC3339Nano

// Store is the embedded SQLite memory store. It holds weighted
// conversations, promoted core memories, the reinforcement log and the
// decay archive in a single database file.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the store at path and runs migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers; the pragmas below also only
	// apply to the connection they run on.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: logger}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("memory store opened", zap.String("path", path))
	return s, nil
}

// OpenMemory opens an in-memory store, used by tests.
func OpenMemory(logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Each pooled connection gets its own :memory: database; pin to one.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: logger}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return s.migrate()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			user_message TEXT NOT NULL,
			bot_response TEXT NOT NULL,
			message_length INTEGER NOT NULL,
			response_length INTEGER NOT NULL,
			importance REAL NOT NULL,
			review_count INTEGER NOT NULL DEFAULT 0,
			last_reviewed TEXT,
			decay_factor REAL NOT NULL DEFAULT 1.0,
			trivial INTEGER NOT NULL DEFAULT 0,
			trivial_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_importance ON conversations(importance)`,
		`CREATE TABLE IF NOT EXISTS core_memories (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			summary TEXT NOT NULL,
			importance REAL NOT NULL,
			category TEXT NOT NULL,
			promoted_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reinforcements (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			type TEXT NOT NULL,
			effectiveness REAL NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reinforcements_memory ON reinforcements(memory_id)`,
		`CREATE TABLE IF NOT EXISTS decay_archive (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			summary TEXT NOT NULL,
			reason TEXT NOT NULL,
			created_at TEXT NOT NULL,
			archived_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			description TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close shuts down the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordOptions tune how a turn is recorded.
type RecordOptions struct {
	SessionID    string
	ContextClues []string
	// Importance overrides the computed score when non-nil. It is
	// clamped to [0,1] like a computed score.
	Importance *float64
	Now        time.Time // zero means time.Now()
}

// Record stores a weighted conversational turn. If the importance
// reaches CoreThreshold the turn is promoted to a core memory before
// Record returns.
func (s *Store) Record(userID, userMessage, botResponse string, opts RecordOptions) (*ConversationRecord, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var importance float64
	if opts.Importance != nil {
		importance = clamp01(*opts.Importance)
	} else {
		importance = Score(userMessage, botResponse, opts.ContextClues)
	}

	rec := &ConversationRecord{
		ID:            uuid.New().String(),
		CreatedAt:     now,
		UserID:        userID,
		SessionID:     opts.SessionID,
		UserMessage:   userMessage,
		BotResponse:   botResponse,
		MessageLength: runeLen(userMessage),
		ResponseLen:   runeLen(botResponse),
		Importance:    importance,
		DecayFactor:   1.0,
	}

	_, err := s.db.Exec(`
		INSERT INTO conversations
			(id, created_at, user_id, session_id, user_message, bot_response,
			 message_length, response_length, importance, review_count,
			 last_reviewed, decay_factor, trivial, trivial_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, 1.0, 0, '')`,
		rec.ID, now.Format(timeFormat), userID, opts.SessionID,
		userMessage, botResponse, rec.MessageLength, rec.ResponseLen, importance)
	if err != nil {
		return nil, fmt.Errorf("record conversation: %w", err)
	}

	s.logger.Info("conversation recorded",
		zap.String("user", userID),
		zap.Float64("importance", importance))

	if importance >= CoreThreshold {
		if err := s.promote(rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// promote copies a high-importance turn into the core memory list.
func (s *Store) promote(rec *ConversationRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO core_memories (id, source_id, user_id, summary, importance, category, promoted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.ID, rec.UserID,
		summarize(rec.UserMessage, 50), rec.Importance,
		Categorize(rec.UserMessage, rec.BotResponse),
		time.Now().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("promote core memory: %w", err)
	}
	s.logger.Info("core memory promoted",
		zap.String("source", rec.ID),
		zap.Float64("importance", rec.Importance))
	return nil
}

// Get returns a single conversation record by ID.
func (s *Store) Get(id string) (*ConversationRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, user_id, session_id, user_message, bot_response,
		       message_length, response_length, importance, review_count,
		       last_reviewed, decay_factor, trivial, trivial_reason
		FROM conversations WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// QueryOptions filter important-memory retrieval.
type QueryOptions struct {
	UserID    string  // empty matches all users
	Threshold float64 // minimum importance, typically ImportantThreshold
	Limit     int     // 0 means 10
}

// ImportantMemories returns non-trivial records at or above the
// threshold, ordered by importance*decay then recency.
func (s *Store) ImportantMemories(opts QueryOptions) ([]*ConversationRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, created_at, user_id, session_id, user_message, bot_response,
		       message_length, response_length, importance, review_count,
		       last_reviewed, decay_factor, trivial, trivial_reason
		FROM conversations
		WHERE importance >= ? AND trivial = 0
		  AND (? = '' OR user_id = ?)
		ORDER BY importance * decay_factor DESC, created_at DESC
		LIMIT ?`,
		opts.Threshold, opts.UserID, opts.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("query important memories: %w", err)
	}
	defer rows.Close()

	var out []*ConversationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkTrivial flags a record as trivial and docks its importance,
// accelerating its decay.
func (s *Store) MarkTrivial(id, reason string) error {
	res, err := s.db.Exec(`
		UPDATE conversations
		SET trivial = 1, trivial_reason = ?,
		    importance = MAX(0, importance - 0.3)
		WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("mark trivial: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.logger.Debug("memory marked trivial", zap.String("id", id), zap.String("reason", reason))
	return nil
}

// Reinforce appends a recall event and bumps the record's review count.
// Returns ErrNotFound when the memory ID does not resolve to a live record.
func (s *Store) Reinforce(memoryID string, kind ReinforcementType) (*ReinforcementEvent, error) {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM conversations WHERE id = ?`, memoryID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up memory: %w", err)
	}

	ev := &ReinforcementEvent{
		ID:            uuid.New().String(),
		MemoryID:      memoryID,
		Type:          kind,
		Effectiveness: kind.Effectiveness(),
		CreatedAt:     time.Now(),
	}
	_, err = s.db.Exec(`
		INSERT INTO reinforcements (id, memory_id, type, effectiveness, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.MemoryID, string(ev.Type), ev.Effectiveness, ev.CreatedAt.Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("record reinforcement: %w", err)
	}
	_, err = s.db.Exec(`
		UPDATE conversations
		SET review_count = review_count + 1, last_reviewed = ?
		WHERE id = ?`, ev.CreatedAt.Format(timeFormat), memoryID)
	if err != nil {
		return nil, fmt.Errorf("update review count: %w", err)
	}
	s.logger.Debug("memory reinforced",
		zap.String("memory", memoryID),
		zap.String("type", string(kind)))
	return ev, nil
}

// CoreMemories returns all promoted core memories, newest first.
func (s *Store) CoreMemories(userID string) ([]*CoreMemory, error) {
	rows, err := s.db.Query(`
		SELECT id, source_id, user_id, summary, importance, category, promoted_at
		FROM core_memories
		WHERE (? = '' OR user_id = ?)
		ORDER BY promoted_at DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query core memories: %w", err)
	}
	defer rows.Close()

	var out []*CoreMemory
	for rows.Next() {
		var cm CoreMemory
		var promoted string
		if err := rows.Scan(&cm.ID, &cm.SourceID, &cm.UserID, &cm.Summary,
			&cm.Importance, &cm.Category, &promoted); err != nil {
			return nil, fmt.Errorf("scan core memory: %w", err)
		}
		t, err := time.Parse(timeFormat, promoted)
		if err != nil {
			return nil, fmt.Errorf("%w: promoted_at %q", ErrCorruptRecord, promoted)
		}
		cm.PromotedAt = t
		out = append(out, &cm)
	}
	return out, rows.Err()
}

// Statistics summarizes the live store.
func (s *Store) Statistics() (*Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN importance >= ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(trivial), 0),
		       COALESCE(AVG(importance), 0)
		FROM conversations`, ImportantThreshold).
		Scan(&st.Total, &st.Important, &st.Trivial, &st.AverageImportance)
	if err != nil {
		return nil, fmt.Errorf("memory statistics: %w", err)
	}
	if st.Total > 0 {
		st.RetentionRate = 1 - float64(st.Trivial)/float64(st.Total)
	} else {
		st.RetentionRate = 1
	}
	return &st, nil
}

// ReinforcementOverview aggregates the reinforcement log and core list.
func (s *Store) ReinforcementOverview() (*ReinforcementSummary, error) {
	sum := &ReinforcementSummary{CoreCategories: map[string]int{}}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM core_memories`).Scan(&sum.CoreMemories); err != nil {
		return nil, fmt.Errorf("count core memories: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reinforcements`).Scan(&sum.TotalReinforcements); err != nil {
		return nil, fmt.Errorf("count reinforcements: %w", err)
	}

	var last sql.NullString
	if err := s.db.QueryRow(`SELECT MAX(created_at) FROM reinforcements`).Scan(&last); err != nil {
		return nil, fmt.Errorf("last review: %w", err)
	}
	if last.Valid {
		t, err := time.Parse(timeFormat, last.String)
		if err == nil {
			sum.LastReview = &t
		}
	}

	rows, err := s.db.Query(`SELECT category, COUNT(*) FROM core_memories GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("core categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		sum.CoreCategories[cat] = n
	}
	return sum, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ConversationRecord, error) {
	var rec ConversationRecord
	var created string
	var reviewed sql.NullString
	var trivial int
	if err := row.Scan(&rec.ID, &created, &rec.UserID, &rec.SessionID,
		&rec.UserMessage, &rec.BotResponse, &rec.MessageLength, &rec.ResponseLen,
		&rec.Importance, &rec.ReviewCount, &reviewed, &rec.DecayFactor,
		&trivial, &rec.TrivialReason); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at %q", ErrCorruptRecord, created)
	}
	rec.CreatedAt = t
	if reviewed.Valid {
		lt, err := time.Parse(timeFormat, reviewed.String)
		if err != nil {
			return nil, fmt.Errorf("%w: last_reviewed %q", ErrCorruptRecord, reviewed.String)
		}
		rec.LastReviewed = &lt
	}
	rec.Trivial = trivial != 0
	return &rec, nil
}

func summarize(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func runeLen(s string) int {
	return len([]rune(s))
}
