// Package sqlite is the durable conversation store: conversations,
// messages, relationship state and the character-scoped shared-memory
// list, all in one embedded database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/virtualcompanion/companion-sdk/core"
	"github.com/virtualcompanion/companion-sdk/memory"
)

// Store implements core.MessageStore and memory.SharedStore over a
// single SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates/opens the conversation database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process store. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			character_id TEXT NOT NULL,
			started_at_ms INTEGER NOT NULL,
			last_activity_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS conversations_user_idx ON conversations(user_id, last_activity_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages(conversation_id, created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS relationships (
			user_id TEXT NOT NULL,
			character_id TEXT NOT NULL,
			trust INTEGER NOT NULL DEFAULT 0,
			intimacy INTEGER NOT NULL DEFAULT 0,
			engagement INTEGER NOT NULL DEFAULT 0,
			overall INTEGER NOT NULL DEFAULT 0,
			bonds_json TEXT NOT NULL DEFAULT '{}',
			milestones_json TEXT NOT NULL DEFAULT '{}',
			updated_at_ms INTEGER NOT NULL,
			PRIMARY KEY(user_id, character_id)
		);`,
		// id is the insertion-order authority for the FIFO cap and for
		// List; created_at_ms is informational and shared by all
		// entries of one Append batch.
		`CREATE TABLE IF NOT EXISTS shared_memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			character_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS shared_memories_pair_idx ON shared_memories(user_id, character_id, id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(stmt string) string {
	line := strings.TrimSpace(stmt)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

// CreateConversation starts a new conversation and returns its ID.
func (s *Store) CreateConversation(ctx context.Context, userID, characterID string) (string, error) {
	id := "cnv-" + uuid.NewString()
	now := nowMS()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversations(id, user_id, character_id, started_at_ms, last_activity_ms)
VALUES(?, ?, ?, ?, ?)`, id, userID, characterID, now, now)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// Conversation implements core.MessageStore.
func (s *Store) Conversation(ctx context.Context, conversationID string) (*core.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, character_id, started_at_ms, last_activity_ms
FROM conversations WHERE id = ?`, conversationID)

	var conv core.Conversation
	var startedMS, activityMS int64
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.CharacterID, &startedMS, &activityMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: conversation %s not found", core.ErrContextUnavailable, conversationID)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	conv.StartedAt = time.UnixMilli(startedMS)
	conv.LastActivity = time.UnixMilli(activityMS)
	return &conv, nil
}

// RecentMessages implements core.MessageStore: up to limit messages,
// oldest first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error) {
	if limit <= 0 {
		limit = 1
	}
	// Ties on created_at_ms are the normal case (a user message and its
	// reply land in the same millisecond); rowid keeps insertion order.
	rows, err := s.db.QueryContext(ctx, `
SELECT id, conversation_id, role, content, metadata_json, created_at_ms
FROM messages
WHERE conversation_id = ?
ORDER BY created_at_ms DESC, rowid DESC
LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	out := make([]core.Message, 0, limit)
	for rows.Next() {
		var msg core.Message
		var role string
		var metaRaw string
		var createdMS int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &metaRaw, &createdMS); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = core.Role(role)
		msg.Metadata = decodeMap(metaRaw)
		msg.CreatedAt = time.UnixMilli(createdMS)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Query is newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SaveMessage implements core.MessageStore.
func (s *Store) SaveMessage(ctx context.Context, conversationID string, role core.Role, content string, metadata map[string]string) (string, error) {
	id := "msg-" + uuid.NewString()
	now := nowMS()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("save message begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO messages(id, conversation_id, role, content, metadata_json, created_at_ms)
VALUES(?, ?, ?, ?, ?, ?)`, id, conversationID, string(role), content, encodeMap(metadata), now); err != nil {
		return "", fmt.Errorf("save message insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE conversations SET last_activity_ms = ? WHERE id = ?`, now, conversationID); err != nil {
		return "", fmt.Errorf("save message touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save message commit: %w", err)
	}
	return id, nil
}

// Relationship implements core.MessageStore. A pair with no history
// returns a fresh zero state.
func (s *Store) Relationship(ctx context.Context, userID, characterID string) (*core.RelationshipState, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT trust, intimacy, engagement, overall, bonds_json, milestones_json
FROM relationships WHERE user_id = ? AND character_id = ?`, userID, characterID)

	state := core.NewRelationshipState()
	var bondsRaw, milestonesRaw string
	if err := row.Scan(&state.TrustLevel, &state.IntimacyLevel, &state.EngagementLevel, &state.OverallScore, &bondsRaw, &milestonesRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state, nil
		}
		return nil, fmt.Errorf("get relationship: %w", err)
	}
	state.EmotionalBonds = decodeBonds(bondsRaw)
	state.Milestones = decodeMilestones(milestonesRaw)
	return state, nil
}

// SaveRelationship implements core.MessageStore.
func (s *Store) SaveRelationship(ctx context.Context, userID, characterID string, state *core.RelationshipState) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO relationships(user_id, character_id, trust, intimacy, engagement, overall, bonds_json, milestones_json, updated_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, character_id) DO UPDATE SET
	trust = excluded.trust,
	intimacy = excluded.intimacy,
	engagement = excluded.engagement,
	overall = excluded.overall,
	bonds_json = excluded.bonds_json,
	milestones_json = excluded.milestones_json,
	updated_at_ms = excluded.updated_at_ms`,
		userID, characterID,
		state.TrustLevel, state.IntimacyLevel, state.EngagementLevel, state.OverallScore,
		encodeBonds(state.EmotionalBonds), encodeMilestones(state.Milestones), nowMS())
	if err != nil {
		return fmt.Errorf("save relationship: %w", err)
	}
	return nil
}

// Append implements memory.SharedStore with the FIFO cap enforced in
// the same transaction as the insert. Order within a batch is carried
// by the AUTOINCREMENT id, not the shared timestamp.
func (s *Store) Append(ctx context.Context, userID, characterID string, entries ...string) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append shared memory begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowMS()
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO shared_memories(user_id, character_id, content, created_at_ms)
VALUES(?, ?, ?, ?)`, userID, characterID, entry, now); err != nil {
			return fmt.Errorf("append shared memory insert: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
DELETE FROM shared_memories
WHERE user_id = ? AND character_id = ?
AND id NOT IN (
	SELECT id FROM shared_memories
	WHERE user_id = ? AND character_id = ?
	ORDER BY id DESC
	LIMIT ?
)`, userID, characterID, userID, characterID, memory.SharedCap); err != nil {
		return fmt.Errorf("append shared memory evict: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append shared memory commit: %w", err)
	}
	return nil
}

// List implements memory.SharedStore: entries in insertion order,
// oldest first.
func (s *Store) List(ctx context.Context, userID, characterID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT content FROM shared_memories
WHERE user_id = ? AND character_id = ?
ORDER BY id ASC`, userID, characterID)
	if err != nil {
		return nil, fmt.Errorf("list shared memories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan shared memory: %w", err)
		}
		out = append(out, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared memories: %w", err)
	}
	return out, nil
}

func encodeMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMap(raw string) map[string]string {
	if raw == "" {
		return map[string]string{}
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]string{}
	}
	return out
}

func encodeBonds(bonds map[string]int) string {
	if len(bonds) == 0 {
		return "{}"
	}
	b, err := json.Marshal(bonds)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeBonds(raw string) map[string]int {
	out := map[string]int{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]int{}
	}
	return out
}

func encodeMilestones(milestones map[string]time.Time) string {
	if len(milestones) == 0 {
		return "{}"
	}
	ms := make(map[string]int64, len(milestones))
	for k, v := range milestones {
		ms[k] = v.UnixMilli()
	}
	b, err := json.Marshal(ms)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMilestones(raw string) map[string]time.Time {
	out := map[string]time.Time{}
	if raw == "" {
		return out
	}
	ms := map[string]int64{}
	if err := json.Unmarshal([]byte(raw), &ms); err != nil {
		return out
	}
	for k, v := range ms {
		out[k] = time.UnixMilli(v)
	}
	return out
}
