// Package store provides the sqlite-backed persistence layer: user persona
// preferences, conversation history, scoped settings, usage stats and
// reminders all live in one database file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hwestman/personabot/internal/interaction"
	. "github.com/hwestman/personabot/internal/logging"
	"github.com/hwestman/personabot/internal/settings"
)

// Store wraps the sqlite database. It implements settings.Store and
// history.Store alongside the preference, usage and reminder queries.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	L_info("store: opened", "path", path)
	return &Store{db: db}, nil
}

// OpenDB wraps an existing database handle, applying pending migrations.
// Used by tests and by tools that manage their own connection.
func OpenDB(db *sql.DB) (*Store, error) {
	if err := InitSchema(db); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Scoped settings (settings.Store)
// ---------------------------------------------------------------------------

// GetSetting returns the stored value for (scope, scopeID, key).
// ok is false when no row exists; err is reserved for real store failures.
func (s *Store) GetSetting(ctx context.Context, scope settings.Scope, scopeID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM scope_settings WHERE scope = ? AND scope_id = ? AND key = ?`,
		string(scope), scopeID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s/%s/%s: %w", scope, scopeID, key, err)
	}
	return value, true, nil
}

// SetSetting upserts a scoped setting.
func (s *Store) SetSetting(ctx context.Context, scope settings.Scope, scopeID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scope_settings (scope, scope_id, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scope, scope_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, string(scope), scopeID, key, value, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set setting %s/%s/%s: %w", scope, scopeID, key, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversation history (history.Store)
// ---------------------------------------------------------------------------

// AppendTurn records one conversation turn.
func (s *Store) AppendTurn(ctx context.Context, id interaction.Identity, turn interaction.Turn) error {
	at := turn.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (bot_id, user_id, channel_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.BotID, id.UserID, id.ChannelID, string(turn.Role), turn.Content, at.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// ReadTurns returns up to limit most-recent turns for the conversation,
// oldest first. limit <= 0 means no limit.
func (s *Store) ReadTurns(ctx context.Context, id interaction.Identity, limit int) ([]interaction.Turn, error) {
	if limit <= 0 {
		limit = -1 // sqlite treats negative LIMIT as unlimited
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM conversation_turns
		WHERE bot_id = ? AND user_id = ? AND channel_id = ?
		ORDER BY id DESC LIMIT ?
	`, id.BotID, id.UserID, id.ChannelID, limit)
	if err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}
	defer rows.Close()

	var turns []interaction.Turn
	for rows.Next() {
		var role, content, createdAt string
		if err := rows.Scan(&role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		at, _ := time.Parse(time.RFC3339Nano, createdAt)
		turns = append(turns, interaction.Turn{
			Role:    interaction.Role(role),
			Content: content,
			At:      at,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}

	// Query returned newest first; reverse to oldest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// ClearTurns removes all history for one conversation.
func (s *Store) ClearTurns(ctx context.Context, id interaction.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_turns
		WHERE bot_id = ? AND user_id = ? AND channel_id = ?
	`, id.BotID, id.UserID, id.ChannelID)
	if err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// User preferences
// ---------------------------------------------------------------------------

// GetUserPersona returns the user's chosen persona key, or "" when the
// user never picked one.
func (s *Store) GetUserPersona(ctx context.Context, botID, userID string) (string, error) {
	var persona string
	err := s.db.QueryRowContext(ctx,
		`SELECT persona FROM user_preferences WHERE bot_id = ? AND user_id = ?`,
		botID, userID,
	).Scan(&persona)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get user persona: %w", err)
	}
	return persona, nil
}

// SetUserPersona upserts the user's persona choice.
func (s *Store) SetUserPersona(ctx context.Context, botID, userID, persona string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (bot_id, user_id, persona, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(bot_id, user_id) DO UPDATE SET
			persona = excluded.persona,
			updated_at = excluded.updated_at
	`, botID, userID, persona, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set user persona: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Usage stats
// ---------------------------------------------------------------------------

// UsageRecord is one completed interaction, as recorded by the stats sink.
type UsageRecord struct {
	BotID     string
	UserID    string
	ChannelID string
	GuildID   string
	Kind      string
	Command   string
	Outcome   string
	Latency   time.Duration
	At        time.Time
}

// InsertUsage records one usage row.
func (s *Store) InsertUsage(ctx context.Context, u UsageRecord) error {
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_stats (bot_id, user_id, channel_id, guild_id, kind, command, outcome, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.BotID, u.UserID, u.ChannelID, u.GuildID, u.Kind, u.Command, u.Outcome,
		u.Latency.Milliseconds(), at.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// CountUsageByOutcome returns outcome -> count for one bot since a cutoff.
// Used by the status page.
func (s *Store) CountUsageByOutcome(ctx context.Context, botID string, since time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM usage_stats
		WHERE bot_id = ? AND created_at >= ?
		GROUP BY outcome
	`, botID, since.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("count usage: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan usage count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// CountUsageSince returns outcome -> count across all bots since a
// cutoff. Used by the status page rollup.
func (s *Store) CountUsageSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM usage_stats
		WHERE created_at >= ?
		GROUP BY outcome
	`, since.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("count usage: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan usage count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// ---------------------------------------------------------------------------
// Reminders
// ---------------------------------------------------------------------------

// Reminder is one scheduled reminder.
type Reminder struct {
	ID        int64
	BotID     string
	UserID    string
	ChannelID string
	Message   string
	RemindAt  time.Time
	CreatedAt time.Time
	Delivered bool
}

// AddReminder inserts a reminder and fills in its ID.
func (s *Store) AddReminder(ctx context.Context, r *Reminder) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (bot_id, user_id, channel_id, message, remind_at, created_at, delivered)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, r.BotID, r.UserID, r.ChannelID, r.Message,
		r.RemindAt.UTC().Format(time.RFC3339), r.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("add reminder: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("add reminder id: %w", err)
	}
	return nil
}

// DueReminders returns undelivered reminders whose time has passed.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_id, user_id, channel_id, message, remind_at, created_at
		FROM reminders
		WHERE delivered = 0 AND remind_at <= ?
		ORDER BY remind_at
	`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// ListReminders returns a user's pending reminders, soonest first.
func (s *Store) ListReminders(ctx context.Context, botID, userID string) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_id, user_id, channel_id, message, remind_at, created_at
		FROM reminders
		WHERE bot_id = ? AND user_id = ? AND delivered = 0
		ORDER BY remind_at
	`, botID, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// MarkReminderDelivered flags a reminder as sent.
func (s *Store) MarkReminderDelivered(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE reminders SET delivered = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark reminder delivered: %w", err)
	}
	return nil
}

// CancelReminder deletes a pending reminder, but only for its owner.
// Returns false when no matching pending reminder exists.
func (s *Store) CancelReminder(ctx context.Context, botID, userID string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM reminders
		WHERE id = ? AND bot_id = ? AND user_id = ? AND delivered = 0
	`, id, botID, userID)
	if err != nil {
		return false, fmt.Errorf("cancel reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel reminder count: %w", err)
	}
	return n > 0, nil
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		var r Reminder
		var remindAt, createdAt string
		if err := rows.Scan(&r.ID, &r.BotID, &r.UserID, &r.ChannelID, &r.Message, &remindAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.RemindAt, _ = time.Parse(time.RFC3339, remindAt)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
