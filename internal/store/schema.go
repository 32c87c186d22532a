package store

import (
	"database/sql"
	"fmt"

	. "github.com/hwestman/personabot/internal/logging"
)

// Current schema version
const schemaVersion = 4

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
}

// Migrations for the bot database
var migrations = []Migration{
	{
		Version: 1,
		Up: `
-- Per-user persona choice
CREATE TABLE IF NOT EXISTS user_preferences (
    bot_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    persona TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (bot_id, user_id)
);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		Version: 2,
		Up: `
-- Conversation history, one row per turn. The rowid preserves append
-- order within a conversation.
CREATE TABLE IF NOT EXISTS conversation_turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    bot_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_conversation
    ON conversation_turns(bot_id, user_id, channel_id, id);

INSERT OR REPLACE INTO schema_version (version) VALUES (2);
`,
	},
	{
		Version: 3,
		Up: `
-- Channel- and guild-scoped settings. Scope ids are platform snowflakes
-- and globally unique, so the scope pair alone keys a row.
CREATE TABLE IF NOT EXISTS scope_settings (
    scope TEXT NOT NULL,
    scope_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (scope, scope_id, key)
);

INSERT OR REPLACE INTO schema_version (version) VALUES (3);
`,
	},
	{
		Version: 4,
		Up: `
-- Usage stats, written fire-and-forget by the stats recorder
CREATE TABLE IF NOT EXISTS usage_stats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    bot_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    guild_id TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    command TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_stats(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_bot ON usage_stats(bot_id, created_at);

-- Scheduled reminders
CREATE TABLE IF NOT EXISTS reminders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    bot_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    message TEXT NOT NULL,
    remind_at TEXT NOT NULL,
    created_at TEXT NOT NULL,
    delivered INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(delivered, remind_at);

INSERT OR REPLACE INTO schema_version (version) VALUES (4);
`,
	},
}

// InitSchema initializes the database schema
func InitSchema(db *sql.DB) error {
	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&currentVersion)
	if err == sql.ErrNoRows {
		currentVersion = 0
	} else if err != nil {
		// Table doesn't exist yet
		currentVersion = 0
	}

	for _, m := range migrations {
		if m.Version > currentVersion {
			L_info("store: applying migration", "version", m.Version)
			_, err := db.Exec(m.Up)
			if err != nil {
				return fmt.Errorf("migration %d failed: %w", m.Version, err)
			}
			currentVersion = m.Version
		}
	}

	L_info("store: schema initialized", "version", currentVersion)
	return nil
}
