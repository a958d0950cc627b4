package sessions

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY,
        project_slug TEXT,
        project_path TEXT,
        transcript_path TEXT,
        started_at TEXT NOT NULL,
        last_activity_at TEXT NOT NULL,
        message_count INTEGER NOT NULL DEFAULT 0,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS file_marks (
        path TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        byte_offset INTEGER NOT NULL DEFAULT 0,
        line_count INTEGER NOT NULL DEFAULT 0,
        updated_at TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS hook_audit (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        hook_id TEXT NOT NULL,
        session_id TEXT,
        plugin TEXT,
        hook TEXT,
        event TEXT NOT NULL,
        detail TEXT,
        created_at TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_hook_audit_hook_id ON hook_audit (hook_id)`,
	`CREATE INDEX IF NOT EXISTS idx_hook_audit_session_id ON hook_audit (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions (last_activity_at)`,
}

func (s *Store) applyMigrations(ctx context.Context) error {
	for _, statement := range migrations {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
