package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/TheBushidoCollective/han-sub006/internal/config"
)

// Store manages coordinator persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// GetSession fetches a session by identifier, or nil when unknown.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// ListSessions returns all sessions ordered by most recent activity.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// CountSessions returns the number of known sessions.
func (s *Store) CountSessions(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// GetMark returns the high-water mark for a session log file. A file that
// has never been indexed yields a zero mark.
func (s *Store) GetMark(ctx context.Context, path string) (Mark, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT path, session_id, byte_offset, line_count, updated_at FROM file_marks WHERE path = ?`,
		path,
	)
	var (
		mark       Mark
		updatedRaw string
	)
	err := row.Scan(&mark.Path, &mark.SessionID, &mark.Offset, &mark.Lines, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return Mark{Path: path}, nil
	}
	if err != nil {
		return Mark{}, fmt.Errorf("get mark: %w", err)
	}
	if updated, parseErr := parseTime(updatedRaw); parseErr == nil {
		mark.UpdatedAt = updated
	}
	return mark, nil
}

// ApplyIndex records the outcome of indexing appended bytes of one file:
// the session row is inserted or updated, its message count bumped, and
// the file's high-water mark advanced, all in one transaction. The boolean
// reports whether the session was newly created.
func (s *Store) ApplyIndex(ctx context.Context, update IndexUpdate) (bool, int, error) {
	if update.SessionID == "" {
		return false, 0, errors.New("session id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin index transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	activity := update.ActivityAt
	if activity.IsZero() {
		activity = now
	}

	var (
		isNew bool
		total int
	)
	row := tx.QueryRowContext(ctx, `SELECT message_count FROM sessions WHERE id = ?`, update.SessionID)
	switch err := row.Scan(&total); {
	case errors.Is(err, sql.ErrNoRows):
		isNew = true
		total = update.Messages
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO sessions (
                id, project_slug, project_path, transcript_path,
                started_at, last_activity_at, message_count, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			update.SessionID,
			nullableString(update.ProjectSlug),
			nullableString(update.ProjectPath),
			nullableString(update.TranscriptPath),
			formatTime(activity),
			formatTime(activity),
			total,
			formatTime(now),
			formatTime(now),
		)
		if err != nil {
			return false, 0, fmt.Errorf("insert session: %w", err)
		}
	case err != nil:
		return false, 0, fmt.Errorf("load session: %w", err)
	default:
		total += update.Messages
		_, err = tx.ExecContext(
			ctx,
			`UPDATE sessions
             SET message_count = ?, last_activity_at = ?, updated_at = ?,
                 transcript_path = COALESCE(?, transcript_path)
             WHERE id = ?`,
			total,
			formatTime(activity),
			formatTime(now),
			nullableString(update.TranscriptPath),
			update.SessionID,
		)
		if err != nil {
			return false, 0, fmt.Errorf("update session: %w", err)
		}
	}

	if update.Path != "" {
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO file_marks (path, session_id, byte_offset, line_count, updated_at)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(path) DO UPDATE SET
                 session_id = excluded.session_id,
                 byte_offset = excluded.byte_offset,
                 line_count = excluded.line_count,
                 updated_at = excluded.updated_at`,
			update.Path,
			update.SessionID,
			update.Offset,
			update.Lines,
			formatTime(now),
		)
		if err != nil {
			return false, 0, fmt.Errorf("advance mark: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit index transaction: %w", err)
	}
	return isNew, total, nil
}

// AppendAudit appends one lifecycle transition to the hook audit log.
func (s *Store) AppendAudit(ctx context.Context, event AuditEvent) error {
	if event.HookID == "" {
		return errors.New("hook id is required")
	}
	if event.Event == "" {
		return errors.New("audit event type is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO hook_audit (hook_id, session_id, plugin, hook, event, detail, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.HookID,
		nullableString(event.SessionID),
		nullableString(event.Plugin),
		nullableString(event.Hook),
		event.Event,
		nullableString(event.Detail),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// AuditTrail returns the lifecycle transitions recorded for one hook id,
// oldest first.
func (s *Store) AuditTrail(ctx context.Context, hookID string) ([]AuditEvent, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, hook_id, session_id, plugin, hook, event, detail, created_at
         FROM hook_audit WHERE hook_id = ? ORDER BY id`,
		hookID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()
	return collectAuditEvents(rows)
}

// SessionAudit returns the lifecycle transitions for every hook of a
// session, oldest first.
func (s *Store) SessionAudit(ctx context.Context, sessionID string) ([]AuditEvent, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, hook_id, session_id, plugin, hook, event, detail, created_at
         FROM hook_audit WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session audit: %w", err)
	}
	defer rows.Close()
	return collectAuditEvents(rows)
}

func collectAuditEvents(rows *sql.Rows) ([]AuditEvent, error) {
	var out []AuditEvent
	for rows.Next() {
		var (
			event      AuditEvent
			sessionID  sql.NullString
			plugin     sql.NullString
			hook       sql.NullString
			detail     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&event.ID, &event.HookID, &sessionID, &plugin, &hook, &event.Event, &detail, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.SessionID = sessionID.String
		event.Plugin = plugin.String
		event.Hook = hook.String
		event.Detail = detail.String
		if created, err := parseTime(createdRaw); err == nil {
			event.CreatedAt = created
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

const sessionColumns = "id, project_slug, project_path, transcript_path, started_at, last_activity_at, message_count, created_at, updated_at"

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		session        Session
		projectSlug    sql.NullString
		projectPath    sql.NullString
		transcriptPath sql.NullString
		startedRaw     string
		activityRaw    string
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&session.ID,
		&projectSlug,
		&projectPath,
		&transcriptPath,
		&startedRaw,
		&activityRaw,
		&session.MessageCount,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	session.ProjectSlug = projectSlug.String
	session.ProjectPath = projectPath.String
	session.TranscriptPath = transcriptPath.String
	if t, err := parseTime(startedRaw); err == nil {
		session.StartedAt = t
	}
	if t, err := parseTime(activityRaw); err == nil {
		session.LastActivityAt = t
	}
	if t, err := parseTime(createdRaw); err == nil {
		session.CreatedAt = t
	}
	if t, err := parseTime(updatedRaw); err == nil {
		session.UpdatedAt = t
	}
	return &session, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
