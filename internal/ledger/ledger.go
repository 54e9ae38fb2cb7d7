// Package ledger keeps a local SQLite record of meetings started from this
// machine and of every ClickUp push attempt.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vocaris/vocaris/clickup"
	"github.com/vocaris/vocaris/internal/state"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// FileName is the ledger database name inside the state directory.
const FileName = "ledger.db"

// Ledger is an open ledger database.
type Ledger struct {
	db *sql.DB
}

// Path returns the ledger path inside stateDir.
func Path(stateDir string) string {
	return filepath.Join(stateDir, FileName)
}

// Open opens or creates the ledger at path and applies the schema.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Meeting is one recorded meeting.
type Meeting struct {
	BotID      string     `json:"bot_id"`
	SessionID  string     `json:"session_id,omitempty"`
	MeetingURL string     `json:"meeting_url"`
	IsScrum    bool       `json:"is_scrum"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// RecordMeeting inserts or refreshes the row for a session.
func (l *Ledger) RecordMeeting(ctx context.Context, session state.Session) error {
	startedAt := session.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	var endedAt any
	if session.Ended() {
		endedAt = formatTime(session.EndedAt)
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO meetings(bot_id, session_id, meeting_url, is_scrum, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bot_id) DO UPDATE SET
			session_id = excluded.session_id,
			meeting_url = excluded.meeting_url,
			is_scrum = excluded.is_scrum,
			ended_at = COALESCE(excluded.ended_at, meetings.ended_at)
	`, session.BotID, session.SessionID, session.MeetingURL, session.IsScrum, formatTime(startedAt), endedAt)
	if err != nil {
		return fmt.Errorf("record meeting %s: %w", session.BotID, err)
	}
	return nil
}

// Meetings returns recorded meetings, newest first.
func (l *Ledger) Meetings(ctx context.Context, limit int) ([]Meeting, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT bot_id, session_id, meeting_url, is_scrum, started_at, ended_at
		FROM meetings
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []Meeting
	for rows.Next() {
		var meeting Meeting
		var startedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&meeting.BotID, &meeting.SessionID, &meeting.MeetingURL, &meeting.IsScrum, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		if meeting.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if endedAt.Valid {
			ended, err := parseTime(endedAt.String)
			if err != nil {
				return nil, err
			}
			meeting.EndedAt = &ended
		}
		meetings = append(meetings, meeting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read meetings: %w", err)
	}
	return meetings, nil
}

// RecordPush stores one push attempt.
func (l *Ledger) RecordPush(ctx context.Context, attempt clickup.Attempt) error {
	at := attempt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO push_attempts(batch_id, bot_id, list_id, title, task_id, error, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, attempt.BatchID, attempt.BotID, attempt.ListID, attempt.Title, attempt.TaskID, attempt.Error, formatTime(at))
	if err != nil {
		return fmt.Errorf("record push attempt: %w", err)
	}
	return nil
}

// Pushes returns the attempts for a batch in the order they were made.
func (l *Ledger) Pushes(ctx context.Context, batchID string) ([]clickup.Attempt, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT batch_id, bot_id, list_id, title, task_id, error, attempted_at
		FROM push_attempts
		WHERE batch_id = ?
		ORDER BY id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list push attempts: %w", err)
	}
	defer rows.Close()

	var attempts []clickup.Attempt
	for rows.Next() {
		var attempt clickup.Attempt
		var at string
		if err := rows.Scan(&attempt.BatchID, &attempt.BotID, &attempt.ListID, &attempt.Title, &attempt.TaskID, &attempt.Error, &at); err != nil {
			return nil, fmt.Errorf("scan push attempt: %w", err)
		}
		if attempt.At, err = parseTime(at); err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read push attempts: %w", err)
	}
	return attempts, nil
}

// PushedTitles returns the titles that already have a task in listID. It
// lets callers warn before pushing a duplicate.
func (l *Ledger) PushedTitles(ctx context.Context, listID string) (map[string]bool, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT title FROM push_attempts
		WHERE list_id = ? AND error = ''
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("list pushed titles: %w", err)
	}
	defer rows.Close()

	titles := make(map[string]bool)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan pushed title: %w", err)
		}
		titles[title] = true
	}
	return titles, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", value, err)
	}
	return t, nil
}

var _ clickup.Recorder = (*Ledger)(nil)
