// Package store keeps a history of scrape runs in SQLite: when each run
// happened, which meetings it found and what it discovered for each file.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pevans/civicfetch/meeting"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunStore manages run history using SQLite.
type RunStore struct {
	db *sql.DB
}

// Run is one invocation of the scraper.
type Run struct {
	RunID         uuid.UUID         `json:"run_id"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
	Backend       string            `json:"backend"`
	BaseURL       string            `json:"base_url"`
	MeetingCount  int               `json:"meeting_count"`
	FileCount     int               `json:"file_count"`
	ResolvedCount int               `json:"resolved_count"`
	Downloaded    int               `json:"downloaded"`
	DownloadFails int               `json:"download_failures"`
	Meetings      []meeting.Meeting `json:"meetings,omitempty"`
}

// NewRun starts a run record.
func NewRun(backend, baseURL string) *Run {
	return &Run{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Backend:   backend,
		BaseURL:   baseURL,
	}
}

// Finish records the meetings found and the finish time, and fills in the
// counters.
func (r *Run) Finish(meetings []meeting.Meeting) {
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Meetings = meetings
	r.MeetingCount = len(meetings)
	r.FileCount, r.ResolvedCount = 0, 0
	for _, m := range meetings {
		r.FileCount += len(m.Files)
		for _, f := range m.Files {
			if f.Resolved() {
				r.ResolvedCount++
			}
		}
	}
}

// NewRunStore opens (creating if needed) the run database at dbPath.
func NewRunStore(dbPath string) (*RunStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &RunStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the run tables if they don't exist.
func (s *RunStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		backend TEXT NOT NULL,
		base_url TEXT NOT NULL,
		meeting_count INTEGER NOT NULL DEFAULT 0,
		file_count INTEGER NOT NULL DEFAULT 0,
		resolved_count INTEGER NOT NULL DEFAULT 0,
		downloaded INTEGER NOT NULL DEFAULT 0,
		download_failures INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS meetings (
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		event_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		href TEXT NOT NULL,
		meeting_date TEXT,
		PRIMARY KEY (run_id, position)
	);
	CREATE TABLE IF NOT EXISTS files (
		run_id TEXT NOT NULL,
		meeting_position INTEGER NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		type_label TEXT NOT NULL,
		section TEXT NOT NULL,
		download_url TEXT NOT NULL,
		file_id TEXT NOT NULL,
		plain_text INTEGER NOT NULL,
		is_attachment INTEGER NOT NULL,
		has_stream_url INTEGER NOT NULL,
		PRIMARY KEY (run_id, meeting_position, position),
		FOREIGN KEY (run_id, meeting_position) REFERENCES meetings(run_id, position) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// SaveRun writes the run with its meetings and files in one transaction.
// A run with a nil ID is given a new one.
func (s *RunStore) SaveRun(run *Run) error {
	if run.RunID == uuid.Nil {
		run.RunID = uuid.New()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (
			run_id, started_at, finished_at, backend, base_url, meeting_count,
			file_count, resolved_count, downloaded, download_failures
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID.String(),
		formatTime(&run.StartedAt),
		formatTime(run.FinishedAt),
		run.Backend,
		run.BaseURL,
		run.MeetingCount,
		run.FileCount,
		run.ResolvedCount,
		run.Downloaded,
		run.DownloadFails,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, m := range run.Meetings {
		var date any
		if m.Date != nil {
			date = m.DateString()
		}
		_, err := tx.Exec(`
			INSERT INTO meetings (run_id, position, event_id, title, url, href, meeting_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.RunID.String(), i, m.ID, m.Title, m.URL, m.Href, date)
		if err != nil {
			return fmt.Errorf("failed to insert meeting %s: %w", m.ID, err)
		}

		for j, f := range m.Files {
			_, err := tx.Exec(`
				INSERT INTO files (
					run_id, meeting_position, position, name, type_label, section,
					download_url, file_id, plain_text, is_attachment, has_stream_url
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.RunID.String(), i, j, f.Name, f.TypeLabel, f.Section,
				f.DownloadURL, f.FileID, f.PlainText, f.IsAttachment, f.HasStreamURL)
			if err != nil {
				return fmt.Errorf("failed to insert file %q: %w", f.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `run_id, started_at, finished_at, backend, base_url, meeting_count,
	file_count, resolved_count, downloaded, download_failures`

// ListRuns returns runs newest first, without their meetings. A limit of 0
// or less returns every run.
func (s *RunStore) ListRuns(limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// GetRun retrieves a run with its meetings and files.
func (s *RunStore) GetRun(runID uuid.UUID) (*Run, error) {
	row := s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	meetings, err := s.loadMeetings(runID)
	if err != nil {
		return nil, err
	}
	run.Meetings = meetings
	return run, nil
}

func (s *RunStore) loadMeetings(runID uuid.UUID) ([]meeting.Meeting, error) {
	rows, err := s.db.Query(`
		SELECT event_id, title, url, href, meeting_date
		FROM meetings WHERE run_id = ? ORDER BY position`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}

	var meetings []meeting.Meeting
	for rows.Next() {
		var m meeting.Meeting
		var date sql.NullString
		if err := rows.Scan(&m.ID, &m.Title, &m.URL, &m.Href, &date); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		if date.Valid {
			if d, err := time.Parse("2006-01-02", date.String); err == nil {
				m.Date = &d
			}
		}
		meetings = append(meetings, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read meetings: %w", err)
	}

	rows, err = s.db.Query(`
		SELECT meeting_position, name, type_label, section, download_url,
		       file_id, plain_text, is_attachment, has_stream_url
		FROM files WHERE run_id = ? ORDER BY meeting_position, position`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pos int
		var f meeting.File
		if err := rows.Scan(&pos, &f.Name, &f.TypeLabel, &f.Section, &f.DownloadURL,
			&f.FileID, &f.PlainText, &f.IsAttachment, &f.HasStreamURL); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		if pos >= 0 && pos < len(meetings) {
			meetings[pos].Files = append(meetings[pos].Files, f)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read files: %w", err)
	}
	return meetings, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var runID, startedAt string
	var finishedAt sql.NullString

	err := row.Scan(&runID, &startedAt, &finishedAt, &run.Backend, &run.BaseURL,
		&run.MeetingCount, &run.FileCount, &run.ResolvedCount, &run.Downloaded, &run.DownloadFails)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run_id in database: %w", err)
	}
	run.RunID = id
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Fixed width in UTC so ORDER BY on the text column is chronological
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
