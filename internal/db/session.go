package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one run of the decoder against one source.
type Session struct {
	ID        string     `json:"session_id"`
	Device    string     `json:"device"`
	Source    string     `json:"source"`
	CfgPath   string     `json:"cfg_path"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Frames    int64      `json:"frames"`
	Errors    int64      `json:"errors"`
}

// StartSession inserts a new session with a random id.
func (db *DB) StartSession(device, source, cfgPath string, startedAt time.Time) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		Device:    device,
		Source:    source,
		CfgPath:   cfgPath,
		StartedAt: startedAt,
	}
	_, err := db.Exec(`INSERT INTO sessions (session_id, device, source, cfg_path, started_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Device, s.Source, s.CfgPath, startedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return s, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(id string, endedAt time.Time) error {
	result, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, endedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

const sessionColumns = `s.session_id, s.device, s.source, s.cfg_path, s.started_at, s.ended_at,
	(SELECT COUNT(*) FROM frames f WHERE f.session_id = s.session_id),
	(SELECT COUNT(*) FROM frames f WHERE f.session_id = s.session_id AND f.error_code != 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var started int64
	var ended sql.NullInt64
	if err := row.Scan(&s.ID, &s.Device, &s.Source, &s.CfgPath, &started, &ended, &s.Frames, &s.Errors); err != nil {
		return nil, err
	}
	s.StartedAt = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		s.EndedAt = &t
	}
	return &s, nil
}

// GetSession returns the session with frame counts, or nil if none matches.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions s WHERE s.session_id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns the newest sessions first.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM sessions s ORDER BY s.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
