package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"SIOR/internal/session"
)

// Store archives sessions, including aborted ones, in SQLite
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Summary is a session row without its trials
type Summary struct {
	ID         string    `json:"id"`
	StartTime  time.Time `json:"start_time"`
	AgentKind  string    `json:"agent_kind"`
	MaxTrials  int       `json:"max_trials"`
	TrialCount int       `json:"trial_count"`
	Seed       uint64    `json:"seed"`
	Status     string    `json:"status"`
}

// Open opens (creating if needed) the database at path
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time DATETIME,
		agent_kind TEXT,
		max_trials INTEGER,
		trial_count INTEGER,
		seed TEXT,
		status TEXT
	);`

	createTrialsTable := `
	CREATE TABLE IF NOT EXISTS trials (
		session_id TEXT,
		trial INTEGER,
		partner_slot INTEGER,
		partner_x REAL, partner_y REAL, partner_z REAL,
		response_slot INTEGER,
		player_x REAL, player_y REAL, player_z REAL,
		same_location BOOLEAN,
		rt_ms INTEGER,
		PRIMARY KEY(session_id, trial),
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	if _, err := db.Exec(createTrialsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create trials table: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Flush saves the session; it makes Store usable as a session sink
func (s *Store) Flush(ctx context.Context, sess *session.Session) error {
	return s.SaveSession(ctx, sess)
}

// SaveSession replaces the stored copy of sess and its trials
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO sessions (id, start_time, agent_kind, max_trials, trial_count, seed, status) VALUES (?, ?, ?, ?, ?, ?, ?)",
		sess.ID, sess.StartTime.UTC(), string(sess.AgentKind), sess.MaxTrials, sess.TrialCount, fmt.Sprintf("%d", sess.Seed), sess.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM trials WHERE session_id = ?", sess.ID); err != nil {
		return fmt.Errorf("failed to clear trials: %w", err)
	}

	for _, rec := range sess.Records {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO trials (session_id, trial, partner_slot, partner_x, partner_y, partner_z,
				response_slot, player_x, player_y, player_z, same_location, rt_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, rec.Index, int(rec.PartnerSlot),
			rec.PartnerPosition.X, rec.PartnerPosition.Y, rec.PartnerPosition.Z,
			int(rec.ResponseSlot),
			rec.PlayerPosition.X, rec.PlayerPosition.Y, rec.PlayerPosition.Z,
			rec.SameLocation, rec.ReactionTimeMs,
		)
		if err != nil {
			return fmt.Errorf("failed to save trial %d: %w", rec.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("session saved", "session_id", sess.ID, "status", sess.Status, "trial_count", sess.TrialCount)
	return nil
}

// ListSessions returns all stored sessions, newest first
func (s *Store) ListSessions(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, start_time, agent_kind, max_trials, trial_count, seed, status FROM sessions ORDER BY start_time DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		var seed string
		if err := rows.Scan(&sum.ID, &sum.StartTime, &sum.AgentKind, &sum.MaxTrials, &sum.TrialCount, &seed, &sum.Status); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if _, err := fmt.Sscanf(seed, "%d", &sum.Seed); err != nil {
			return nil, fmt.Errorf("failed to parse seed of session %s: %w", sum.ID, err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return summaries, nil
}

// LoadSession loads a session and its trials
func (s *Store) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	var sess session.Session
	var agentKind, seed string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, start_time, agent_kind, max_trials, trial_count, seed, status FROM sessions WHERE id = ?", id,
	).Scan(&sess.ID, &sess.StartTime, &agentKind, &sess.MaxTrials, &sess.TrialCount, &seed, &sess.Status)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	sess.AgentKind = session.AgentKind(agentKind)
	if _, err := fmt.Sscanf(seed, "%d", &sess.Seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT trial, partner_slot, partner_x, partner_y, partner_z,
			response_slot, player_x, player_y, player_z, same_location, rt_ms
		FROM trials WHERE session_id = ? ORDER BY trial`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load trials: %w", err)
	}
	defer rows.Close()

	sess.Records = []session.TrialRecord{}
	for rows.Next() {
		var rec session.TrialRecord
		var partnerSlot, responseSlot int
		if err := rows.Scan(
			&rec.Index, &partnerSlot,
			&rec.PartnerPosition.X, &rec.PartnerPosition.Y, &rec.PartnerPosition.Z,
			&responseSlot,
			&rec.PlayerPosition.X, &rec.PlayerPosition.Y, &rec.PlayerPosition.Z,
			&rec.SameLocation, &rec.ReactionTimeMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		rec.PartnerSlot = session.TargetSlot(partnerSlot)
		rec.ResponseSlot = session.TargetSlot(responseSlot)
		sess.Records = append(sess.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load trials: %w", err)
	}

	return &sess, nil
}
