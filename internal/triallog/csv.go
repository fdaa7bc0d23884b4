// Package triallog writes the per-session trial log as CSV.
package triallog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"SIOR/internal/session"
)

// Header is the first row of every log file
var Header = []string{"Trial", "PartnerPos", "PlayerPos", "SameLocation", "RTms"}

// Row is one decoded log line
type Row struct {
	Trial          int
	PartnerPos     session.Vec3
	PlayerPos      session.Vec3
	SameLocation   bool
	ReactionTimeMs int64
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Encode writes the header and one row per record
func Encode(w io.Writer, records []session.TrialRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			strconv.Itoa(rec.Index),
			rec.PartnerPosition.String(),
			rec.PlayerPosition.String(),
			formatBool(rec.SameLocation),
			strconv.FormatInt(rec.ReactionTimeMs, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write trial %d: %w", rec.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode reads a log written by Encode
func Decode(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	lines, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty log")
	}
	if strings.Join(lines[0], ",") != strings.Join(Header, ",") {
		return nil, fmt.Errorf("unexpected header: %q", lines[0])
	}

	rows := make([]Row, 0, len(lines)-1)
	for i, line := range lines[1:] {
		row, err := decodeRow(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRow(line []string) (Row, error) {
	var row Row
	var err error

	if row.Trial, err = strconv.Atoi(line[0]); err != nil {
		return row, fmt.Errorf("bad trial number: %w", err)
	}
	if row.PartnerPos, err = ParseVec3(line[1]); err != nil {
		return row, err
	}
	if row.PlayerPos, err = ParseVec3(line[2]); err != nil {
		return row, err
	}
	switch strings.ToLower(line[3]) {
	case "true":
		row.SameLocation = true
	case "false":
	default:
		return row, fmt.Errorf("bad boolean %q", line[3])
	}
	if row.ReactionTimeMs, err = strconv.ParseInt(line[4], 10, 64); err != nil {
		return row, fmt.Errorf("bad reaction time: %w", err)
	}
	return row, nil
}

// ParseVec3 parses the "(x,y,z)" form written by Vec3.String
func ParseVec3(s string) (session.Vec3, error) {
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return session.Vec3{}, fmt.Errorf("bad vector %q", s)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 3 {
		return session.Vec3{}, fmt.Errorf("bad vector %q", s)
	}
	var xyz [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return session.Vec3{}, fmt.Errorf("bad vector %q: %w", s, err)
		}
		xyz[i] = f
	}
	return session.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// WriteFile replaces path with the encoded records. The content goes to a
// temporary file in the same directory first and is renamed into place, so a
// reader never sees a partial log.
func WriteFile(path string, records []session.TrialRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sior-log-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close log: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace log: %w", err)
	}
	return nil
}

// Sink writes the CSV log of a finished session. Aborted sessions are skipped:
// a log file always holds a complete session.
type Sink struct {
	path       string
	archiveDir string
	compress   bool
	logger     *slog.Logger
}

// Option configures a Sink
type Option func(*Sink)

// WithArchive also keeps a per-session copy of each written log in dir
func WithArchive(dir string, compress bool) Option {
	return func(s *Sink) {
		s.archiveDir = dir
		s.compress = compress
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// NewSink returns a sink writing to path
func NewSink(path string, opts ...Option) *Sink {
	s := &Sink{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the log file path
func (s *Sink) Path() string {
	return s.path
}

func (s *Sink) Flush(_ context.Context, sess *session.Session) error {
	if sess.Status != session.StatusFinished {
		s.logger.Info("skipping csv log for unfinished session", "session_id", sess.ID, "status", sess.Status)
		return nil
	}

	if err := WriteFile(s.path, sess.Records); err != nil {
		return err
	}
	s.logger.Info("log saved", "path", s.path, "trials", len(sess.Records))

	if s.archiveDir != "" {
		dest, err := Archive(s.path, s.archiveDir, sess.ID, s.compress)
		if err != nil {
			return fmt.Errorf("failed to archive log: %w", err)
		}
		s.logger.Info("log archived", "path", dest)
	}
	return nil
}
