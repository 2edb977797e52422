package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed audit sink.
type Store struct {
	db       *sql.DB
	prevHash string
	mu       sync.Mutex
	now      func() time.Time
}

// DefaultPath returns the default audit database path.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pynchy-audit.db")
	}
	return filepath.Join(home, ".pynchy", "audit.db")
}

// Open opens (or creates) the audit database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("audit: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open db: %w", err)
	}
	// one connection per process; BEGIN IMMEDIATE serializes processes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: wal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: busy timeout: %w", err)
	}

	s := &Store{db: db, prevHash: GenesisHash, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_records (
			seq              INTEGER PRIMARY KEY AUTOINCREMENT,
			id               TEXT NOT NULL UNIQUE,
			ts               TEXT NOT NULL,
			workspace_id     TEXT NOT NULL DEFAULT '',
			session_id       TEXT NOT NULL DEFAULT '',
			capability       TEXT NOT NULL DEFAULT '',
			operation        TEXT NOT NULL DEFAULT '',
			kind             TEXT NOT NULL,
			decision         TEXT NOT NULL DEFAULT '',
			reason           TEXT NOT NULL DEFAULT '',
			approval_code    TEXT NOT NULL DEFAULT '',
			reviewer_flagged INTEGER,
			reviewer_reason  TEXT NOT NULL DEFAULT '',
			config_hash      TEXT NOT NULL DEFAULT '',
			prev_hash        TEXT NOT NULL,
			hash             TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_workspace_ts ON audit_records(workspace_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_capability_ts ON audit_records(capability, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate %q: %w", strings.TrimSpace(stmt)[:40], err)
		}
	}
	return nil
}

// Record appends r. ID and Timestamp are filled in when empty; PrevHash and
// Hash are always set by the store. The chain tail is read inside the
// insert transaction so several processes can share one database file.
func (s *Store) Record(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp == "" {
		r.Timestamp = s.now().UTC().Format(TimestampFormat)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("audit: acquire connection: %w", err)
	}
	defer conn.Close()

	// IMMEDIATE takes the write lock before the tail is read.
	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return fmt.Errorf("audit: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), `ROLLBACK`)
		}
	}()

	// an emptied table continues from the last hash this store wrote
	prev := s.prevHash
	err = conn.QueryRowContext(ctx, `SELECT hash FROM audit_records ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("audit: read chain tail: %w", err)
	}
	r.PrevHash = prev

	hash, err := ComputeHash(r)
	if err != nil {
		return err
	}
	r.Hash = hash

	var flagged any
	if r.ReviewerFlagged != nil {
		flagged = *r.ReviewerFlagged
	}

	_, err = conn.ExecContext(ctx,
		`INSERT INTO audit_records(id, ts, workspace_id, session_id, capability, operation, kind, decision,
			reason, approval_code, reviewer_flagged, reviewer_reason, config_hash, prev_hash, hash)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp, r.WorkspaceID, r.SessionID, r.Capability, r.Operation, r.Kind, r.Decision,
		r.Reason, r.ApprovalCode, flagged, r.ReviewerReason, r.ConfigHash, r.PrevHash, r.Hash,
	)
	if err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return fmt.Errorf("audit: commit: %w", err)
	}
	committed = true

	s.prevHash = hash
	return nil
}

// Filter selects records. Zero values mean no constraint.
type Filter struct {
	WorkspaceID string
	SessionID   string
	Capability  string
	Kind        string
	From        time.Time
	To          time.Time
	Limit       int
}

func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.WorkspaceID != "" {
		add("workspace_id = ?", f.WorkspaceID)
	}
	if f.SessionID != "" {
		add("session_id = ?", f.SessionID)
	}
	if f.Capability != "" {
		add("capability = ?", f.Capability)
	}
	if f.Kind != "" {
		add("kind = ?", f.Kind)
	}
	if !f.From.IsZero() {
		add("ts >= ?", f.From.UTC().Format(TimestampFormat))
	}
	if !f.To.IsZero() {
		add("ts <= ?", f.To.UTC().Format(TimestampFormat))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const selectColumns = `SELECT seq, id, ts, workspace_id, session_id, capability, operation, kind, decision,
	reason, approval_code, reviewer_flagged, reviewer_reason, config_hash, prev_hash, hash FROM audit_records`

// Query returns matching records oldest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Record, error) {
	where, args := f.where()
	q := selectColumns + where + " ORDER BY seq"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	return out, nil
}

// Prune deletes audit records older than olderThan and returns how many
// were removed. Nothing outside audit_records is touched.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_records WHERE ts < ?`, olderThan.UTC().Format(TimestampFormat))
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r       Record
		flagged sql.NullBool
	)
	err := row.Scan(&r.Seq, &r.ID, &r.Timestamp, &r.WorkspaceID, &r.SessionID, &r.Capability,
		&r.Operation, &r.Kind, &r.Decision, &r.Reason, &r.ApprovalCode, &flagged,
		&r.ReviewerReason, &r.ConfigHash, &r.PrevHash, &r.Hash)
	if err != nil {
		return Record{}, fmt.Errorf("audit: scan record: %w", err)
	}
	if flagged.Valid {
		v := flagged.Bool
		r.ReviewerFlagged = &v
	}
	return r, nil
}
