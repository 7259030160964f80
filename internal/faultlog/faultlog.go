// internal/faultlog/faultlog.go
package faultlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Stani56/Stanis-Clock-sub003/internal/report"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"

	_ "modernc.org/sqlite"
)

// Capacity is the number of entries kept; older entries are pruned.
const Capacity = 50

// Entry is one logged validation failure.
type Entry struct {
	Seq          int64
	PassID       uuid.UUID
	At           time.Time
	Trigger      string
	Kind         validation.Kind
	Mismatches   int
	ReadFailures int
	FaultyChips  int
	AffectedRows uint16 // bit i set when row i was involved
	Recovery     string
	Message      string
}

// Log is the persisted failure log.
type Log struct {
	db       *sql.DB
	capacity int
}

var _ report.Reporter = (*Log)(nil)

// Open opens or creates the log database at path.
func Open(ctx context.Context, path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("faultlog: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("faultlog: open sqlite: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pool connections
	db.SetMaxOpenConns(1)

	l := &Log{db: db, capacity: Capacity}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS fault_log (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id       TEXT NOT NULL,
		at            TEXT NOT NULL,
		trigger_name  TEXT NOT NULL,
		kind          TEXT NOT NULL,
		mismatches    INTEGER NOT NULL,
		read_failures INTEGER NOT NULL,
		faulty_chips  INTEGER NOT NULL,
		affected_rows INTEGER NOT NULL,
		recovery      TEXT NOT NULL,
		message       TEXT NOT NULL DEFAULT ''
	);`
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("faultlog: migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (l *Log) Close() error { return l.db.Close() }

// Append stores e and prunes everything beyond the newest Capacity entries.
func (l *Log) Append(ctx context.Context, e Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("faultlog: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fault_log (
			pass_id, at, trigger_name, kind, mismatches, read_failures,
			faulty_chips, affected_rows, recovery, message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PassID.String(),
		e.At.UTC().Format(time.RFC3339Nano),
		e.Trigger,
		e.Kind.String(),
		e.Mismatches,
		e.ReadFailures,
		e.FaultyChips,
		int64(e.AffectedRows),
		e.Recovery,
		e.Message,
	)
	if err != nil {
		return fmt.Errorf("faultlog: insert: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM fault_log
		WHERE seq NOT IN (SELECT seq FROM fault_log ORDER BY seq DESC LIMIT ?)`,
		l.capacity,
	)
	if err != nil {
		return fmt.Errorf("faultlog: prune: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("faultlog: commit: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, pass_id, at, trigger_name, kind, mismatches, read_failures,
		       faulty_chips, affected_rows, recovery, message
		FROM fault_log
		ORDER BY seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("faultlog: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("faultlog: rows: %w", err)
	}
	return out, nil
}

// Count returns the number of stored entries.
func (l *Log) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fault_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("faultlog: count: %w", err)
	}
	return n, nil
}

// Clear removes every entry.
func (l *Log) Clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM fault_log`); err != nil {
		return fmt.Errorf("faultlog: clear: %w", err)
	}
	return nil
}

// Report logs every failed pass. Successful and skipped passes are not
// failures and are ignored.
func (l *Log) Report(ctx context.Context, p report.Pass) error {
	if !p.Failed() || p.Result.Skipped {
		return nil
	}
	return l.Append(ctx, EntryFor(p))
}

// EntryFor builds the log entry for a failed pass.
func EntryFor(p report.Pass) Entry {
	r := p.Result
	msg := fmt.Sprintf("%s: %d mismatches, %d read failures, %d faulty chips",
		p.Kind, r.HardwareMismatches(), r.ReadFailures, r.FaultyChips)
	if r.Hardware.Truncated() {
		msg += fmt.Sprintf(" (%d itemized)", r.Hardware.Itemized())
	}
	return Entry{
		PassID:       p.ID,
		At:           r.At,
		Trigger:      p.Trigger.String(),
		Kind:         p.Kind,
		Mismatches:   r.HardwareMismatches(),
		ReadFailures: r.ReadFailures,
		FaultyChips:  r.FaultyChips,
		AffectedRows: r.AffectedRows(),
		Recovery:     p.Recovery.String(),
		Message:      msg,
	}
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e      Entry
		passID string
		at     string
		kind   string
		rowsBM int64
	)
	if err := rows.Scan(
		&e.Seq, &passID, &at, &e.Trigger, &kind, &e.Mismatches, &e.ReadFailures,
		&e.FaultyChips, &rowsBM, &e.Recovery, &e.Message,
	); err != nil {
		return Entry{}, fmt.Errorf("faultlog: scan: %w", err)
	}

	var err error
	if e.PassID, err = uuid.Parse(passID); err != nil {
		return Entry{}, fmt.Errorf("faultlog: entry %d: pass id: %w", e.Seq, err)
	}
	if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return Entry{}, fmt.Errorf("faultlog: entry %d: time: %w", e.Seq, err)
	}
	if e.Kind, err = validation.ParseKind(kind); err != nil {
		return Entry{}, errors.Join(fmt.Errorf("faultlog: entry %d", e.Seq), err)
	}
	e.AffectedRows = uint16(rowsBM)
	return e, nil
}
