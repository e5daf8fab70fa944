package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// ReadFacts returns up to count facts starting at start, ordered by event.
// Returns an empty slice (not nil) past the end of the log.
func (s *Store) ReadFacts(ctx context.Context, start, count uint64) ([]ir.Fact, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT eve, mug, job
		FROM facts
		WHERE eve >= ? AND eve < ?
		ORDER BY eve ASC
	`, start, start+count)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	facts := make([]ir.Fact, 0, count)
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}

	return facts, nil
}

func scanFact(rows *sql.Rows) (ir.Fact, error) {
	var (
		f   ir.Fact
		mug int64
		job string
	)
	if err := rows.Scan(&f.Eve, &mug, &job); err != nil {
		return f, fmt.Errorf("scan fact: %w", err)
	}
	if err := ir.DecodeJob([]byte(job), &f); err != nil {
		return f, fmt.Errorf("fact %d: %w", f.Eve, err)
	}
	f.Mug = uint32(mug)
	return f, nil
}

// LastEvent returns the highest stored event, 0 for an empty log.
func (s *Store) LastEvent(ctx context.Context) (uint64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}

	var last uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(eve), 0) FROM facts`).Scan(&last); err != nil {
		return 0, fmt.Errorf("last event: %w", err)
	}
	return last, nil
}

// LoadMeta returns the pier's identity. ok is false if none was saved.
func (s *Store) LoadMeta(ctx context.Context) (m pier.Meta, ok bool, err error) {
	if s.db == nil {
		return m, false, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return m, false, fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return m, false, fmt.Errorf("load meta: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return m, false, fmt.Errorf("load meta: %w", err)
	}

	if v := values["log_version"]; v != "" && v != LogVersion {
		return m, false, fmt.Errorf("load meta: unsupported log version %q", v)
	}

	who, found := values["who"]
	if !found {
		return m, false, nil
	}
	m.Who = who
	if m.Fake, err = strconv.ParseBool(values["fake"]); err != nil {
		return m, false, fmt.Errorf("load meta: fake: %w", err)
	}
	if m.Lifecycle, err = strconv.ParseUint(values["lifecycle"], 10, 64); err != nil {
		return m, false, fmt.Errorf("load meta: lifecycle: %w", err)
	}
	return m, true, nil
}
