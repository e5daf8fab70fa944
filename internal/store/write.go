package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// AppendFacts commits facts in one transaction. The first fact must
// follow the last stored event and the rest must be consecutive.
func (s *Store) AppendFacts(ctx context.Context, facts []ir.Fact) error {
	if s.db == nil {
		return ErrClosed
	}
	if len(facts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append facts: %w", err)
	}
	defer tx.Rollback()

	var last uint64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(eve), 0) FROM facts`).Scan(&last); err != nil {
		return fmt.Errorf("append facts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO facts (eve, mug, job) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("append facts: %w", err)
	}
	defer stmt.Close()

	for _, f := range facts {
		if f.Eve != last+1 {
			return fmt.Errorf("append fact %d after %d: %w", f.Eve, last, ErrNotContiguous)
		}
		job, err := ir.EncodeJob(f)
		if err != nil {
			return fmt.Errorf("append fact %d: %w", f.Eve, err)
		}
		if _, err := stmt.ExecContext(ctx, f.Eve, f.Mug, string(job)); err != nil {
			return fmt.Errorf("append fact %d: %w", f.Eve, err)
		}
		last = f.Eve
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append facts: commit: %w", err)
	}
	return nil
}

// SaveMeta records the pier's identity, replacing any previous one.
func (s *Store) SaveMeta(ctx context.Context, m pier.Meta) error {
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	defer tx.Rollback()

	rows := map[string]string{
		"who":       m.Who,
		"fake":      strconv.FormatBool(m.Fake),
		"lifecycle": strconv.FormatUint(m.Lifecycle, 10),
	}
	for k, v := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, v)
		if err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save meta: commit: %w", err)
	}
	return nil
}
