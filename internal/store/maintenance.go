package store

import (
	"context"
	"fmt"
)

// ReclaimSequences resets the AUTOINCREMENT counters of the given tables.
// Tables without a sqlite_sequence entry are ignored.
func ReclaimSequences(ctx context.Context, q Querier, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	for _, t := range tables {
		if !validTable(t) {
			return fmt.Errorf("reclaim sequences: unknown table %q", t)
		}
	}
	_, err := q.ExecContext(ctx,
		"DELETE FROM sqlite_sequence WHERE name IN ("+placeholderList(len(tables))+")",
		stringsToArgs(tables)...)
	if err != nil {
		return fmt.Errorf("reclaim sequences: %w", err)
	}
	return nil
}

// Vacuum rebuilds the database file to release free pages. q must not be a
// transaction.
func Vacuum(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
