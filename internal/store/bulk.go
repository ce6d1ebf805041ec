package store

import (
	"context"
	"fmt"
)

// Count returns the number of rows in one record table.
func Count(ctx context.Context, q Querier, table string) (int64, error) {
	if !validTable(table) {
		return 0, fmt.Errorf("count: unknown table %q", table)
	}
	var n int64
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Exists reports whether a record table has at least one row.
func Exists(ctx context.Context, q Querier, table string) (bool, error) {
	if !validTable(table) {
		return false, fmt.Errorf("exists: unknown table %q", table)
	}
	var one int
	err := q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+")").Scan(&one)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", table, err)
	}
	return one == 1, nil
}

// Counts returns the row count of every record table, keyed by table name.
func Counts(ctx context.Context, q Querier) (map[string]int64, error) {
	counts := make(map[string]int64, len(AllTables))
	for _, t := range AllTables {
		n, err := Count(ctx, q, t)
		if err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, nil
}

// DeleteAll removes every row of the given tables, in the order given.
// Callers pass dependents before their parents.
func DeleteAll(ctx context.Context, q Querier, tables ...string) error {
	for _, t := range tables {
		if !validTable(t) {
			return fmt.Errorf("delete all: unknown table %q", t)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("delete all %s: %w", t, err)
		}
	}
	return nil
}
