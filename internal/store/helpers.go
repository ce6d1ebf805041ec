package store

import (
	"context"
	"database/sql"
	"strings"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx, so every record
// helper can run either standalone or inside a caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Conn)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// stringsToArgs converts []string to []any for use with database/sql.
func stringsToArgs(vals []string) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

// nullable converts a scanned sql.NullString into *string.
func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// textArg binds a *string as TEXT or NULL.
func textArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// normalizeValue maps driver-level scan results onto JSON-friendly scalars.
// TEXT may come back as []byte depending on the driver.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// IsForeignKeyViolation reports whether err is a SQLite foreign key failure.
// Both supported drivers surface SQLite's own message text.
func IsForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// IsUniqueViolation reports whether err is a SQLite uniqueness failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

// validTable guards the table names interpolated into bulk statements.
func validTable(name string) bool {
	switch name {
	case TableSchools, TableStudents, TableGrades, TablePhotos, TableSettings, TableMulokNames:
		return true
	}
	return false
}
