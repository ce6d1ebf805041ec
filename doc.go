// Package rapor manages per-school student academic records (schools,
// students, grades, certificate photos and per-school settings) in SQLite.
//
// # Record sets
//
// Schools are keyed by kodeBiasa and students by nisn; a student belongs to
// exactly one school. Grades are keyed by (nisn, semester, subject, type)
// and photos by nisn. Settings are one JSON object per school, plus the
// display names of the school's custom subjects. Renaming a school code or a
// nisn follows through to dependents.
//
// # Usage
//
//	e, err := rapor.New("rapor.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	res, err := e.Import(ctx, "siswa", rows)
//	data, err := e.FetchSchool(ctx, "S1")
//
// # Bulk operations
//
//   - [Engine.Import] upserts positional rows in one transaction. Rows that
//     fail validation are skipped, rows the store rejects are reported as
//     failed, and neither aborts the batch.
//   - [Engine.DeleteAll] deletes a whole record set, refusing with
//     [ErrConflict] while dependent records exist.
//   - [Engine.Truncate] deletes a record set and its dependents.
//   - [Engine.Restore] replaces every record set with a [Snapshot] decoded
//     by [DecodeSnapshot].
//
// # Errors
//
// Client mistakes wrap [ErrInvalidInput], refused deletes and key clashes
// [ErrConflict], and missing records [ErrNotFound]. Anything else is an
// engine failure. [KindOf] classifies an error.
package rapor
