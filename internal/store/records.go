package store

import (
	"context"
	"database/sql"
	"fmt"
)

// --- School operations ---

const schoolCols = `kode_biasa, kode_pro, kecamatan, npsn, nama_sekolah_lengkap, nama_sekolah_singkat`

func schoolArgs(s *School) []any {
	return []any{
		s.KodeBiasa, textArg(s.KodePro), textArg(s.Kecamatan), textArg(s.NPSN),
		textArg(s.NamaSekolahLengkap), textArg(s.NamaSekolahSingkat),
	}
}

// InsertSchool inserts a new school; an existing kodeBiasa is a uniqueness violation.
func InsertSchool(ctx context.Context, q Querier, s *School) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO schools ("+schoolCols+") VALUES (?, ?, ?, ?, ?, ?)", schoolArgs(s)...)
	if err != nil {
		return fmt.Errorf("insert school: %w", err)
	}
	return nil
}

// UpsertSchoolRow insert-or-replaces a school from raw positional cells. The
// cells are bound as given so the store decides whether the row is acceptable.
func UpsertSchoolRow(ctx context.Context, q Querier, cells []any) error {
	if len(cells) != SchoolColumns {
		return fmt.Errorf("upsert school: want %d cells, got %d", SchoolColumns, len(cells))
	}
	_, err := q.ExecContext(ctx,
		"INSERT OR REPLACE INTO schools ("+schoolCols+") VALUES (?, ?, ?, ?, ?, ?)", cells...)
	if err != nil {
		return fmt.Errorf("upsert school: %w", err)
	}
	return nil
}

// UpdateSchool rewrites the school identified by originalCode, including its
// code. Returns the number of rows changed.
func UpdateSchool(ctx context.Context, q Querier, originalCode string, s *School) (int64, error) {
	args := append(schoolArgs(s), originalCode)
	res, err := q.ExecContext(ctx,
		`UPDATE schools SET kode_biasa = ?, kode_pro = ?, kecamatan = ?, npsn = ?,
			nama_sekolah_lengkap = ?, nama_sekolah_singkat = ?
		 WHERE kode_biasa = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("update school: %w", err)
	}
	return res.RowsAffected()
}

// DeleteSchool deletes one school. Returns the number of rows removed.
func DeleteSchool(ctx context.Context, q Querier, code string) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM schools WHERE kode_biasa = ?", code)
	if err != nil {
		return 0, fmt.Errorf("delete school: %w", err)
	}
	return res.RowsAffected()
}

func scanSchool(scanner interface{ Scan(...any) error }) (*School, error) {
	s := &School{}
	var kodePro, kecamatan, npsn, lengkap, singkat sql.NullString
	if err := scanner.Scan(&s.KodeBiasa, &kodePro, &kecamatan, &npsn, &lengkap, &singkat); err != nil {
		return nil, err
	}
	s.KodePro = nullable(kodePro)
	s.Kecamatan = nullable(kecamatan)
	s.NPSN = nullable(npsn)
	s.NamaSekolahLengkap = nullable(lengkap)
	s.NamaSekolahSingkat = nullable(singkat)
	return s, nil
}

func querySchools(ctx context.Context, q Querier, query string, args ...any) ([]*School, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var schools []*School
	for rows.Next() {
		s, err := scanSchool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan school: %w", err)
		}
		schools = append(schools, s)
	}
	return schools, rows.Err()
}

// Schools returns every school ordered by code.
func Schools(ctx context.Context, q Querier) ([]*School, error) {
	return querySchools(ctx, q, "SELECT "+schoolCols+" FROM schools ORDER BY kode_biasa")
}

// SchoolByCode returns the school with the given code, or nil if absent.
func SchoolByCode(ctx context.Context, q Querier, code string) (*School, error) {
	s, err := scanSchool(q.QueryRowContext(ctx,
		"SELECT "+schoolCols+" FROM schools WHERE kode_biasa = ?", code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("school by code: %w", err)
	}
	return s, nil
}

// SchoolCodes returns the set of known school codes.
func SchoolCodes(ctx context.Context, q Querier) (map[string]struct{}, error) {
	rows, err := q.QueryContext(ctx, "SELECT kode_biasa FROM schools")
	if err != nil {
		return nil, fmt.Errorf("school codes: %w", err)
	}
	defer rows.Close()
	codes := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan school code: %w", err)
		}
		codes[code] = struct{}{}
	}
	return codes, rows.Err()
}

// --- Student operations ---

const studentCols = `kode_biasa, kode_pro, nama_sekolah, kecamatan, no_urut, no_induk,
	no_peserta, nisn, nama_peserta, ttl, nama_ortu, no_ijazah, jk`

// UpsertStudentRow insert-or-replaces a student from positional cells. cells
// holds the 12 canonical positions, optionally followed by the sex marker.
func UpsertStudentRow(ctx context.Context, q Querier, cells []any) error {
	if len(cells) < StudentColumns || len(cells) > StudentColumns+1 {
		return fmt.Errorf("upsert student: want %d or %d cells, got %d", StudentColumns, StudentColumns+1, len(cells))
	}
	args := make([]any, StudentColumns+1)
	copy(args, cells)
	_, err := q.ExecContext(ctx,
		"INSERT OR REPLACE INTO students ("+studentCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", args...)
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

// UpdateStudentColumns sets the given columns on one student. cols must be
// trusted column names. Returns the number of rows changed.
func UpdateStudentColumns(ctx context.Context, q Querier, nisn string, cols []string, vals []any) (int64, error) {
	if len(cols) == 0 || len(cols) != len(vals) {
		return 0, fmt.Errorf("update student: %d columns for %d values", len(cols), len(vals))
	}
	set := ""
	for i, c := range cols {
		if i > 0 {
			set += ", "
		}
		set += c + " = ?"
	}
	args := append(append([]any{}, vals...), nisn)
	res, err := q.ExecContext(ctx, "UPDATE students SET "+set+" WHERE nisn = ?", args...)
	if err != nil {
		return 0, fmt.Errorf("update student: %w", err)
	}
	return res.RowsAffected()
}

// DeleteStudent removes one student row. Dependents must already be gone.
func DeleteStudent(ctx context.Context, q Querier, nisn string) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM students WHERE nisn = ?", nisn)
	if err != nil {
		return 0, fmt.Errorf("delete student: %w", err)
	}
	return res.RowsAffected()
}

func scanStudent(scanner interface{ Scan(...any) error }) (*Student, error) {
	s := &Student{}
	var kodePro, namaSekolah, kecamatan, noInduk, noPeserta, nama, ttl, ortu, ijazah, jk sql.NullString
	var noUrut any
	err := scanner.Scan(
		&s.KodeBiasa, &kodePro, &namaSekolah, &kecamatan, &noUrut, &noInduk,
		&noPeserta, &s.NISN, &nama, &ttl, &ortu, &ijazah, &jk,
	)
	if err != nil {
		return nil, err
	}
	s.KodePro = nullable(kodePro)
	s.NamaSekolah = nullable(namaSekolah)
	s.Kecamatan = nullable(kecamatan)
	s.NoUrut = normalizeValue(noUrut)
	s.NoInduk = nullable(noInduk)
	s.NoPeserta = nullable(noPeserta)
	s.NamaPeserta = nullable(nama)
	s.TTL = nullable(ttl)
	s.NamaOrtu = nullable(ortu)
	s.NoIjazah = nullable(ijazah)
	s.JK = nullable(jk)
	return s, nil
}

func queryStudents(ctx context.Context, q Querier, query string, args ...any) ([]*Student, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []*Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// Students returns every student ordered by school and sequence number.
func Students(ctx context.Context, q Querier) ([]*Student, error) {
	return queryStudents(ctx, q, "SELECT "+studentCols+" FROM students ORDER BY kode_biasa, no_urut, nisn")
}

// StudentsBySchool returns the students of one school.
func StudentsBySchool(ctx context.Context, q Querier, code string) ([]*Student, error) {
	return queryStudents(ctx, q,
		"SELECT "+studentCols+" FROM students WHERE kode_biasa = ? ORDER BY no_urut, nisn", code)
}

// StudentByNISN returns one student, or nil if absent.
func StudentByNISN(ctx context.Context, q Querier, nisn string) (*Student, error) {
	s, err := scanStudent(q.QueryRowContext(ctx,
		"SELECT "+studentCols+" FROM students WHERE nisn = ?", nisn))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("student by nisn: %w", err)
	}
	return s, nil
}
