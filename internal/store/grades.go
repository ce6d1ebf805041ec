package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schoolStudents restricts a nisn column to the students of one school.
const schoolStudents = "nisn IN (SELECT nisn FROM students WHERE kode_biasa = ?)"

// --- Grade operations ---

// UpsertGrade insert-or-replaces one grade by its (nisn, semester, subject, type) key.
func UpsertGrade(ctx context.Context, q Querier, g *Grade) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR REPLACE INTO grades (nisn, semester, subject, type, value) VALUES (?, ?, ?, ?, ?)",
		g.NISN, g.Semester, g.Subject, g.Type, g.Value,
	)
	if err != nil {
		return fmt.Errorf("upsert grade %s/%s/%s/%s: %w", g.NISN, g.Semester, g.Subject, g.Type, err)
	}
	return nil
}

func queryGrades(ctx context.Context, q Querier, query string, args ...any) ([]*Grade, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grades []*Grade
	for rows.Next() {
		g := &Grade{}
		var value any
		if err := rows.Scan(&g.NISN, &g.Semester, &g.Subject, &g.Type, &value); err != nil {
			return nil, fmt.Errorf("scan grade: %w", err)
		}
		g.Value = normalizeValue(value)
		grades = append(grades, g)
	}
	return grades, rows.Err()
}

// Grades returns every grade row.
func Grades(ctx context.Context, q Querier) ([]*Grade, error) {
	return queryGrades(ctx, q, "SELECT nisn, semester, subject, type, value FROM grades ORDER BY id")
}

// GradesBySchool returns the grades of one school's students.
func GradesBySchool(ctx context.Context, q Querier, code string) ([]*Grade, error) {
	return queryGrades(ctx, q,
		"SELECT nisn, semester, subject, type, value FROM grades WHERE "+schoolStudents+" ORDER BY id", code)
}

// DeleteGradesByNISN removes every grade of one student.
func DeleteGradesByNISN(ctx context.Context, q Querier, nisn string) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM grades WHERE nisn = ?", nisn)
	if err != nil {
		return 0, fmt.Errorf("delete grades: %w", err)
	}
	return res.RowsAffected()
}

// DeleteGradesBySemester removes one semester's grades for a school's students.
func DeleteGradesBySemester(ctx context.Context, q Querier, code, semester string) (int64, error) {
	res, err := q.ExecContext(ctx,
		"DELETE FROM grades WHERE semester = ? AND "+schoolStudents, semester, code)
	if err != nil {
		return 0, fmt.Errorf("delete semester grades: %w", err)
	}
	return res.RowsAffected()
}

// --- Photo operations ---

// UpsertPhoto insert-or-replaces the certificate photo of one student.
func UpsertPhoto(ctx context.Context, q Querier, p *Photo) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR REPLACE INTO photos (nisn, photo_data) VALUES (?, ?)", p.NISN, p.Data)
	if err != nil {
		return fmt.Errorf("upsert photo %s: %w", p.NISN, err)
	}
	return nil
}

// DeletePhoto removes one student's photo. Returns the number of rows removed.
func DeletePhoto(ctx context.Context, q Querier, nisn string) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM photos WHERE nisn = ?", nisn)
	if err != nil {
		return 0, fmt.Errorf("delete photo: %w", err)
	}
	return res.RowsAffected()
}

func queryPhotos(ctx context.Context, q Querier, query string, args ...any) ([]*Photo, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var photos []*Photo
	for rows.Next() {
		p := &Photo{}
		var data sql.NullString
		if err := rows.Scan(&p.NISN, &data); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		p.Data = data.String
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// Photos returns every stored photo.
func Photos(ctx context.Context, q Querier) ([]*Photo, error) {
	return queryPhotos(ctx, q, "SELECT nisn, photo_data FROM photos")
}

// PhotosBySchool returns the photos of one school's students.
func PhotosBySchool(ctx context.Context, q Querier, code string) ([]*Photo, error) {
	return queryPhotos(ctx, q, "SELECT nisn, photo_data FROM photos WHERE "+schoolStudents, code)
}

// --- Setting operations ---

// SettingsJSON returns the stored settings blob for a school and whether one exists.
func SettingsJSON(ctx context.Context, q Querier, code string) (string, bool, error) {
	var blob sql.NullString
	err := q.QueryRowContext(ctx, "SELECT settings_json FROM settings WHERE kode_biasa = ?", code).Scan(&blob)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings by code: %w", err)
	}
	return blob.String, true, nil
}

// UpsertSettings replaces the settings blob of one school.
func UpsertSettings(ctx context.Context, q Querier, code, blob string) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR REPLACE INTO settings (kode_biasa, settings_json) VALUES (?, ?)", code, blob)
	if err != nil {
		return fmt.Errorf("upsert settings %s: %w", code, err)
	}
	return nil
}

// RenameSchoolSettings moves the settings blob and custom subject names of
// one school to a new code. Rows already stored under the new code are
// replaced.
func RenameSchoolSettings(ctx context.Context, q Querier, from, to string) error {
	for _, query := range []string{
		"UPDATE OR REPLACE settings SET kode_biasa = ? WHERE kode_biasa = ?",
		"UPDATE OR REPLACE mulok_names SET kode_biasa = ? WHERE kode_biasa = ?",
	} {
		if _, err := q.ExecContext(ctx, query, to, from); err != nil {
			return fmt.Errorf("rename settings %s: %w", from, err)
		}
	}
	return nil
}

func querySettings(ctx context.Context, q Querier, query string, args ...any) ([]*Setting, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var settings []*Setting
	for rows.Next() {
		s := &Setting{}
		var blob sql.NullString
		if err := rows.Scan(&s.KodeBiasa, &blob); err != nil {
			return nil, fmt.Errorf("scan settings: %w", err)
		}
		s.JSON = blob.String
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// Settings returns every settings blob.
func Settings(ctx context.Context, q Querier) ([]*Setting, error) {
	return querySettings(ctx, q, "SELECT kode_biasa, settings_json FROM settings")
}

// SettingsBySchool returns the settings blob of one school as a 0- or 1-element slice.
func SettingsBySchool(ctx context.Context, q Querier, code string) ([]*Setting, error) {
	return querySettings(ctx, q, "SELECT kode_biasa, settings_json FROM settings WHERE kode_biasa = ?", code)
}

// --- Mulok name operations ---

// UpsertMulokName stores the display name of one custom subject for a school.
func UpsertMulokName(ctx context.Context, q Querier, m *MulokName) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR REPLACE INTO mulok_names (kode_biasa, mulok_key, mulok_name) VALUES (?, ?, ?)",
		m.KodeBiasa, m.Key, m.Name)
	if err != nil {
		return fmt.Errorf("upsert mulok name %s/%s: %w", m.KodeBiasa, m.Key, err)
	}
	return nil
}

func queryMulokNames(ctx context.Context, q Querier, query string, args ...any) ([]*MulokName, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []*MulokName
	for rows.Next() {
		m := &MulokName{}
		var name sql.NullString
		if err := rows.Scan(&m.KodeBiasa, &m.Key, &name); err != nil {
			return nil, fmt.Errorf("scan mulok name: %w", err)
		}
		m.Name = name.String
		names = append(names, m)
	}
	return names, rows.Err()
}

// MulokNames returns every custom subject display name.
func MulokNames(ctx context.Context, q Querier) ([]*MulokName, error) {
	return queryMulokNames(ctx, q, "SELECT kode_biasa, mulok_key, mulok_name FROM mulok_names")
}

// MulokNamesBySchool returns the custom subject display names of one school.
func MulokNamesBySchool(ctx context.Context, q Querier, code string) ([]*MulokName, error) {
	return queryMulokNames(ctx, q,
		"SELECT kode_biasa, mulok_key, mulok_name FROM mulok_names WHERE kode_biasa = ?", code)
}
