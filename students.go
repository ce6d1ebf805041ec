package rapor

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/jward/rapor/internal/store"
)

// studentFields maps the updatable client field names to student columns.
var studentFields = map[string]string{
	"nis":         "no_induk",
	"noPeserta":   "no_peserta",
	"nisn":        "nisn",
	"namaPeserta": "nama_peserta",
	"ttl":         "ttl",
	"namaOrtu":    "nama_ortu",
	"noIjazah":    "no_ijazah",
}

// StudentsBySchool returns the students of one school.
func (e *Engine) StudentsBySchool(ctx context.Context, code string) ([]*Student, error) {
	if err := validateInput(schoolRef{KodeBiasa: code}); err != nil {
		return nil, err
	}
	var students []*Student
	err := e.run(ctx, "list_students", func(s *session) error {
		var err error
		students, err = store.StudentsBySchool(ctx, s.conn, code)
		return errors.Wrap(err, "list students")
	})
	if err != nil {
		return nil, err
	}
	return students, nil
}

// UpdateStudent applies the recognized fields of updates to one student.
// Unrecognized keys are ignored; an update with none recognized is refused.
func (e *Engine) UpdateStudent(ctx context.Context, nisn string, updates map[string]any) error {
	if err := validateInput(studentRef{NISN: nisn}); err != nil {
		return err
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		if _, ok := studentFields[k]; ok {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return invalidInput("no updatable field; want one of %s", strings.Join(studentFieldNames(), ", "))
	}
	sort.Strings(keys)

	cols := make([]string, len(keys))
	vals := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = studentFields[k]
		vals[i] = bindValue(updates[k])
	}
	if v, ok := updates["nisn"]; ok {
		renamed, _ := cellText(v)
		if err := validateInput(studentRef{NISN: renamed}); err != nil {
			return err
		}
		vals[sort.SearchStrings(keys, "nisn")] = renamed
	}

	return e.run(ctx, "update_student", func(s *session) error {
		n, err := store.UpdateStudentColumns(ctx, s.conn, nisn, cols, vals)
		switch {
		case store.IsUniqueViolation(err):
			return conflict("student '%v' already exists", updates["nisn"])
		case err != nil:
			return errors.Wrap(err, "update student")
		case n == 0:
			return notFound("student '%s' not found", nisn)
		}
		return nil
	})
}

func studentFieldNames() []string {
	names := make([]string, 0, len(studentFields))
	for k := range studentFields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// DeleteStudent removes one student with its grades and photo in one
// transaction. An unknown nisn is not found and changes nothing.
func (e *Engine) DeleteStudent(ctx context.Context, nisn string) error {
	if err := validateInput(studentRef{NISN: nisn}); err != nil {
		return err
	}
	return e.run(ctx, "delete_student", func(s *session) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := store.DeleteGradesByNISN(ctx, tx, nisn); err != nil {
				return errors.Wrap(err, "delete student")
			}
			if _, err := store.DeletePhoto(ctx, tx, nisn); err != nil {
				return errors.Wrap(err, "delete student")
			}
			n, err := store.DeleteStudent(ctx, tx, nisn)
			if err != nil {
				return errors.Wrap(err, "delete student")
			}
			if n == 0 {
				return notFound("student '%s' not found", nisn)
			}
			return nil
		})
	})
}
