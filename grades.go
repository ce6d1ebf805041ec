package rapor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/jward/rapor/internal/gradecodec"
	"github.com/jward/rapor/internal/store"
)

// GradeInput is one grade write. A nil Value is stored as the empty string.
type GradeInput struct {
	NISN     string `json:"nisn" validate:"required,notreserved"`
	Semester string `json:"semester" validate:"required"`
	Subject  string `json:"subject" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Value    any    `json:"value"`
}

func (g GradeInput) record() *store.Grade {
	v := bindValue(g.Value)
	if v == nil {
		v = gradecodec.Empty
	}
	return &store.Grade{NISN: g.NISN, Semester: g.Semester, Subject: g.Subject, Type: g.Type, Value: v}
}

// SaveGrade upserts one grade. The student must exist.
func (e *Engine) SaveGrade(ctx context.Context, g GradeInput) error {
	if err := validateInput(g); err != nil {
		return err
	}
	return e.run(ctx, "save_grade", func(s *session) error {
		return gradeWriteError(store.UpsertGrade(ctx, s.conn, g.record()), g.NISN)
	})
}

// SaveGrades upserts a batch of grades in one transaction. Every grade is
// validated before anything is written; any write failure rolls the batch
// back.
func (e *Engine) SaveGrades(ctx context.Context, grades []GradeInput) (int, error) {
	for i, g := range grades {
		if err := validateInput(g); err != nil {
			return 0, invalidInput("grade %d: %v", i+1, err)
		}
	}
	err := e.run(ctx, "save_grades", func(s *session) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			for _, g := range grades {
				if err := gradeWriteError(store.UpsertGrade(ctx, tx, g.record()), g.NISN); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return len(grades), nil
}

func gradeWriteError(err error, nisn string) error {
	if store.IsForeignKeyViolation(err) {
		return conflict("student '%s' does not exist", nisn)
	}
	return errors.Wrap(err, "save grade")
}

// DeleteGradesBySemester removes one semester's grades for every student of
// a school and returns how many were removed.
func (e *Engine) DeleteGradesBySemester(ctx context.Context, code, semester string) (int64, error) {
	if err := validateInput(schoolRef{KodeBiasa: code}); err != nil {
		return 0, err
	}
	if semester == "" {
		return 0, invalidInput("semester is a required field")
	}
	var n int64
	err := e.run(ctx, "delete_semester_grades", func(s *session) error {
		var err error
		n, err = store.DeleteGradesBySemester(ctx, s.conn, code, semester)
		return errors.Wrap(err, fmt.Sprintf("delete semester %s grades", semester))
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
