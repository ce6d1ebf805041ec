package rapor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/jward/rapor/internal/store"
)

// SchoolFromRow builds a School from its 6 positional cells:
// [kodeBiasa, kodePro, kecamatan, npsn, namaSekolahLengkap, namaSekolahSingkat].
func SchoolFromRow(cells []any) (School, error) {
	if len(cells) != store.SchoolColumns {
		return School{}, invalidInput("school row must have %d cells, got %d", store.SchoolColumns, len(cells))
	}
	code, _ := cellText(cells[0])
	return School{
		KodeBiasa:          code,
		KodePro:            textPtr(cells[1]),
		Kecamatan:          textPtr(cells[2]),
		NPSN:               textPtr(cells[3]),
		NamaSekolahLengkap: textPtr(cells[4]),
		NamaSekolahSingkat: textPtr(cells[5]),
	}, nil
}

func textPtr(v any) *string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return &x
	case json.Number:
		s := x.String()
		return &s
	default:
		s := fmt.Sprint(x)
		return &s
	}
}

// ListSchools returns every school ordered by code.
func (e *Engine) ListSchools(ctx context.Context) ([]*School, error) {
	var schools []*School
	err := e.run(ctx, "list_schools", func(s *session) error {
		var err error
		schools, err = store.Schools(ctx, s.conn)
		return errors.Wrap(err, "list schools")
	})
	if err != nil {
		return nil, err
	}
	return schools, nil
}

// AddSchool inserts a new school. An existing code is a conflict.
func (e *Engine) AddSchool(ctx context.Context, sc School) error {
	if err := validateInput(schoolRef{KodeBiasa: sc.KodeBiasa}); err != nil {
		return err
	}
	return e.run(ctx, "add_school", func(s *session) error {
		err := store.InsertSchool(ctx, s.conn, &sc)
		if store.IsUniqueViolation(err) {
			return conflict("school '%s' already exists", sc.KodeBiasa)
		}
		return errors.Wrap(err, "add school")
	})
}

// UpdateSchool rewrites the school identified by originalCode. Changing the
// code carries its students, settings and custom subject names along in the
// same transaction.
func (e *Engine) UpdateSchool(ctx context.Context, originalCode string, sc School) error {
	if err := validateInput(schoolRef{KodeBiasa: originalCode}); err != nil {
		return err
	}
	if err := validateInput(schoolRef{KodeBiasa: sc.KodeBiasa}); err != nil {
		return err
	}
	return e.run(ctx, "update_school", func(s *session) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			n, err := store.UpdateSchool(ctx, tx, originalCode, &sc)
			switch {
			case store.IsUniqueViolation(err):
				return conflict("school '%s' already exists", sc.KodeBiasa)
			case err != nil:
				return errors.Wrap(err, "update school")
			case n == 0:
				return notFound("school '%s' not found", originalCode)
			}
			if sc.KodeBiasa == originalCode {
				return nil
			}
			return errors.Wrap(store.RenameSchoolSettings(ctx, tx, originalCode, sc.KodeBiasa), "update school")
		})
	})
}

// DeleteSchool removes one school. It is refused while students reference it.
func (e *Engine) DeleteSchool(ctx context.Context, code string) error {
	if err := validateInput(schoolRef{KodeBiasa: code}); err != nil {
		return err
	}
	return e.run(ctx, "delete_school", func(s *session) error {
		n, err := store.DeleteSchool(ctx, s.conn, code)
		switch {
		case store.IsForeignKeyViolation(err):
			return conflict("school '%s' still has students; delete them first", code)
		case err != nil:
			return errors.Wrap(err, "delete school")
		case n == 0:
			return notFound("school '%s' not found", code)
		}
		return nil
	})
}
