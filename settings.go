package rapor

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jward/rapor/internal/gradecodec"
	"github.com/jward/rapor/internal/store"
)

// SaveSettings shallow-merges settings into the school's stored settings and
// upserts the given custom subject display names, in one transaction. A nil
// settings map leaves the stored settings untouched.
func (e *Engine) SaveSettings(ctx context.Context, code string, settings map[string]any, mulokNames map[string]string) error {
	if err := validateInput(schoolRef{KodeBiasa: code}); err != nil {
		return err
	}
	return e.run(ctx, "save_settings", func(s *session) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if settings != nil {
				existing, _, err := store.SettingsJSON(ctx, tx, code)
				if err != nil {
					return errors.Wrap(err, "save settings")
				}
				merged, err := gradecodec.MergeSettings(existing, settings)
				if err != nil {
					return errors.Wrap(err, "save settings")
				}
				if err := store.UpsertSettings(ctx, tx, code, merged); err != nil {
					return errors.Wrap(err, "save settings")
				}
			}
			for _, key := range sortedCodes(mulokNames) {
				m := &store.MulokName{KodeBiasa: code, Key: key, Name: mulokNames[key]}
				if err := store.UpsertMulokName(ctx, tx, m); err != nil {
					return errors.Wrap(err, "save display names")
				}
			}
			return nil
		})
	})
}

// SavePhoto upserts the certificate photo of one student.
func (e *Engine) SavePhoto(ctx context.Context, nisn, data string) error {
	if err := validateInput(studentRef{NISN: nisn}); err != nil {
		return err
	}
	return e.run(ctx, "save_photo", func(s *session) error {
		err := store.UpsertPhoto(ctx, s.conn, &store.Photo{NISN: nisn, Data: data})
		if store.IsForeignKeyViolation(err) {
			return conflict("student '%s' does not exist", nisn)
		}
		return errors.Wrap(err, "save photo")
	})
}

// DeletePhoto removes the photo of one student. A missing photo is not an
// error.
func (e *Engine) DeletePhoto(ctx context.Context, nisn string) error {
	if err := validateInput(studentRef{NISN: nisn}); err != nil {
		return err
	}
	return e.run(ctx, "delete_photo", func(s *session) error {
		_, err := store.DeletePhoto(ctx, s.conn, nisn)
		return errors.Wrap(err, "delete photo")
	})
}
