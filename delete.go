package rapor

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jward/rapor/internal/store"
)

// Guarded delete-all and cascade truncate of the school and student record
// sets. Both reclaim sequences and space after commit when enabled.

type bulkDelete struct {
	// guard lists tables that must be empty before a guarded delete.
	guard []string
	// refusal is the remediation message returned when the guard trips.
	refusal string
	// deleted is the success message of the guarded delete.
	deleted string

	// cascade lists the truncate's tables, dependents first.
	cascade   []string
	truncated string
}

var bulkDeletes = map[Target]bulkDelete{
	TargetSchools: {
		guard:     []string{store.TableStudents},
		refusal:   "cannot delete all schools while student records exist; delete all students first",
		deleted:   "all schools deleted",
		cascade:   []string{store.TableGrades, store.TablePhotos, store.TableStudents, store.TableSchools},
		truncated: "all schools deleted together with their students, grades and photos",
	},
	TargetStudents: {
		guard:     []string{store.TableGrades, store.TablePhotos},
		refusal:   "cannot delete all students while grade or photo records exist; clear grades and photos first",
		deleted:   "all students deleted; schools kept",
		cascade:   []string{store.TableGrades, store.TablePhotos, store.TableStudents},
		truncated: "all students deleted together with their grades and photos; schools kept",
	},
}

func targetTable(t Target) string {
	if t == TargetSchools {
		return store.TableSchools
	}
	return store.TableStudents
}

// DeleteAll removes every record of the target set, refusing with a conflict
// while dependent records exist. On refusal nothing is changed.
func (e *Engine) DeleteAll(ctx context.Context, target string) (string, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return "", err
	}
	bd := bulkDeletes[t]
	table := targetTable(t)

	err = e.run(ctx, "delete_all", func(s *session) error {
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			for _, dep := range bd.guard {
				has, err := store.Exists(ctx, tx, dep)
				if err != nil {
					return errors.Wrap(err, "delete all: check dependents")
				}
				if has {
					return conflict("%s", bd.refusal)
				}
			}
			return errors.Wrap(store.DeleteAll(ctx, tx, table), "delete all")
		})
		if err != nil {
			return err
		}
		e.maintain(ctx, s, table)
		return nil
	})
	if err != nil {
		return "", err
	}
	return bd.deleted, nil
}

// Truncate removes every record of the target set and its dependents without
// checking first.
func (e *Engine) Truncate(ctx context.Context, target string) (string, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return "", err
	}
	bd := bulkDeletes[t]

	err = e.run(ctx, "truncate", func(s *session) error {
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			return errors.Wrap(store.DeleteAll(ctx, tx, bd.cascade...), "truncate")
		})
		if err != nil {
			return err
		}
		e.maintain(ctx, s, bd.cascade...)
		return nil
	})
	if err != nil {
		return "", err
	}
	return bd.truncated, nil
}
