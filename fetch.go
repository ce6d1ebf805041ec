package rapor

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jward/rapor/internal/gradecodec"
	"github.com/jward/rapor/internal/store"
)

// FullData is the client view of the stored records.
type FullData struct {
	Schools  []*School                 `json:"sekolah"`
	Students []*Student                `json:"siswa"`
	Grades   *gradecodec.Map           `json:"nilai"`
	Settings map[string]map[string]any `json:"settings"`
	Photos   map[string]string         `json:"sklPhotos"`
}

// FetchAll returns every record, with grades decoded into the nested map.
func (e *Engine) FetchAll(ctx context.Context) (*FullData, error) {
	var data *FullData
	err := e.run(ctx, "fetch_all", func(s *session) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			var err error
			data, err = collect(ctx, tx, fetchAllQueries)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// FetchSchool returns the same view scoped to one school: the school, its
// students and their grades and photos, and the school's settings and
// display names. An unknown code yields an empty view.
func (e *Engine) FetchSchool(ctx context.Context, code string) (*FullData, error) {
	if err := validateInput(schoolRef{KodeBiasa: code}); err != nil {
		return nil, err
	}
	var data *FullData
	err := e.run(ctx, "fetch_school", func(s *session) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			var err error
			data, err = collect(ctx, tx, schoolQueries(code))
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// fetchQueries selects the rows of each record set for one view.
type fetchQueries struct {
	schools  func(context.Context, store.Querier) ([]*store.School, error)
	students func(context.Context, store.Querier) ([]*store.Student, error)
	grades   func(context.Context, store.Querier) ([]*store.Grade, error)
	muloks   func(context.Context, store.Querier) ([]*store.MulokName, error)
	settings func(context.Context, store.Querier) ([]*store.Setting, error)
	photos   func(context.Context, store.Querier) ([]*store.Photo, error)
}

var fetchAllQueries = fetchQueries{
	schools:  store.Schools,
	students: store.Students,
	grades:   store.Grades,
	muloks:   store.MulokNames,
	settings: store.Settings,
	photos:   store.Photos,
}

func schoolQueries(code string) fetchQueries {
	return fetchQueries{
		schools: func(ctx context.Context, q store.Querier) ([]*store.School, error) {
			s, err := store.SchoolByCode(ctx, q, code)
			if err != nil || s == nil {
				return nil, err
			}
			return []*store.School{s}, nil
		},
		students: func(ctx context.Context, q store.Querier) ([]*store.Student, error) {
			return store.StudentsBySchool(ctx, q, code)
		},
		grades: func(ctx context.Context, q store.Querier) ([]*store.Grade, error) {
			return store.GradesBySchool(ctx, q, code)
		},
		muloks: func(ctx context.Context, q store.Querier) ([]*store.MulokName, error) {
			return store.MulokNamesBySchool(ctx, q, code)
		},
		settings: func(ctx context.Context, q store.Querier) ([]*store.Setting, error) {
			return store.SettingsBySchool(ctx, q, code)
		},
		photos: func(ctx context.Context, q store.Querier) ([]*store.Photo, error) {
			return store.PhotosBySchool(ctx, q, code)
		},
	}
}

func collect(ctx context.Context, q store.Querier, fq fetchQueries) (*FullData, error) {
	schools, err := fq.schools(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "fetch schools")
	}
	students, err := fq.students(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "fetch students")
	}
	grades, err := fq.grades(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "fetch grades")
	}
	muloks, err := fq.muloks(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "fetch display names")
	}
	settings, err := fq.settings(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "fetch settings")
	}
	photos, err := fq.photos(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "fetch photos")
	}

	data := &FullData{
		Schools:  append([]*School{}, schools...),
		Students: append([]*Student{}, students...),
		Settings: make(map[string]map[string]any, len(settings)),
		Photos:   make(map[string]string, len(photos)),
	}

	rows := make([]gradecodec.Row, len(grades))
	for i, g := range grades {
		rows[i] = gradecodec.Row{NISN: g.NISN, Semester: g.Semester, Subject: g.Subject, Type: g.Type, Value: g.Value}
	}
	names := make([]gradecodec.MulokRow, len(muloks))
	for i, m := range muloks {
		names[i] = gradecodec.MulokRow{KodeBiasa: m.KodeBiasa, Key: m.Key, Name: m.Name}
	}
	data.Grades = gradecodec.Decode(rows, names)

	for _, st := range settings {
		obj, err := gradecodec.DecodeSettings(st.JSON)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch settings of %s", st.KodeBiasa)
		}
		data.Settings[st.KodeBiasa] = obj
	}
	for _, p := range photos {
		data.Photos[p.NISN] = p.Data
	}
	return data, nil
}
