package rapor

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/jward/rapor/internal/gradecodec"
	"github.com/jward/rapor/internal/store"
)

// Snapshot is a restore payload resolved into one shape per record set.
type Snapshot struct {
	Schools  [][]any
	Students [][]any
	Grades   GradeSource
	Photos   PhotoSource
	// Settings maps school code to its settings object. nil means absent.
	Settings map[string]map[string]any
}

// GradeShape tags which grade input a snapshot carried.
type GradeShape int

const (
	GradesAbsent GradeShape = iota
	// GradesFlat rows are [nisn, semester, subject, ki3, ki4, rt].
	GradesFlat
	// GradesNested is the nisn → semester → subject → type object.
	GradesNested
)

// GradeSource is the grade set of a snapshot in whichever shape it arrived.
type GradeSource struct {
	Shape  GradeShape
	Rows   [][]any
	Nested *gradecodec.Map
}

// PhotoShape tags which photo input a snapshot carried.
type PhotoShape int

const (
	PhotosAbsent PhotoShape = iota
	// PhotosRows are [nisn, data] pairs.
	PhotosRows
	// PhotosByNISN is an object keyed by nisn.
	PhotosByNISN
)

// PhotoSource is the photo set of a snapshot in whichever shape it arrived.
type PhotoSource struct {
	Shape  PhotoShape
	Rows   [][]any
	ByNISN map[string]string
}

// rawSnapshot mirrors the accepted payload keys before shape resolution.
type rawSnapshot struct {
	Sekolah       json.RawMessage `json:"sekolah"`
	Siswa         json.RawMessage `json:"siswa"`
	NilaiRows     json.RawMessage `json:"nilaiRows"`
	Nilai         json.RawMessage `json:"nilai"`
	SklPhotosRows json.RawMessage `json:"sklPhotosRows"`
	SklPhotos     json.RawMessage `json:"sklPhotos"`
	Settings      json.RawMessage `json:"settings"`
}

// DecodeSnapshot reads a restore payload, wrapped under "data" or not, and
// resolves every record set to exactly one input shape. Shape errors are
// client errors, and so is a nisn equal to the reserved display-name key in
// siswa, nilaiRows, sklPhotosRows or sklPhotos. Every settings value must be
// an object or null; a scalar or array value rejects the whole payload.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var top map[string]json.RawMessage
	if err := decodeJSON(r, &top); err != nil || top == nil {
		return nil, invalidInput("restore payload must be a JSON object")
	}
	body := top
	if data, ok := top["data"]; ok && jsonKind(data) == '{' {
		if err := decodeJSON(bytes.NewReader(data), &body); err != nil {
			return nil, invalidInput("restore payload: data: %v", err)
		}
	}
	// Re-marshal the selected level so the typed mirror can pick its keys.
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "restore payload")
	}
	var raw rawSnapshot
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, invalidInput("restore payload: %v", err)
	}

	snap := &Snapshot{}
	if snap.Schools, err = rowsIfArray("sekolah", raw.Sekolah); err != nil {
		return nil, err
	}
	if snap.Students, err = rowsIfArray("siswa", raw.Siswa); err != nil {
		return nil, err
	}
	if err := rejectReservedNISN("siswa", snap.Students, studentNISNColumn); err != nil {
		return nil, err
	}
	if snap.Grades, err = resolveGrades(raw.NilaiRows, raw.Nilai); err != nil {
		return nil, err
	}
	if snap.Photos, err = resolvePhotos(raw.SklPhotosRows, raw.SklPhotos); err != nil {
		return nil, err
	}
	if snap.Settings, err = resolveSettings(raw.Settings); err != nil {
		return nil, err
	}
	return snap, nil
}

// studentNISNColumn is the nisn position in a siswa row.
const studentNISNColumn = 7

// rejectReservedNISN refuses rows whose nisn cell is the display-name key,
// which would make the full data view unmarshallable.
func rejectReservedNISN(name string, rows [][]any, col int) error {
	for i, r := range rows {
		if col >= len(r) {
			continue
		}
		if nisn, _ := cellText(r[col]); nisn == gradecodec.ReservedKey {
			return invalidInput("restore payload: %s row %d: nisn '%s' is reserved", name, i+1, nisn)
		}
	}
	return nil
}

func resolveGrades(flat, nested json.RawMessage) (GradeSource, error) {
	rows, err := rowsIfArray("nilaiRows", flat)
	if err != nil {
		return GradeSource{}, err
	}
	if err := rejectReservedNISN("nilaiRows", rows, 0); err != nil {
		return GradeSource{}, err
	}
	if len(rows) > 0 {
		return GradeSource{Shape: GradesFlat, Rows: rows}, nil
	}
	if jsonKind(nested) == '{' {
		m := gradecodec.New()
		if err := json.Unmarshal(nested, m); err != nil {
			return GradeSource{}, invalidInput("restore payload: nilai: %v", err)
		}
		return GradeSource{Shape: GradesNested, Nested: m}, nil
	}
	if rows != nil {
		return GradeSource{Shape: GradesFlat, Rows: rows}, nil
	}
	return GradeSource{Shape: GradesAbsent}, nil
}

func resolvePhotos(pairs, byNISN json.RawMessage) (PhotoSource, error) {
	rows, err := rowsIfArray("sklPhotosRows", pairs)
	if err != nil {
		return PhotoSource{}, err
	}
	if err := rejectReservedNISN("sklPhotosRows", rows, 0); err != nil {
		return PhotoSource{}, err
	}
	if len(rows) > 0 {
		return PhotoSource{Shape: PhotosRows, Rows: rows}, nil
	}
	if jsonKind(byNISN) == '{' {
		var obj map[string]any
		if err := decodeJSON(bytes.NewReader(byNISN), &obj); err != nil {
			return PhotoSource{}, invalidInput("restore payload: sklPhotos: %v", err)
		}
		photos := make(map[string]string, len(obj))
		for nisn, v := range obj {
			if nisn == gradecodec.ReservedKey {
				return PhotoSource{}, invalidInput("restore payload: sklPhotos: nisn '%s' is reserved", nisn)
			}
			data, ok := photoData(v)
			if !ok {
				return PhotoSource{}, invalidInput("restore payload: sklPhotos: photo of %s is not a string", nisn)
			}
			photos[nisn] = data
		}
		return PhotoSource{Shape: PhotosByNISN, ByNISN: photos}, nil
	}
	if rows != nil {
		return PhotoSource{Shape: PhotosRows, Rows: rows}, nil
	}
	return PhotoSource{Shape: PhotosAbsent}, nil
}

func resolveSettings(msg json.RawMessage) (map[string]map[string]any, error) {
	if jsonKind(msg) != '{' {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := decodeJSON(bytes.NewReader(msg), &obj); err != nil {
		return nil, invalidInput("restore payload: settings: %v", err)
	}
	settings := make(map[string]map[string]any, len(obj))
	for code, v := range obj {
		var one map[string]any
		if k := jsonKind(v); k != '{' && k != 'n' {
			return nil, invalidInput("restore payload: settings of %s is not an object", code)
		}
		if err := decodeJSON(bytes.NewReader(v), &one); err != nil {
			return nil, invalidInput("restore payload: settings of %s: %v", code, err)
		}
		if one == nil {
			one = map[string]any{}
		}
		settings[code] = one
	}
	return settings, nil
}

// rowsIfArray decodes msg as rows when it is a JSON array. Anything else is
// treated as absent (nil).
func rowsIfArray(name string, msg json.RawMessage) ([][]any, error) {
	if jsonKind(msg) != '[' {
		return nil, nil
	}
	rows, err := DecodeRows(bytes.NewReader(msg))
	if err != nil {
		return nil, invalidInput("restore payload: %s: %v", name, err)
	}
	return rows, nil
}

func photoData(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return x, true
	}
	return "", false
}

// jsonKind returns the first significant byte of msg, or 'n' for null and 0
// when msg is empty.
func jsonKind(msg json.RawMessage) byte {
	t := bytes.TrimSpace(msg)
	if len(t) == 0 {
		return 0
	}
	return t[0]
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}

// Count is a restored record count, or the "by-object" marker when grades
// came from the nested shape and have no row count.
type Count struct {
	N        int
	ByObject bool
}

func (c Count) MarshalJSON() ([]byte, error) {
	if c.ByObject {
		return []byte(`"by-object"`), nil
	}
	return json.Marshal(c.N)
}

// RestoreCounts reports how many records each set received.
type RestoreCounts struct {
	Schools  int   `json:"sekolah"`
	Students int   `json:"siswa"`
	Grades   Count `json:"nilai"`
	Photos   int   `json:"skl_photos"`
	Settings int   `json:"settings"`
}

type RestoreResult struct {
	Inserted RestoreCounts `json:"inserted"`
}

// restoreClearOrder empties every record set, dependents first.
var restoreClearOrder = []string{
	store.TableGrades, store.TablePhotos, store.TableStudents, store.TableSchools,
	store.TableSettings, store.TableMulokNames,
}

// Restore replaces all record sets with the snapshot in one transaction.
// Anything absent from the snapshot is gone afterwards. Any write failure
// rolls the whole restore back.
func (e *Engine) Restore(ctx context.Context, snap *Snapshot) (*RestoreResult, error) {
	if snap == nil {
		return nil, invalidInput("restore payload is empty")
	}

	var counts RestoreCounts
	err := e.run(ctx, "restore", func(s *session) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if err := store.DeleteAll(ctx, tx, restoreClearOrder...); err != nil {
				return errors.Wrap(err, "restore: clear")
			}
			var err error
			if counts, err = restoreSnapshot(ctx, tx, snap); err != nil {
				return err
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.metrics.Restored("sekolah", counts.Schools)
	e.metrics.Restored("siswa", counts.Students)
	e.metrics.Restored("nilai", counts.Grades.N)
	e.metrics.Restored("skl_photos", counts.Photos)
	e.metrics.Restored("settings", counts.Settings)
	return &RestoreResult{Inserted: counts}, nil
}

func restoreSnapshot(ctx context.Context, tx *sql.Tx, snap *Snapshot) (RestoreCounts, error) {
	var c RestoreCounts

	for i, r := range snap.Schools {
		if err := store.UpsertSchoolRow(ctx, tx, bindRow(padRow(r, store.SchoolColumns))); err != nil {
			return c, errors.Wrapf(err, "restore: sekolah row %d", i+1)
		}
	}
	c.Schools = len(snap.Schools)

	for i, r := range snap.Students {
		if err := store.UpsertStudentRow(ctx, tx, bindRow(padRow(r, store.StudentColumns+1))); err != nil {
			return c, errors.Wrapf(err, "restore: siswa row %d", i+1)
		}
	}
	c.Students = len(snap.Students)

	n, err := restoreGrades(ctx, tx, snap.Grades)
	if err != nil {
		return c, err
	}
	c.Grades = n

	if c.Photos, err = restorePhotos(ctx, tx, snap.Photos); err != nil {
		return c, err
	}

	for _, code := range sortedCodes(snap.Settings) {
		blob, err := json.Marshal(snap.Settings[code])
		if err != nil {
			return c, errors.Wrapf(err, "restore: settings of %s", code)
		}
		if err := store.UpsertSettings(ctx, tx, code, string(blob)); err != nil {
			return c, errors.Wrap(err, "restore")
		}
	}
	c.Settings = len(snap.Settings)
	return c, nil
}

func restoreGrades(ctx context.Context, tx *sql.Tx, src GradeSource) (Count, error) {
	switch src.Shape {
	case GradesFlat:
		for i, r := range src.Rows {
			cells := padRow(r, 6)
			nisn, _ := cellText(cells[0])
			semester, _ := cellText(cells[1])
			subject, _ := cellText(cells[2])
			for j, typ := range gradecodec.CanonicalTypes {
				v := cells[3+j]
				if v == nil {
					v = gradecodec.Empty
				}
				g := &store.Grade{NISN: nisn, Semester: semester, Subject: subject, Type: typ, Value: bindValue(v)}
				if err := store.UpsertGrade(ctx, tx, g); err != nil {
					return Count{}, errors.Wrapf(err, "restore: nilaiRows row %d", i+1)
				}
			}
		}
		return Count{N: len(src.Rows)}, nil

	case GradesNested:
		for _, r := range src.Nested.Encode() {
			g := &store.Grade{NISN: r.NISN, Semester: r.Semester, Subject: r.Subject, Type: r.Type, Value: bindValue(r.Value)}
			if err := store.UpsertGrade(ctx, tx, g); err != nil {
				return Count{}, errors.Wrap(err, "restore: nilai")
			}
		}
		for _, m := range src.Nested.MulokRows() {
			name := &store.MulokName{KodeBiasa: m.KodeBiasa, Key: m.Key, Name: m.Name}
			if err := store.UpsertMulokName(ctx, tx, name); err != nil {
				return Count{}, errors.Wrap(err, "restore: nilai")
			}
		}
		return Count{ByObject: true}, nil
	}
	return Count{}, nil
}

func restorePhotos(ctx context.Context, tx *sql.Tx, src PhotoSource) (int, error) {
	switch src.Shape {
	case PhotosRows:
		for i, r := range src.Rows {
			cells := padRow(r, 2)
			nisn, _ := cellText(cells[0])
			data, ok := photoData(cells[1])
			if !ok {
				data = fmt.Sprint(cells[1])
			}
			if err := store.UpsertPhoto(ctx, tx, &store.Photo{NISN: nisn, Data: data}); err != nil {
				return 0, errors.Wrapf(err, "restore: sklPhotosRows row %d", i+1)
			}
		}
		return len(src.Rows), nil

	case PhotosByNISN:
		for _, nisn := range sortedCodes(src.ByNISN) {
			if err := store.UpsertPhoto(ctx, tx, &store.Photo{NISN: nisn, Data: src.ByNISN[nisn]}); err != nil {
				return 0, errors.Wrap(err, "restore: sklPhotos")
			}
		}
		return len(src.ByNISN), nil
	}
	return 0, nil
}

// padRow returns the first width cells of r, with nil for missing cells.
func padRow(r []any, width int) []any {
	cells := make([]any, width)
	copy(cells, r)
	return cells
}

func sortedCodes[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
