// Package gradecodec converts grades between flat relation rows and the
// nested student → semester → subject → type map served to clients.
//
// Custom subject display names live in a separate field of Map and are only
// rendered under the reserved "_mulokNames" key when the map is encoded to
// JSON, so they can never be confused with a real student ID in Go code.
package gradecodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ReservedKey is the top-level JSON key holding custom subject display names.
const ReservedKey = "_mulokNames"

// Assessment types emitted for every subject by Encode.
const (
	TypeKI3 = "ki3"
	TypeKI4 = "ki4"
	TypeRT  = "rt"
)

// CanonicalTypes lists the assessment types in their emitted order.
var CanonicalTypes = []string{TypeKI3, TypeKI4, TypeRT}

// Empty is stored for an assessment type missing from an encoded subject.
const Empty = ""

// Row is one grade relation row.
type Row struct {
	NISN     string
	Semester string
	Subject  string
	Type     string
	Value    any
}

// MulokRow is one custom subject display name of a school.
type MulokRow struct {
	KodeBiasa string
	Key       string
	Name      string
}

// Subject maps assessment type to value.
type Subject map[string]any

// Semester maps subject to its assessments.
type Semester map[string]Subject

// Student maps semester to its subjects.
type Student map[string]Semester

// Map is the nested grade view plus the per-school display names.
type Map struct {
	Students   map[string]Student
	MulokNames map[string]map[string]string
}

// New returns an empty map.
func New() *Map {
	return &Map{
		Students:   make(map[string]Student),
		MulokNames: make(map[string]map[string]string),
	}
}

// Set stores one value, creating the intermediate levels on first use.
func (m *Map) Set(nisn, semester, subject, typ string, value any) {
	st, ok := m.Students[nisn]
	if !ok {
		st = make(Student)
		m.Students[nisn] = st
	}
	sem, ok := st[semester]
	if !ok {
		sem = make(Semester)
		st[semester] = sem
	}
	sub, ok := sem[subject]
	if !ok {
		sub = make(Subject)
		sem[subject] = sub
	}
	sub[typ] = value
}

// SetMulokName stores one display name, creating the school level on first use.
func (m *Map) SetMulokName(code, key, name string) {
	names, ok := m.MulokNames[code]
	if !ok {
		names = make(map[string]string)
		m.MulokNames[code] = names
	}
	names[key] = name
}

// Decode builds the nested map from grade rows and display-name rows.
func Decode(rows []Row, muloks []MulokRow) *Map {
	m := New()
	for _, r := range rows {
		m.Set(r.NISN, r.Semester, r.Subject, r.Type, r.Value)
	}
	for _, n := range muloks {
		m.SetMulokName(n.KodeBiasa, n.Key, n.Name)
	}
	return m
}

// Rows flattens the map into one row per stored value, sorted by key.
func (m *Map) Rows() []Row {
	var rows []Row
	for _, nisn := range sortedKeys(m.Students) {
		st := m.Students[nisn]
		for _, semester := range sortedKeys(st) {
			sem := st[semester]
			for _, subject := range sortedKeys(sem) {
				sub := sem[subject]
				for _, typ := range sortedKeys(sub) {
					rows = append(rows, Row{NISN: nisn, Semester: semester, Subject: subject, Type: typ, Value: sub[typ]})
				}
			}
		}
	}
	return rows
}

// MulokRows flattens the display names, sorted by school and key.
func (m *Map) MulokRows() []MulokRow {
	var rows []MulokRow
	for _, code := range sortedKeys(m.MulokNames) {
		names := m.MulokNames[code]
		for _, key := range sortedKeys(names) {
			rows = append(rows, MulokRow{KodeBiasa: code, Key: key, Name: names[key]})
		}
	}
	return rows
}

// Encode flattens the student grades into relation rows. Every subject
// yields one row for each canonical assessment type, with Empty standing in
// for a missing value; any further types present are emitted after them.
func (m *Map) Encode() []Row {
	var rows []Row
	for _, nisn := range sortedKeys(m.Students) {
		st := m.Students[nisn]
		for _, semester := range sortedKeys(st) {
			sem := st[semester]
			for _, subject := range sortedKeys(sem) {
				sub := sem[subject]
				for _, typ := range CanonicalTypes {
					v, ok := sub[typ]
					if !ok || v == nil {
						v = Empty
					}
					rows = append(rows, Row{NISN: nisn, Semester: semester, Subject: subject, Type: typ, Value: v})
				}
				for _, typ := range sortedKeys(sub) {
					if isCanonical(typ) {
						continue
					}
					rows = append(rows, Row{NISN: nisn, Semester: semester, Subject: subject, Type: typ, Value: sub[typ]})
				}
			}
		}
	}
	return rows
}

// MarshalJSON renders the student grades with the display names under
// ReservedKey. A student ID equal to ReservedKey cannot be represented and
// is an error.
func (m *Map) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Students)+1)
	for nisn, st := range m.Students {
		if nisn == ReservedKey {
			return nil, fmt.Errorf("student id %q collides with the display-name key", nisn)
		}
		out[nisn] = st
	}
	names := m.MulokNames
	if names == nil {
		names = map[string]map[string]string{}
	}
	out[ReservedKey] = names
	return json.Marshal(out)
}

// UnmarshalJSON reads the nested client view. Null levels are treated as
// empty; any other non-object level is an error. Numbers are kept as
// json.Number.
func (m *Map) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := decode(data, &raw); err != nil {
		return fmt.Errorf("grade map: %w", err)
	}
	*m = *New()
	for nisn, body := range raw {
		if nisn == ReservedKey {
			if err := m.readMulokNames(body); err != nil {
				return err
			}
			continue
		}
		var st map[string]map[string]map[string]any
		if err := decode(body, &st); err != nil {
			return fmt.Errorf("grade map: student %s: %w", nisn, err)
		}
		if st == nil {
			continue
		}
		student := make(Student, len(st))
		for semester, subjects := range st {
			sem := make(Semester, len(subjects))
			for subject, types := range subjects {
				sub := make(Subject, len(types))
				for typ, v := range types {
					sub[typ] = v
				}
				sem[subject] = sub
			}
			student[semester] = sem
		}
		m.Students[nisn] = student
	}
	return nil
}

func (m *Map) readMulokNames(body json.RawMessage) error {
	var schools map[string]map[string]any
	if err := decode(body, &schools); err != nil {
		return fmt.Errorf("grade map: %s: %w", ReservedKey, err)
	}
	for code, names := range schools {
		for key, name := range names {
			switch v := name.(type) {
			case nil:
				m.SetMulokName(code, key, "")
			case string:
				m.SetMulokName(code, key, v)
			default:
				m.SetMulokName(code, key, fmt.Sprint(v))
			}
		}
	}
	return nil
}

// DecodeSettings parses a stored settings blob. An empty blob is an empty object.
func DecodeSettings(blob string) (map[string]any, error) {
	settings := map[string]any{}
	if blob == "" {
		return settings, nil
	}
	if err := decode([]byte(blob), &settings); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return settings, nil
}

// MergeSettings shallow-merges incoming over the existing blob and returns
// the merged blob. Incoming top-level keys win; nested objects are replaced
// whole.
func MergeSettings(existing string, incoming map[string]any) (string, error) {
	merged, err := DecodeSettings(existing)
	if err != nil {
		return "", err
	}
	for k, v := range incoming {
		merged[k] = v
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("settings: %w", err)
	}
	return string(b), nil
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func isCanonical(typ string) bool {
	for _, t := range CanonicalTypes {
		if t == typ {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
