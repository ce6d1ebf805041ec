package store

import "encoding/json"

// Record domain types. Nullable text columns are *string; nil means NULL.

// SchoolColumns is the number of positions in a school row.
const SchoolColumns = 6

// StudentColumns is the number of positions in a student row, not counting
// the optional trailing sex marker.
const StudentColumns = 12

type School struct {
	KodeBiasa          string
	KodePro            *string
	Kecamatan          *string
	NPSN               *string
	NamaSekolahLengkap *string
	NamaSekolahSingkat *string
}

type Student struct {
	KodeBiasa   string
	KodePro     *string
	NamaSekolah *string
	Kecamatan   *string
	NoUrut      any // integer when numeric, otherwise the stored text
	NoInduk     *string
	NoPeserta   *string
	NISN        string
	NamaPeserta *string
	TTL         *string
	NamaOrtu    *string
	NoIjazah    *string
	JK          *string
}

type Grade struct {
	NISN     string
	Semester string
	Subject  string
	Type     string
	Value    any
}

type Photo struct {
	NISN string
	Data string
}

type MulokName struct {
	KodeBiasa string
	Key       string
	Name      string
}

type Setting struct {
	KodeBiasa string
	JSON      string
}

// Row returns the school as its positional row:
// [kodeBiasa, kodePro, kecamatan, npsn, namaSekolahLengkap, namaSekolahSingkat].
func (s School) Row() []any {
	return []any{
		s.KodeBiasa, textCell(s.KodePro), textCell(s.Kecamatan), textCell(s.NPSN),
		textCell(s.NamaSekolahLengkap), textCell(s.NamaSekolahSingkat),
	}
}

// MarshalJSON renders the school as its positional row.
func (s School) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Row())
}

// Row returns the student as its positional row:
// [kodeBiasa, kodePro, namaSekolah, kecamatan, noUrut, noInduk, noPeserta,
// nisn, namaPeserta, ttl, namaOrtu, noIjazah]. The sex marker is appended as
// a 13th position only when set.
func (s Student) Row() []any {
	row := []any{
		s.KodeBiasa, textCell(s.KodePro), textCell(s.NamaSekolah), textCell(s.Kecamatan),
		s.NoUrut, textCell(s.NoInduk), textCell(s.NoPeserta), s.NISN,
		textCell(s.NamaPeserta), textCell(s.TTL), textCell(s.NamaOrtu), textCell(s.NoIjazah),
	}
	if s.JK != nil {
		row = append(row, *s.JK)
	}
	return row
}

// MarshalJSON renders the student as its positional row.
func (s Student) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Row())
}

func textCell(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
