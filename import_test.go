package rapor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/rapor/internal/store"
)

// =============================================================================
// Targets & payload shape
// =============================================================================

func TestParseTarget(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Target{
		"sekolah": TargetSchools, "schools": TargetSchools, " Siswa ": TargetStudents, "students": TargetStudents,
	} {
		got, err := ParseTarget(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTarget("nilai")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestImport_UnsupportedTargetHasNoEffect(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	_, err := e.Import(context.Background(), "nilai", [][]any{{"S1"}})
	require.ErrorIs(t, err, ErrInvalidInput)
	for _, n := range tableCounts(t, e) {
		assert.Zero(t, n)
	}
}

func TestDecodeRows(t *testing.T) {
	t.Parallel()
	rows, err := DecodeRows(strings.NewReader(`[["S1", 2, null], null, []]`))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"S1", json.Number("2"), nil}, rows[0])
	assert.Equal(t, []any{}, rows[1])

	_, err = DecodeRows(strings.NewReader(`{"sekolah": []}`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = DecodeRows(strings.NewReader(`[["S1"], {"a": 1}]`))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "row 2")
}

// =============================================================================
// Cell handling
// =============================================================================

func TestNormalizeCell(t *testing.T) {
	t.Parallel()
	assert.Nil(t, normalizeCell(nil))
	assert.Nil(t, normalizeCell("   "))
	assert.Nil(t, normalizeCell("null"))
	assert.Nil(t, normalizeCell(" NuLL "))
	assert.Equal(t, "abc", normalizeCell("  abc "))
	assert.Equal(t, 12, normalizeCell(12))
	assert.Equal(t, json.Number("7"), normalizeCell(json.Number("7")))
	assert.Equal(t, false, normalizeCell(false))
}

func TestCoerceInteger(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(3), coerceInteger("3"))
	assert.Equal(t, int64(3), coerceInteger("3.9"))
	assert.Equal(t, int64(4), coerceInteger(json.Number("4")))
	assert.Equal(t, int64(4), coerceInteger(json.Number("4.5")))
	assert.Equal(t, int64(5), coerceInteger(5.2))
	assert.Equal(t, int64(6), coerceInteger(6))
	assert.Equal(t, "A1", coerceInteger("A1"))
	assert.Nil(t, coerceInteger(nil))
}

// =============================================================================
// Schools
// =============================================================================

func TestImportSchools_UpsertsAndReportsFailures(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	rows := [][]any{
		{" S1 ", "P1", "Kec", "NPSN1", "Sekolah Satu", "SD1"},
		{"", "P2", "Kec", "NPSN2", "Sekolah Dua", "SD2"},
		{"S2", "NULL", nil},
		{"S1", "P1b", "Kec", "NPSN1", "Sekolah Satu", "SD1"},
		{"S3", []any{"nested"}, nil, nil, nil, nil},
	}
	res, err := e.Import(ctx, "sekolah", rows)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Inserted)
	assert.Zero(t, res.SkippedCount)
	assert.Equal(t, 2, res.FailedCount)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, 2, res.Failed[0].RowIndex)
	assert.Equal(t, rows[1], res.Failed[0].Row)
	assert.Contains(t, res.Failed[0].Reason, "NOT NULL")
	assert.Equal(t, 5, res.Failed[1].RowIndex)
	assert.Equal(t, res.Inserted+res.SkippedCount+res.FailedCount, len(rows))

	schools, err := e.ListSchools(ctx)
	require.NoError(t, err)
	require.Len(t, schools, 2)
	assert.Equal(t, "S1", schools[0].KodeBiasa)
	assert.Equal(t, "P1b", *schools[0].KodePro)
	assert.Nil(t, schools[1].KodePro)
}

func TestImportSchools_ResultShape(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	res, err := e.Import(context.Background(), "sekolah", [][]any{{"S1"}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"inserted":1,"skippedCount":0,"skipped":[],"failedCount":0,"failed":[]}`,
		mustJSON(t, res))
}

// =============================================================================
// Students
// =============================================================================

func TestImportStudents_MissingSchoolIsSkipped(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	row := []any{"S1", "P1", "Sch1", "Kec1", 1, "100", "P01", "1111111111", "Alice", "01-01-2000", "Mother", "IJZ1"}

	res, err := e.Import(context.Background(), "siswa", [][]any{row})
	require.NoError(t, err)

	assert.Zero(t, res.Inserted)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Zero(t, res.FailedCount)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 1, res.Skipped[0].RowIndex)
	assert.Equal(t, "kodeBiasa 'S1' not found in schools", res.Skipped[0].Reason)
	assert.Equal(t, row, res.Skipped[0].Row)
	assert.Zero(t, tableCounts(t, e)[store.TableStudents])
}

func TestImportStudents_MissingKeysSkippedNotFailed(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	seedSchool(t, e, "S1")

	rows := [][]any{
		{"S1", nil, nil, nil, 1, nil, nil, "", "no nisn"},
		{"  ", nil, nil, nil, 2, nil, nil, "222", "no school"},
		{"NULL", nil, nil, nil, 3, nil, nil, "NULL"},
		{"S1"},
		nil,
	}
	res, err := e.Import(context.Background(), "siswa", rows)
	require.NoError(t, err)

	assert.Zero(t, res.Inserted)
	assert.Zero(t, res.FailedCount)
	assert.Equal(t, 5, res.SkippedCount)
	for i, s := range res.Skipped {
		assert.Equal(t, i+1, s.RowIndex)
		assert.Equal(t, "kodeBiasa/nisn is empty", s.Reason)
	}
	assert.Equal(t, []any{}, res.Skipped[4].Row)
}

func TestImportStudents_DistinctSkipReasons(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	seedSchool(t, e, "S1")

	res, err := e.Import(context.Background(), "siswa", [][]any{
		{"S1", nil, nil, nil, 1, nil, nil, nil},
		{"S9", nil, nil, nil, 1, nil, nil, "999"},
		{"S1", nil, nil, nil, 1, nil, nil, "_mulokNames"},
	})
	require.NoError(t, err)
	require.Len(t, res.Skipped, 3)
	assert.NotEqual(t, res.Skipped[0].Reason, res.Skipped[1].Reason)
	assert.Contains(t, res.Skipped[1].Reason, "S9")
	assert.Contains(t, res.Skipped[2].Reason, "reserved")
}

func TestImportStudents_InsertsAndCoercesSequence(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()
	seedSchool(t, e, "S1")

	rows := [][]any{
		{"S1", "P1", "Sch1", "Kec1", " 7 ", "100", "P01", " 1111111111 ", "Alice", "01-01-2000", "Mother", "IJZ1", "ignored"},
		{"S1", "P1", "Sch1", "Kec1", json.Number("8.0"), "101", "P02", json.Number("2222222222"), "Bob"},
		{"S1", "P1", "Sch1", "Kec1", "A-9", "102", "P03", "3333333333", "Cici"},
	}
	res, err := e.Import(ctx, "siswa", rows)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)

	students, err := e.StudentsBySchool(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, students, 3)
	byNISN := map[string]*Student{}
	for _, s := range students {
		byNISN[s.NISN] = s
	}
	require.Contains(t, byNISN, "1111111111")
	assert.Equal(t, int64(7), byNISN["1111111111"].NoUrut)
	assert.Nil(t, byNISN["1111111111"].JK)
	require.Contains(t, byNISN, "2222222222")
	assert.Equal(t, int64(8), byNISN["2222222222"].NoUrut)
	assert.Nil(t, byNISN["2222222222"].TTL)
	assert.Equal(t, "A-9", byNISN["3333333333"].NoUrut)
}

func TestImportStudents_AccountsForEveryRow(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	seedSchool(t, e, "S1")

	rows := [][]any{
		{"S1", nil, nil, nil, 1, nil, nil, "111"},
		{"S1", nil, nil, nil, 2, nil, nil, ""},
		{"S2", nil, nil, nil, 3, nil, nil, "333"},
		{"S1", map[string]any{"x": 1}, nil, nil, 4, nil, nil, "444"},
		{"S1", nil, nil, nil, 5, nil, nil, "555"},
	}
	res, err := e.Import(context.Background(), "students", rows)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, res.SkippedCount)
	assert.Equal(t, 1, res.FailedCount)
	assert.Equal(t, 4, res.Failed[0].RowIndex)
	assert.Equal(t, len(rows), res.Inserted+res.SkippedCount+res.FailedCount)
	assert.Equal(t, int64(2), tableCounts(t, e)[store.TableStudents])
}

func TestImportStudents_ReimportReplaces(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()
	seedSchool(t, e, "S1")

	row := []any{"S1", nil, nil, nil, 1, nil, nil, "111", "Old"}
	_, err := e.Import(ctx, "siswa", [][]any{row})
	require.NoError(t, err)
	row[8] = "New"
	res, err := e.Import(ctx, "siswa", [][]any{row})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	students, err := e.StudentsBySchool(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "New", *students[0].NamaPeserta)
}
