package rapor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/rapor/internal/store"
)

// seedAll creates two schools, two students in S1, three grades and one
// photo for the first student.
func seedAll(t *testing.T, e *Engine) {
	t.Helper()
	seedSchool(t, e, "S1")
	seedSchool(t, e, "S2")
	seedStudent(t, e, "S1", "1111111111")
	seedStudent(t, e, "S1", "2222222222")
	seedGrade(t, e, "1111111111", "1", "mtk", "ki3", 80)
	seedGrade(t, e, "1111111111", "1", "mtk", "ki4", 82)
	seedGrade(t, e, "1111111111", "1", "mtk", "rt", "B")
	require.NoError(t, e.SavePhoto(context.Background(), "1111111111", "data:image/png;base64,AAA"))
}

// =============================================================================
// Guarded delete-all
// =============================================================================

func TestDeleteAll_UnknownTarget(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	seedAll(t, e)
	before := tableCounts(t, e)

	_, err := e.DeleteAll(context.Background(), "nilai")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, before, tableCounts(t, e))
}

func TestDeleteAll_SchoolsRefusedWhileStudentsExist(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	seedAll(t, e)
	before := tableCounts(t, e)

	_, err := e.DeleteAll(context.Background(), "sekolah")
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Contains(t, err.Error(), "delete all students first")
	assert.Equal(t, before, tableCounts(t, e))
}

func TestDeleteAll_StudentsRefusedWhileGradesExist(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	seedSchool(t, e, "S1")
	seedStudent(t, e, "S1", "111")
	seedGrade(t, e, "111", "1", "mtk", "ki3", 80)
	before := tableCounts(t, e)

	_, err := e.DeleteAll(context.Background(), "siswa")
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "clear grades and photos first")
	assert.Equal(t, before, tableCounts(t, e))
}

func TestDeleteAll_StudentsRefusedWhilePhotosExist(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	seedSchool(t, e, "S1")
	seedStudent(t, e, "S1", "111")
	require.NoError(t, e.SavePhoto(context.Background(), "111", "data"))
	before := tableCounts(t, e)

	_, err := e.DeleteAll(context.Background(), "students")
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, before, tableCounts(t, e))
}

func TestDeleteAll_StudentsThenSchools(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()
	seedSchool(t, e, "S1")
	seedStudent(t, e, "S1", "111")

	msg, err := e.DeleteAll(ctx, "siswa")
	require.NoError(t, err)
	assert.Equal(t, "all students deleted; schools kept", msg)
	counts := tableCounts(t, e)
	assert.Zero(t, counts[store.TableStudents])
	assert.Equal(t, int64(1), counts[store.TableSchools])

	msg, err = e.DeleteAll(ctx, "sekolah")
	require.NoError(t, err)
	assert.Equal(t, "all schools deleted", msg)
	assert.Zero(t, tableCounts(t, e)[store.TableSchools])
}

func TestDeleteAll_WithoutReclaim(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, WithReclaim(false))
	seedSchool(t, e, "S1")
	_, err := e.DeleteAll(context.Background(), "sekolah")
	require.NoError(t, err)
	assert.Zero(t, tableCounts(t, e)[store.TableSchools])
}

// =============================================================================
// Cascade truncate
// =============================================================================

func TestTruncate_Students(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	seedAll(t, e)
	require.NoError(t, e.SaveSettings(context.Background(), "S1", map[string]any{"a": 1}, nil))

	msg, err := e.Truncate(context.Background(), "siswa")
	require.NoError(t, err)
	assert.Contains(t, msg, "schools kept")

	counts := tableCounts(t, e)
	assert.Zero(t, counts[store.TableGrades])
	assert.Zero(t, counts[store.TablePhotos])
	assert.Zero(t, counts[store.TableStudents])
	assert.Equal(t, int64(2), counts[store.TableSchools])
	assert.Equal(t, int64(1), counts[store.TableSettings])
}

func TestTruncate_Schools(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	seedAll(t, e)

	_, err := e.Truncate(context.Background(), "sekolah")
	require.NoError(t, err)

	counts := tableCounts(t, e)
	for _, table := range []string{store.TableGrades, store.TablePhotos, store.TableStudents, store.TableSchools} {
		assert.Zero(t, counts[table], table)
	}
}

func TestTruncate_ResetsSequences(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()
	seedAll(t, e)

	_, err := e.Truncate(ctx, "siswa")
	require.NoError(t, err)

	seedStudent(t, e, "S1", "111")
	seedGrade(t, e, "111", "1", "mtk", "ki3", 80)
	var id int64
	require.NoError(t, e.Store().DB().QueryRow("SELECT id FROM grades").Scan(&id))
	assert.Equal(t, int64(1), id)
}

func TestTruncate_UnknownTarget(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	_, err := e.Truncate(context.Background(), "everything")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
