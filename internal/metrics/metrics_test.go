package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_NilIsNoop(t *testing.T) {
	t.Parallel()
	var r *Recorder
	r.Operation("import", ResultOK, time.Millisecond)
	r.ImportRows("siswa", OutcomeInserted, 3)
	r.Restored("sekolah", 1)
	r.Reclaim("vacuum", nil)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestRecorder_Operation(t *testing.T) {
	t.Parallel()
	r := New()
	r.Operation("import", ResultOK, 2*time.Millisecond)
	r.Operation("import", ResultOK, time.Millisecond)
	r.Operation("delete_all", ResultConflict, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues("import", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("delete_all", ResultConflict)))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestRecorder_ImportRowsAndRestored(t *testing.T) {
	t.Parallel()
	r := New()
	r.ImportRows("siswa", OutcomeInserted, 4)
	r.ImportRows("siswa", OutcomeSkipped, 0)
	r.ImportRows("siswa", OutcomeFailed, 1)
	r.Restored("nilai", 9)

	assert.Equal(t, 4.0, testutil.ToFloat64(r.importRows.WithLabelValues("siswa", OutcomeInserted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.importRows.WithLabelValues("siswa", OutcomeFailed)))
	assert.Equal(t, 2, testutil.CollectAndCount(r.importRows))
	assert.Equal(t, 9.0, testutil.ToFloat64(r.restored.WithLabelValues("nilai")))
}

func TestRecorder_Reclaim(t *testing.T) {
	t.Parallel()
	r := New()
	r.Reclaim("vacuum", nil)
	r.Reclaim("vacuum", errors.New("busy"))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reclaims.WithLabelValues("vacuum", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reclaims.WithLabelValues("vacuum", ResultOK)))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	t.Parallel()
	r := New()
	r.Operation("restore", ResultOK, time.Millisecond)

	path := filepath.Join(t.TempDir(), "rapor.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `rapor_operations_total{op="restore",result="ok"} 1`)
}
