package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cli runs commands against one temp database.
type cli struct {
	t   *testing.T
	db  string
	dir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	return &cli{t: t, db: filepath.Join(dir, "rapor.db"), dir: dir}
}

type envelope struct {
	Command    string          `json:"command"`
	Results    json.RawMessage `json:"results"`
	TotalCount *int            `json:"total_count"`
	Error      string          `json:"error"`
	Kind       string          `json:"kind"`
}

// exec runs one invocation with stdin and returns exit code, stdout and
// stderr.
func (c *cli) exec(stdin string, args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--db", c.db, "--log-level", "error"}, args...)
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// call runs one invocation and decodes its envelope.
func (c *cli) call(args ...string) (int, envelope) {
	c.t.Helper()
	code, out, _ := c.exec("", args...)
	var env envelope
	require.NoError(c.t, json.Unmarshal([]byte(out), &env), out)
	return code, env
}

func (c *cli) file(name, content string) string {
	c.t.Helper()
	path := filepath.Join(c.dir, name)
	require.NoError(c.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (c *cli) seed() {
	c.t.Helper()
	code, _ := c.call("import", "sekolah", c.file("schools.json", `[["S1","P1","Kec","N1","Sekolah Satu","SD1"],["S2"]]`))
	require.Equal(c.t, exitOK, code)
	code, _ = c.call("import", "siswa", c.file("students.json",
		`[["S1","P1","Sekolah Satu","Kec",1,"100","P01","111","Alice","x","y","z"]]`))
	require.Equal(c.t, exitOK, code)
	code, _ = c.call("grades", "set", "111", "1", "mtk", "ki3", "80")
	require.Equal(c.t, exitOK, code)
}

// =============================================================================
// Data commands
// =============================================================================

func TestInit_ReportsEmptyTables(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	code, env := c.call("init")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "init", env.Command)
	assert.JSONEq(t,
		`{"schools":0,"students":0,"grades":0,"photos":0,"settings":0,"mulok_names":0}`,
		string(env.Results))
}

func TestImport_ReportsEveryRow(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	c.call("import", "sekolah", c.file("s.json", `[["S1"]]`))

	code, env := c.call("import", "siswa", c.file("st.json",
		`[["S1",null,null,null,1,null,null,"111"],["S9",null,null,null,2,null,null,"222"],["S1"]]`))
	require.Equal(t, exitOK, code)
	require.NotNil(t, env.TotalCount)
	assert.Equal(t, 3, *env.TotalCount)

	var res struct {
		Inserted     int `json:"inserted"`
		SkippedCount int `json:"skippedCount"`
		Skipped      []struct {
			RowIndex int    `json:"rowIndex"`
			Reason   string `json:"reason"`
		} `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(env.Results, &res))
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 2, res.SkippedCount)
	assert.Equal(t, "kodeBiasa 'S9' not found in schools", res.Skipped[0].Reason)
}

func TestImport_CSVWithHeader(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	path := c.file("schools.csv", "kodeBiasa,kodePro,kecamatan,npsn,nama,singkat\nS1,P1,Kec,N1,Satu,SD1\nS2,,,,,\n")

	code, env := c.call("import", "sekolah", path, "--header")
	require.Equal(t, exitOK, code)
	assert.Contains(t, string(env.Results), `"inserted": 2`)

	_, env = c.call("schools", "list")
	assert.JSONEq(t, `[["S1","P1","Kec","N1","Satu","SD1"],["S2",null,null,null,null,null]]`, string(env.Results))
}

func TestImport_UnsupportedTarget(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	code, env := c.call("import", "nilai", c.file("x.json", `[]`))
	assert.Equal(t, exitClient, code)
	assert.Equal(t, "invalid_input", env.Kind)
}

func TestDeleteAll_ConflictExitCode(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	c.seed()

	code, env := c.call("delete-all", "sekolah")
	assert.Equal(t, exitConflict, code)
	assert.Equal(t, "conflict", env.Kind)
	assert.Contains(t, env.Error, "delete all students first")

	code, env = c.call("truncate", "sekolah")
	require.Equal(t, exitOK, code)
	assert.Contains(t, string(env.Results), "all schools deleted")
}

func TestRestoreFromStdinThenExport(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	c.seed()

	payload := `{"data": {"sekolah": [["S7"]], "siswa": [["S7",null,null,null,1,null,null,"777"]],
		"nilai": {"777": {"2": {"ipa": {"ki3": 90}}}, "_mulokNames": {}}}}`
	code, out, _ := c.exec(payload, "restore", "-")
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, `"nilai": "by-object"`)

	code, env := c.call("export")
	require.Equal(t, exitOK, code)
	var data struct {
		Schools [][]any                    `json:"sekolah"`
		Grades  map[string]json.RawMessage `json:"nilai"`
		Photos  map[string]string          `json:"sklPhotos"`
	}
	require.NoError(t, json.Unmarshal(env.Results, &data))
	require.Len(t, data.Schools, 1)
	assert.Equal(t, "S7", data.Schools[0][0])
	assert.Contains(t, data.Grades, "777")
	assert.NotContains(t, data.Grades, "111")
	assert.Empty(t, data.Photos)
}

func TestExport_SchoolScope(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	c.seed()

	code, env := c.call("export", "--school", "S2")
	require.Equal(t, exitOK, code)
	assert.Contains(t, string(env.Results), `"siswa": []`)

	code, _ = c.call("export", "--school", "")
	assert.Equal(t, exitClient, code)
}

// =============================================================================
// Record commands
// =============================================================================

func TestSchools_AddUpdateDelete(t *testing.T) {
	t.Parallel()
	c := newCLI(t)

	code, _ := c.call("schools", "add", "S1", "P1")
	require.Equal(t, exitOK, code)
	code, _ = c.call("schools", "add", "S1")
	assert.Equal(t, exitConflict, code)

	code, _ = c.call("schools", "update", "S1", "S5", "P5")
	require.Equal(t, exitOK, code)
	code, _ = c.call("schools", "update", "S1", "S6")
	assert.Equal(t, exitNotFound, code)

	code, _ = c.call("schools", "delete", "S5")
	assert.Equal(t, exitOK, code)
	code, _ = c.call("schools", "delete", "S5")
	assert.Equal(t, exitNotFound, code)
}

func TestStudents_UpdateAndDelete(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	c.seed()

	code, _ := c.call("students", "update", "111", "namaPeserta=Alicia", "ttl=")
	require.Equal(t, exitOK, code)
	_, env := c.call("students", "list", "S1")
	assert.Contains(t, string(env.Results), "Alicia")

	code, _ = c.call("students", "update", "111", "kodeBiasa=S2")
	assert.Equal(t, exitClient, code)

	code, _ = c.call("students", "delete", "111")
	require.Equal(t, exitOK, code)
	code, _ = c.call("students", "delete", "111")
	assert.Equal(t, exitNotFound, code)

	_, env = c.call("init")
	assert.Contains(t, string(env.Results), `"grades": 0`)
}

func TestGrades_BulkAndDeleteSemester(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	c.seed()

	path := c.file("grades.json", `[
		{"nisn": "111", "semester": "1", "subject": "mtk", "type": "ki4", "value": 81},
		{"nisn": "111", "semester": "2", "subject": "mtk", "type": "rt", "value": "B"}
	]`)
	code, env := c.call("grades", "bulk", path)
	require.Equal(t, exitOK, code)
	assert.Equal(t, 2, *env.TotalCount)

	code, _ = c.call("grades", "bulk", c.file("bad.json", `[{"nisn": "999", "semester": "1", "subject": "x", "type": "ki3"}]`))
	assert.Equal(t, exitConflict, code)

	code, env = c.call("grades", "delete-semester", "S1", "1")
	require.Equal(t, exitOK, code)
	assert.Contains(t, string(env.Results), `"count": 2`)
}

func TestSettingsAndPhoto(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	c.seed()

	code, _ := c.call("settings", "set", "S1", c.file("settings.json",
		`{"settings": {"kepsek": "Budi"}, "mulokNames": {"mulok1": "Batik"}}`))
	require.Equal(t, exitOK, code)

	code, out, _ := c.exec("data:image/png;base64,AAA\n", "photo", "set", "111", "-")
	require.Equal(t, exitOK, code, out)
	code, _ = c.call("photo", "set", "999", c.file("p.txt", "data:x"))
	assert.Equal(t, exitConflict, code)

	_, env := c.call("export", "--school", "S1")
	assert.Contains(t, string(env.Results), `"111": "data:image/png;base64,AAA"`)
	assert.Contains(t, string(env.Results), `"kepsek": "Budi"`)
	assert.Contains(t, string(env.Results), `"mulok1": "Batik"`)

	code, _ = c.call("photo", "delete", "111")
	assert.Equal(t, exitOK, code)
}

// =============================================================================
// Output, flags & metrics
// =============================================================================

func TestTextFormat(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	c.seed()

	code, out, _ := c.exec("", "--format", "text", "schools", "list")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "KODE")
	assert.Contains(t, out, "Sekolah Satu")

	code, _, stderr := c.exec("", "--format", "text", "students", "delete", "999")
	assert.Equal(t, exitNotFound, code)
	assert.Contains(t, stderr, "Error: student '999' not found")
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()
	c := newCLI(t)

	code, _, _ := c.exec("", "import", "sekolah")
	assert.Equal(t, exitClient, code)
	code, _, _ = c.exec("", "--format", "yaml", "init")
	assert.Equal(t, exitClient, code)
	code, _, _ = c.exec("", "--no-such-flag", "init")
	assert.Equal(t, exitClient, code)
	code, _, _ = c.exec("", "import", "sekolah", filepath.Join(c.dir, "missing.json"))
	assert.Equal(t, exitClient, code)
}

func TestMetricsFile(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	prom := filepath.Join(c.dir, "rapor.prom")

	code, _, _ := c.exec("", "--metrics-file", prom, "init")
	require.Equal(t, exitOK, code)
	b, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(b), `rapor_operations_total{op="counts",result="ok"} 1`)
}

func TestParseAssignments(t *testing.T) {
	t.Parallel()
	got, err := parseAssignments([]string{"nis=1=2", "ttl="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"nis": "1=2", "ttl": nil}, got)

	_, err = parseAssignments([]string{"nis"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=x"})
	assert.Error(t, err)
}

func TestGradeValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, json.Number("80"), gradeValue("80"))
	assert.Equal(t, json.Number("7.5"), gradeValue("7.5"))
	assert.Equal(t, "B", gradeValue("B"))
}

func TestSchoolRow(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []any{"S1", "P1", nil, nil, nil, nil}, schoolRow([]string{"S1", "P1"}))
}
