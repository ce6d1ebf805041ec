package rapor

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jward/rapor/internal/gradecodec"
	"github.com/jward/rapor/internal/metrics"
	"github.com/jward/rapor/internal/store"
)

// Target identifies the record set of a bulk import or bulk delete.
type Target string

const (
	TargetSchools  Target = "sekolah"
	TargetStudents Target = "siswa"
)

// ParseTarget accepts "sekolah"/"schools" and "siswa"/"students".
func ParseTarget(id string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "sekolah", "schools":
		return TargetSchools, nil
	case "siswa", "students":
		return TargetStudents, nil
	}
	return "", invalidInput("unsupported target %q: want sekolah or siswa", id)
}

// RowIssue reports one skipped or failed import row.
type RowIssue struct {
	RowIndex int    `json:"rowIndex"` // 1-based
	Reason   string `json:"reason"`
	Row      []any  `json:"row"`
}

// ImportResult accounts for every input row exactly once:
// Inserted + SkippedCount + FailedCount == len(rows).
type ImportResult struct {
	Inserted     int        `json:"inserted"`
	SkippedCount int        `json:"skippedCount"`
	Skipped      []RowIssue `json:"skipped"`
	FailedCount  int        `json:"failedCount"`
	Failed       []RowIssue `json:"failed"`
}

func (r *ImportResult) skip(idx int, raw []any, reason string) {
	r.Skipped = append(r.Skipped, RowIssue{RowIndex: idx + 1, Reason: reason, Row: raw})
	r.SkippedCount++
}

func (r *ImportResult) fail(idx int, raw []any, err error) {
	r.Failed = append(r.Failed, RowIssue{RowIndex: idx + 1, Reason: err.Error(), Row: raw})
	r.FailedCount++
}

// DecodeRows reads a JSON array of row arrays. A null row is an empty row.
// Numbers are kept as json.Number.
func DecodeRows(r io.Reader) ([][]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, invalidInput("payload must be an array of row arrays: %v", err)
	}
	rows := make([][]any, len(raw))
	for i, msg := range raw {
		row, err := decodeRow(msg)
		if err != nil {
			return nil, invalidInput("row %d is not an array", i+1)
		}
		rows[i] = row
	}
	return rows, nil
}

func decodeRow(msg json.RawMessage) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var row []any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	if row == nil {
		row = []any{}
	}
	return row, nil
}

// Import upserts rows into the target record set inside one transaction.
// Rows failing validation are skipped and rows the store rejects are
// reported as failed; neither aborts the batch. Only an engine error rolls
// the whole import back.
func (e *Engine) Import(ctx context.Context, target string, rows [][]any) (*ImportResult, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Skipped: []RowIssue{}, Failed: []RowIssue{}}
	err = e.run(ctx, "import", func(s *session) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if t == TargetSchools {
				return importSchools(ctx, tx, rows, res)
			}
			return importStudents(ctx, tx, rows, res)
		})
	})
	if err != nil {
		return nil, err
	}

	e.metrics.ImportRows(string(t), metrics.OutcomeInserted, res.Inserted)
	e.metrics.ImportRows(string(t), metrics.OutcomeSkipped, res.SkippedCount)
	e.metrics.ImportRows(string(t), metrics.OutcomeFailed, res.FailedCount)
	return res, nil
}

func importSchools(ctx context.Context, tx *sql.Tx, rows [][]any, res *ImportResult) error {
	for idx, raw := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells := normalizeRow(raw, store.SchoolColumns)
		if err := store.UpsertSchoolRow(ctx, tx, bindRow(cells)); err != nil {
			if isEngineFailure(err) {
				return errors.Wrapf(err, "import school row %d", idx+1)
			}
			res.fail(idx, rawRow(raw), err)
			continue
		}
		res.Inserted++
	}
	return nil
}

func importStudents(ctx context.Context, tx *sql.Tx, rows [][]any, res *ImportResult) error {
	codes, err := store.SchoolCodes(ctx, tx)
	if err != nil {
		return errors.Wrap(err, "import students")
	}

	for idx, raw := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells := normalizeRow(raw, store.StudentColumns)
		code, okCode := cellText(cells[0])
		nisn, okNISN := cellText(cells[studentNISNColumn])
		switch {
		case !okCode || !okNISN:
			res.skip(idx, rawRow(raw), "kodeBiasa/nisn is empty")
			continue
		case nisn == gradecodec.ReservedKey:
			res.skip(idx, rawRow(raw), fmt.Sprintf("nisn '%s' is reserved", nisn))
			continue
		}
		if _, ok := codes[code]; !ok {
			res.skip(idx, rawRow(raw), fmt.Sprintf("kodeBiasa '%s' not found in schools", code))
			continue
		}
		cells[0], cells[studentNISNColumn] = code, nisn
		cells[4] = coerceInteger(cells[4])

		if err := store.UpsertStudentRow(ctx, tx, bindRow(cells)); err != nil {
			if isEngineFailure(err) {
				return errors.Wrapf(err, "import student row %d", idx+1)
			}
			res.fail(idx, rawRow(raw), err)
			continue
		}
		res.Inserted++
	}
	return nil
}

// normalizeCell trims strings and maps "" and "NULL" (any case) to nil.
// Other values pass through.
func normalizeCell(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	t := strings.TrimSpace(s)
	if t == "" || strings.EqualFold(t, "NULL") {
		return nil
	}
	return t
}

// normalizeRow returns the first width cells of raw, normalized. Missing
// cells are nil.
func normalizeRow(raw []any, width int) []any {
	cells := make([]any, width)
	for i := 0; i < width && i < len(raw); i++ {
		cells[i] = normalizeCell(raw[i])
	}
	return cells
}

func rawRow(raw []any) []any {
	if raw == nil {
		return []any{}
	}
	return raw
}

// cellText renders a key cell as text. nil is absent.
func cellText(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case json.Number:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// coerceInteger truncates a numeric cell to an integer. Non-numeric cells
// are returned unchanged.
func coerceInteger(v any) any {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int64:
		return x
	case float64:
		f = x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		p, err := x.Float64()
		if err != nil {
			return x.String()
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return x
		}
		f = p
	default:
		return v
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}
	return int64(math.Trunc(f))
}

// bindValue converts decoded JSON values into driver arguments. Composite
// values are passed through so the driver rejects them for that row only.
func bindValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func bindRow(cells []any) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = bindValue(c)
	}
	return out
}

// isEngineFailure reports whether err means the connection or transaction is
// unusable, as opposed to the store rejecting one row.
func isEngineFailure(err error) bool {
	return errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, sql.ErrTxDone) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
