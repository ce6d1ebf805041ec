package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jward/rapor"
)

// CLIResult is the top-level JSON envelope for every command.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// CLIMessage is the result of commands that only report what they did.
type CLIMessage struct {
	Message string `json:"message"`
	Count   *int64 `json:"count,omitempty"`
}

func intPtr(n int) *int { return &n }

// outputResult writes a CLIResult to stdout in the selected format.
func (a *app) outputResult(result CLIResult) error {
	if a.cfg != nil && a.cfg.Format == "text" {
		return outputResultText(a.stdout, result)
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (a *app) outputError(command string, err error) error {
	a.errorHandled = true
	if a.cfg == nil || a.cfg.Format == "text" {
		fmt.Fprintf(a.stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
		Kind:    kindName(err),
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// kindName labels err for the JSON envelope; usage errors are client input.
func kindName(err error) string {
	if exitCode(err) == exitClient {
		return rapor.KindInvalidInput.String()
	}
	return rapor.KindOf(err).String()
}

func outputResultText(w io.Writer, result CLIResult) error {
	switch r := result.Results.(type) {
	case CLIMessage:
		fmt.Fprintln(w, r.Message)
	case *rapor.ImportResult:
		formatImportText(w, r)
	case *rapor.RestoreResult:
		formatRestoreText(w, r)
	case []*rapor.School:
		formatSchoolsText(w, r)
	case []*rapor.Student:
		formatStudentsText(w, r)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return nil
}

// formatImportText prints the import counters followed by one line per
// skipped or failed row.
func formatImportText(w io.Writer, r *rapor.ImportResult) {
	fmt.Fprintf(w, "Inserted: %d\nSkipped:  %d\nFailed:   %d\n", r.Inserted, r.SkippedCount, r.FailedCount)
	if len(r.Skipped)+len(r.Failed) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tOUTCOME\tREASON")
	for _, s := range r.Skipped {
		fmt.Fprintf(tw, "%d\tskipped\t%s\n", s.RowIndex, s.Reason)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(tw, "%d\tfailed\t%s\n", f.RowIndex, f.Reason)
	}
	tw.Flush()
}

func formatRestoreText(w io.Writer, r *rapor.RestoreResult) {
	in := r.Inserted
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SET\tINSERTED")
	fmt.Fprintf(tw, "sekolah\t%d\n", in.Schools)
	fmt.Fprintf(tw, "siswa\t%d\n", in.Students)
	if in.Grades.ByObject {
		fmt.Fprintln(tw, "nilai\tby-object")
	} else {
		fmt.Fprintf(tw, "nilai\t%d\n", in.Grades.N)
	}
	fmt.Fprintf(tw, "skl_photos\t%d\n", in.Photos)
	fmt.Fprintf(tw, "settings\t%d\n", in.Settings)
	tw.Flush()
}

func formatSchoolsText(w io.Writer, schools []*rapor.School) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KODE\tKODE_PRO\tKECAMATAN\tNPSN\tNAMA")
	for _, s := range schools {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.KodeBiasa, text(s.KodePro), text(s.Kecamatan), text(s.NPSN), text(s.NamaSekolahLengkap))
	}
	tw.Flush()
}

func formatStudentsText(w io.Writer, students []*rapor.Student) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NO\tNISN\tNIS\tNAMA\tTTL\tNO_IJAZAH")
	for _, s := range students {
		fmt.Fprintf(tw, "%v\t%s\t%s\t%s\t%s\t%s\n",
			s.NoUrut, s.NISN, text(s.NoInduk), text(s.NamaPeserta), text(s.TTL), text(s.NoIjazah))
	}
	tw.Flush()
}

func text(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}
