package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/rapor"
)

// --- Schools ---

func (a *app) schoolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schools",
		Short: "List and edit single schools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every school",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			schools, err := a.engine.ListSchools(cmd.Context())
			if err != nil {
				return a.outputError("schools list", err)
			}
			return a.outputResult(CLIResult{Command: "schools list", Results: schools, TotalCount: intPtr(len(schools))})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add <kodeBiasa> [kodePro] [kecamatan] [npsn] [namaLengkap] [namaSingkat]",
		Short: "Add one school",
		Args:  checkArgs(cobra.RangeArgs(1, 6)),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := rapor.SchoolFromRow(schoolRow(args))
			if err != nil {
				return a.outputError("schools add", err)
			}
			if err := a.engine.AddSchool(cmd.Context(), sc); err != nil {
				return a.outputError("schools add", err)
			}
			return a.outputResult(CLIResult{Command: "schools add", Results: sc})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "update <originalKode> <kodeBiasa> [kodePro] [kecamatan] [npsn] [namaLengkap] [namaSingkat]",
		Short: "Replace one school, renaming it when the code changes",
		Args:  checkArgs(cobra.RangeArgs(2, 7)),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := rapor.SchoolFromRow(schoolRow(args[1:]))
			if err != nil {
				return a.outputError("schools update", err)
			}
			if err := a.engine.UpdateSchool(cmd.Context(), args[0], sc); err != nil {
				return a.outputError("schools update", err)
			}
			return a.outputResult(CLIResult{Command: "schools update", Results: sc})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <kodeBiasa>",
		Short: "Delete one school without students",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.engine.DeleteSchool(cmd.Context(), args[0]); err != nil {
				return a.outputError("schools delete", err)
			}
			msg := fmt.Sprintf("school '%s' deleted", args[0])
			return a.outputResult(CLIResult{Command: "schools delete", Results: CLIMessage{Message: msg}})
		},
	})
	return cmd
}

// schoolRow pads positional arguments to a full school row; missing
// positions are NULL.
func schoolRow(args []string) []any {
	row := make([]any, 6)
	for i, v := range args {
		row[i] = v
	}
	return row
}

// --- Students ---

func (a *app) studentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "students",
		Short: "List and edit single students",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list <kodeBiasa>",
		Short: "List the students of one school",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			students, err := a.engine.StudentsBySchool(cmd.Context(), args[0])
			if err != nil {
				return a.outputError("students list", err)
			}
			return a.outputResult(CLIResult{Command: "students list", Results: students, TotalCount: intPtr(len(students))})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "update <nisn> <field=value>...",
		Short: "Update fields of one student (nis, noPeserta, nisn, namaPeserta, ttl, namaOrtu, noIjazah)",
		Args:  checkArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := parseAssignments(args[1:])
			if err != nil {
				return a.outputError("students update", err)
			}
			if err := a.engine.UpdateStudent(cmd.Context(), args[0], updates); err != nil {
				return a.outputError("students update", err)
			}
			msg := fmt.Sprintf("student '%s' updated", args[0])
			return a.outputResult(CLIResult{Command: "students update", Results: CLIMessage{Message: msg}})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <nisn>",
		Short: "Delete one student with their grades and photo",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.engine.DeleteStudent(cmd.Context(), args[0]); err != nil {
				return a.outputError("students delete", err)
			}
			msg := fmt.Sprintf("student '%s' deleted", args[0])
			return a.outputResult(CLIResult{Command: "students delete", Results: CLIMessage{Message: msg}})
		},
	})
	return cmd
}

// parseAssignments turns field=value arguments into an update map. A bare
// "field=" sets the field to NULL.
func parseAssignments(args []string) (map[string]any, error) {
	updates := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, usageError{fmt.Errorf("invalid assignment %q: want field=value", arg)}
		}
		if v == "" {
			updates[k] = nil
			continue
		}
		updates[k] = v
	}
	return updates, nil
}

// --- Grades ---

func (a *app) gradesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grades",
		Short: "Write and clear grades",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <nisn> <semester> <subject> <type> [value]",
		Short: "Upsert one grade; a missing value stores the empty string",
		Args:  checkArgs(cobra.RangeArgs(4, 5)),
		RunE: func(cmd *cobra.Command, args []string) error {
			g := rapor.GradeInput{NISN: args[0], Semester: args[1], Subject: args[2], Type: args[3]}
			if len(args) == 5 {
				g.Value = gradeValue(args[4])
			}
			if err := a.engine.SaveGrade(cmd.Context(), g); err != nil {
				return a.outputError("grades set", err)
			}
			return a.outputResult(CLIResult{Command: "grades set", Results: g})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "bulk <grades.json|->",
		Short: "Upsert a JSON array of {nisn, semester, subject, type, value} in one transaction",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openInput(args[0])
			if err != nil {
				return a.outputError("grades bulk", err)
			}
			defer r.Close()

			var grades []rapor.GradeInput
			dec := json.NewDecoder(r)
			dec.UseNumber()
			if err := dec.Decode(&grades); err != nil {
				return a.outputError("grades bulk", usageError{fmt.Errorf("decoding grades: %w", err)})
			}
			n, err := a.engine.SaveGrades(cmd.Context(), grades)
			if err != nil {
				return a.outputError("grades bulk", err)
			}
			msg := fmt.Sprintf("%d grades saved", n)
			return a.outputResult(CLIResult{Command: "grades bulk", Results: CLIMessage{Message: msg}, TotalCount: intPtr(n)})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete-semester <kodeBiasa> <semester>",
		Short: "Delete one semester's grades for every student of a school",
		Args:  checkArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.engine.DeleteGradesBySemester(cmd.Context(), args[0], args[1])
			if err != nil {
				return a.outputError("grades delete-semester", err)
			}
			msg := fmt.Sprintf("semester %s grades deleted for school '%s'", args[1], args[0])
			return a.outputResult(CLIResult{Command: "grades delete-semester", Results: CLIMessage{Message: msg, Count: &n}})
		},
	})
	return cmd
}

// gradeValue keeps numeric grades numeric.
func gradeValue(s string) any {
	n := json.Number(s)
	if _, err := n.Float64(); err == nil {
		return n
	}
	return s
}

// --- Settings & photos ---

// settingsInput is the payload of "settings set".
type settingsInput struct {
	Settings   map[string]any    `json:"settings"`
	MulokNames map[string]string `json:"mulokNames"`
}

func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Edit per-school settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <kodeBiasa> <settings.json|->",
		Short: `Merge {"settings": {...}, "mulokNames": {...}} into one school's settings`,
		Args:  checkArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openInput(args[1])
			if err != nil {
				return a.outputError("settings set", err)
			}
			defer r.Close()

			var in settingsInput
			dec := json.NewDecoder(r)
			dec.UseNumber()
			if err := dec.Decode(&in); err != nil {
				return a.outputError("settings set", usageError{fmt.Errorf("decoding settings: %w", err)})
			}
			if err := a.engine.SaveSettings(cmd.Context(), args[0], in.Settings, in.MulokNames); err != nil {
				return a.outputError("settings set", err)
			}
			msg := fmt.Sprintf("settings saved for school '%s' (%d display names)", args[0], len(in.MulokNames))
			return a.outputResult(CLIResult{Command: "settings set", Results: CLIMessage{Message: msg}})
		},
	})
	return cmd
}

func (a *app) photoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photo",
		Short: "Store and remove certificate photos",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <nisn> <data-url-file|->",
		Short: "Store one student's photo from a file holding its data URL",
		Args:  checkArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readText(args[1])
			if err != nil {
				return a.outputError("photo set", err)
			}
			if err := a.engine.SavePhoto(cmd.Context(), args[0], data); err != nil {
				return a.outputError("photo set", err)
			}
			msg := fmt.Sprintf("photo saved for student '%s'", args[0])
			return a.outputResult(CLIResult{Command: "photo set", Results: CLIMessage{Message: msg}})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <nisn>",
		Short: "Remove one student's photo",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.engine.DeletePhoto(cmd.Context(), args[0]); err != nil {
				return a.outputError("photo delete", err)
			}
			msg := fmt.Sprintf("photo removed for student '%s'", args[0])
			return a.outputResult(CLIResult{Command: "photo delete", Results: CLIMessage{Message: msg}})
		},
	})
	return cmd
}
