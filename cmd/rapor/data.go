package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/rapor"
)

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the database",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := a.engine.Counts(cmd.Context())
			if err != nil {
				return a.outputError("init", err)
			}
			return a.outputResult(CLIResult{Command: "init", Results: counts})
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	var header bool
	cmd := &cobra.Command{
		Use:   "import <sekolah|siswa> <file.json|file.csv|->",
		Short: "Bulk import positional rows into schools or students",
		Long: "Reads a JSON array of row arrays (or CSV records from a .csv file) and upserts them. " +
			"Rows with an empty key or a dangling school are skipped; rows the database rejects are failed. " +
			"Neither stops the batch.",
		Args: checkArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rapor.ParseTarget(args[0]); err != nil {
				return a.outputError("import", err)
			}
			rows, err := a.readRows(args[1], header)
			if err != nil {
				return a.outputError("import", err)
			}
			res, err := a.engine.Import(cmd.Context(), args[0], rows)
			if err != nil {
				return a.outputError("import", err)
			}
			return a.outputResult(CLIResult{Command: "import", Results: res, TotalCount: intPtr(len(rows))})
		},
	}
	cmd.Flags().BoolVar(&header, "header", false, "skip the first CSV record")
	return cmd
}

func (a *app) deleteAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-all <sekolah|siswa>",
		Short: "Delete every school or student, refusing while dependent records exist",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := a.engine.DeleteAll(cmd.Context(), args[0])
			if err != nil {
				return a.outputError("delete-all", err)
			}
			return a.outputResult(CLIResult{Command: "delete-all", Results: CLIMessage{Message: msg}})
		},
	}
}

func (a *app) truncateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "truncate <sekolah|siswa>",
		Short: "Delete every school or student together with their dependent records",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := a.engine.Truncate(cmd.Context(), args[0])
			if err != nil {
				return a.outputError("truncate", err)
			}
			return a.outputResult(CLIResult{Command: "truncate", Results: CLIMessage{Message: msg}})
		},
	}
}

func (a *app) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup.json|->",
		Short: "Replace every record set with the contents of a backup payload",
		Args:  checkArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openInput(args[0])
			if err != nil {
				return a.outputError("restore", err)
			}
			defer r.Close()

			snap, err := rapor.DecodeSnapshot(r)
			if err != nil {
				return a.outputError("restore", err)
			}
			res, err := a.engine.Restore(cmd.Context(), snap)
			if err != nil {
				return a.outputError("restore", err)
			}
			return a.outputResult(CLIResult{Command: "restore", Results: res})
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var school string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the full data view, optionally scoped to one school",
		Args:  checkArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data *rapor.FullData
				err  error
			)
			if cmd.Flags().Changed("school") {
				data, err = a.engine.FetchSchool(cmd.Context(), school)
			} else {
				data, err = a.engine.FetchAll(cmd.Context())
			}
			if err != nil {
				return a.outputError("export", err)
			}
			return a.outputResult(CLIResult{Command: "export", Results: data})
		},
	}
	cmd.Flags().StringVar(&school, "school", "", "limit the view to one school code")
	return cmd
}
