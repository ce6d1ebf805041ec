package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jward/rapor"
	"github.com/jward/rapor/internal/config"
	"github.com/jward/rapor/internal/metrics"
)

// Exit codes by error kind.
const (
	exitOK       = 0
	exitEngine   = 1
	exitClient   = 2
	exitConflict = 3
	exitNotFound = 4
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// app carries the per-invocation state shared by every command.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Recorder
	engine  *rapor.Engine

	stdin          io.Reader
	stdout, stderr io.Writer

	// errorHandled is set by outputError so run doesn't double-print.
	errorHandled bool
}

// run executes one CLI invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{v: config.New(), stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.finish()
	if err != nil {
		if !a.errorHandled {
			fmt.Fprintf(stderr, "Error: %s\n", err)
		}
		return exitCode(err)
	}
	return exitOK
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rapor",
		Short:         "School report-card records: import, bulk delete, restore and export",
		Long:          "Rapor keeps schools, students, grades, certificate photos and per-school settings in one SQLite database.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		// No Run; prints help by default.
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
	if err := config.BindFlags(a.v, root.PersistentFlags()); err != nil {
		panic(err)
	}

	root.AddCommand(a.initCmd())
	root.AddCommand(a.importCmd())
	root.AddCommand(a.deleteAllCmd())
	root.AddCommand(a.truncateCmd())
	root.AddCommand(a.restoreCmd())
	root.AddCommand(a.exportCmd())
	root.AddCommand(a.schoolsCmd())
	root.AddCommand(a.studentsCmd())
	root.AddCommand(a.gradesCmd())
	root.AddCommand(a.settingsCmd())
	root.AddCommand(a.photoCmd())
	return root
}

// setup loads the configuration and opens the engine.
func (a *app) setup() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	if err := config.LoadDotEnv(a.v, cwd, config.Env()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return usageError{err}
	}
	logger, err := cfg.Logger(a.stderr)
	if err != nil {
		return usageError{err}
	}
	a.cfg, a.logger, a.metrics = cfg, logger, metrics.New()

	a.engine, err = rapor.New(cfg.DB,
		rapor.WithLogger(a.logger),
		rapor.WithMetrics(a.metrics),
		rapor.WithReclaim(cfg.Reclaim),
		rapor.WithDriver(cfg.Driver),
	)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.DB, err)
	}
	return nil
}

// finish closes the engine and writes the metrics textfile when configured.
func (a *app) finish() {
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.logger.Warn("closing database", "error", err)
		}
	}
	if a.cfg == nil || a.cfg.Metrics.File == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.File); err != nil {
		a.logger.Warn("writing metrics", "file", a.cfg.Metrics.File, "error", err)
	}
}

// usageError marks bad flags, arguments or configuration.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return exitClient
	}
	switch rapor.KindOf(err) {
	case rapor.KindInvalidInput:
		return exitClient
	case rapor.KindConflict:
		return exitConflict
	case rapor.KindNotFound:
		return exitNotFound
	}
	return exitEngine
}

// checkArgs wraps a cobra positional-argument check so its failures exit as
// client errors.
func checkArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := check(cmd, a); err != nil {
			return usageError{err}
		}
		return nil
	}
}
