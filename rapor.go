package rapor

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jward/rapor/internal/metrics"
	"github.com/jward/rapor/internal/store"
)

// Engine runs the record operations against one SQLite database.
type Engine struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics.Recorder
	driver  string

	// reclaim enables sequence reset and VACUUM after bulk deletes.
	reclaim bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records operation outcomes on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithReclaim controls post-commit maintenance after bulk deletes. Enabled
// by default.
func WithReclaim(reclaim bool) Option {
	return func(e *Engine) {
		e.reclaim = reclaim
	}
}

// WithDriver selects the database/sql driver: "sqlite3" (mattn, default) or
// "sqlite" (modernc, pure Go).
func WithDriver(driver string) Option {
	return func(e *Engine) {
		e.driver = driver
	}
}

// New creates an Engine backed by a SQLite database at dbPath and migrates
// the schema.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:  slog.New(slog.DiscardHandler),
		driver:  store.DriverCGO,
		reclaim: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	s, err := store.NewStore(dbPath, e.driver)
	if err != nil {
		return nil, errors.Wrap(err, "rapor: create store")
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "rapor: migrate")
	}
	e.store = s
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Counts returns the number of rows in every table.
func (e *Engine) Counts(ctx context.Context) (map[string]int64, error) {
	var counts map[string]int64
	err := e.run(ctx, "counts", func(s *session) error {
		var err error
		counts, err = store.Counts(ctx, s.conn)
		return errors.Wrap(err, "count records")
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// session is the request-scoped state of one operation.
type session struct {
	conn *sql.Conn
	log  *slog.Logger
}

// run acquires a connection for one operation, hands it to fn and releases
// it on every exit path. The outcome is logged and recorded.
func (e *Engine) run(ctx context.Context, op string, fn func(s *session) error) (err error) {
	start := time.Now()
	log := e.logger.With(slog.String("op", op), slog.String("op_id", uuid.NewString()))

	defer func() {
		kind := KindOf(err)
		e.metrics.Operation(op, resultLabel(err, kind), time.Since(start))
		switch {
		case err == nil:
			log.Debug("operation done", slog.Duration("took", time.Since(start)))
		case kind == KindEngine:
			log.Error("operation failed", slog.Any("error", err))
		default:
			log.Info("operation refused", slog.String("kind", kind.String()), slog.String("reason", err.Error()))
		}
	}()

	conn, err := e.store.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, op)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warn("release connection", slog.Any("error", cerr))
		}
	}()

	return fn(&session{conn: conn, log: log})
}

func resultLabel(err error, kind Kind) string {
	if err == nil {
		return metrics.ResultOK
	}
	switch kind {
	case KindInvalidInput:
		return metrics.ResultInvalidInput
	case KindConflict:
		return metrics.ResultConflict
	case KindNotFound:
		return metrics.ResultNotFound
	}
	return metrics.ResultError
}

// inTx runs fn inside one transaction on the session's connection. The
// transaction commits when fn returns nil and is rolled back otherwise. A
// failed rollback is logged and never replaces the primary error.
func (s *session) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			s.log.Warn("rollback failed", slog.Any("error", rerr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	committed = true
	return nil
}

// maintain resets the sequences of tables and vacuums the database. It runs
// after commit, and its failures are logged and swallowed.
func (e *Engine) maintain(ctx context.Context, s *session, tables ...string) {
	if !e.reclaim {
		return
	}
	err := store.ReclaimSequences(ctx, s.conn, tables...)
	e.metrics.Reclaim("sequences", err)
	if err != nil {
		s.log.Warn("reclaim sequences", slog.Any("error", err))
	}
	err = store.Vacuum(ctx, s.conn)
	e.metrics.Reclaim("vacuum", err)
	if err != nil {
		s.log.Warn("vacuum", slog.Any("error", err))
	}
}
