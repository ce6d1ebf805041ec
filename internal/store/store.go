package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Driver names accepted by NewStore.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// Record set table names, in dependency order (parents first).
const (
	TableSchools    = "schools"
	TableStudents   = "students"
	TableGrades     = "grades"
	TablePhotos     = "photos"
	TableSettings   = "settings"
	TableMulokNames = "mulok_names"
)

// AllTables lists every record table, parents first.
var AllTables = []string{TableSchools, TableStudents, TableGrades, TablePhotos, TableSettings, TableMulokNames}

// Store is the SQLite data access layer for the six record tables.
type Store struct {
	db     *sql.DB
	driver string
}

// NewStore opens a SQLite database at dbPath with WAL mode and foreign keys
// enabled. An empty driver selects DriverCGO.
func NewStore(dbPath, driver string) (*Store, error) {
	dsn, err := dataSourceName(dbPath, driver)
	if err != nil {
		return nil, err
	}
	if driver == "" {
		driver = DriverCGO
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

func dataSourceName(dbPath, driver string) (string, error) {
	switch driver {
	case "", DriverCGO:
		return dbPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000", nil
	case DriverPureGo:
		return dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)", nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// Conn acquires a dedicated connection from the pool. The caller must Close
// it to return it to the pool.
func (s *Store) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return conn, nil
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Grades and photos keep an AUTOINCREMENT surrogate id so that their
// sqlite_sequence entries can be reclaimed after bulk deletes.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS schools (
  kode_biasa           TEXT NOT NULL PRIMARY KEY,
  kode_pro             TEXT,
  kecamatan            TEXT,
  npsn                 TEXT,
  nama_sekolah_lengkap TEXT,
  nama_sekolah_singkat TEXT
);

CREATE TABLE IF NOT EXISTS students (
  nisn          TEXT NOT NULL PRIMARY KEY,
  kode_biasa    TEXT NOT NULL REFERENCES schools(kode_biasa) ON UPDATE CASCADE,
  kode_pro      TEXT,
  nama_sekolah  TEXT,
  kecamatan     TEXT,
  no_urut       INTEGER,
  no_induk      TEXT,
  no_peserta    TEXT,
  nama_peserta  TEXT,
  ttl           TEXT,
  nama_ortu     TEXT,
  no_ijazah     TEXT,
  jk            TEXT
);

CREATE TABLE IF NOT EXISTS grades (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  nisn      TEXT NOT NULL REFERENCES students(nisn) ON UPDATE CASCADE,
  semester  TEXT NOT NULL,
  subject   TEXT NOT NULL,
  type      TEXT NOT NULL,
  value,
  UNIQUE (nisn, semester, subject, type)
);

CREATE TABLE IF NOT EXISTS photos (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  nisn        TEXT NOT NULL UNIQUE REFERENCES students(nisn) ON UPDATE CASCADE,
  photo_data  TEXT
);

CREATE TABLE IF NOT EXISTS settings (
  kode_biasa     TEXT NOT NULL PRIMARY KEY,
  settings_json  TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS mulok_names (
  kode_biasa  TEXT NOT NULL,
  mulok_key   TEXT NOT NULL,
  mulok_name  TEXT,
  PRIMARY KEY (kode_biasa, mulok_key)
);

CREATE INDEX IF NOT EXISTS idx_students_school ON students(kode_biasa);
CREATE INDEX IF NOT EXISTS idx_grades_nisn ON grades(nisn);
CREATE INDEX IF NOT EXISTS idx_grades_semester ON grades(semester);
`
