// Package config loads CLI and engine settings from defaults, an optional
// .env.<env> file, RAPOR_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "RAPOR"

// Setting keys.
const (
	KeyDB          = "db"
	KeyDriver      = "driver"
	KeyReclaim     = "reclaim"
	KeyLogLevel    = "log.level"
	KeyLogFormat   = "log.format"
	KeyMetricsFile = "metrics.file"
	KeyFormat      = "format"
)

type Config struct {
	DB      string        `mapstructure:"db" validate:"required"`
	Driver  string        `mapstructure:"driver" validate:"oneof=sqlite3 sqlite"`
	Reclaim bool          `mapstructure:"reclaim"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Format  string        `mapstructure:"format" validate:"oneof=json text"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type MetricsConfig struct {
	// File receives the Prometheus text exposition after each command when
	// set.
	File string `mapstructure:"file"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New returns a viper instance carrying the defaults and reading RAPOR_*
// environment variables ("log.level" is RAPOR_LOG_LEVEL).
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault(KeyDB, "rapor.db")
	v.SetDefault(KeyDriver, "sqlite3")
	v.SetDefault(KeyReclaim, true)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyMetricsFile, "")
	v.SetDefault(KeyFormat, "json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Env returns the deployment environment name from RAPOR_ENV, defaulting to
// "dev".
func Env() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(EnvPrefix + "_ENV")))
	if env == "" {
		return "dev"
	}
	return env
}

// LoadDotEnv reads dir/.env.<env> when it exists. Its RAPOR_* entries become
// defaults, so real environment variables and flags still win. A missing
// file is not an error.
func LoadDotEnv(v *viper.Viper, dir, env string) error {
	path := filepath.Join(dir, ".env."+env)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	vals, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	for name, val := range vals {
		key, ok := keyFromEnv(name)
		if !ok {
			continue
		}
		v.SetDefault(key, val)
	}
	return nil
}

func keyFromEnv(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, EnvPrefix+"_")
	if !ok || rest == "" || rest == "ENV" {
		return "", false
	}
	return strings.ReplaceAll(strings.ToLower(rest), "_", "."), true
}

// BindFlags defines the persistent CLI flags on fs and binds them to their
// keys. A flag overrides the environment only when given explicitly.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("db", "rapor.db", "database path")
	fs.String("driver", "sqlite3", "database driver: sqlite3 (cgo) | sqlite (pure Go)")
	fs.Bool("reclaim", true, "reset id sequences and VACUUM after bulk deletes")
	fs.String("log-level", "info", "log level: debug|info|warn|error")
	fs.String("log-format", "text", "log format: text|json")
	fs.String("metrics-file", "", "write Prometheus metrics to this file after each command")
	fs.String("format", "json", "output format: json|text")

	for key, flag := range map[string]string{
		KeyDB:          "db",
		KeyDriver:      "driver",
		KeyReclaim:     "reclaim",
		KeyLogLevel:    "log-level",
		KeyLogFormat:   "log-format",
		KeyMetricsFile: "metrics-file",
		KeyFormat:      "format",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag --%s: %w", flag, err)
		}
	}
	return nil
}

// Load resolves and validates the settings.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Format = strings.ToLower(cfg.Format)
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Logger builds the structured logger described by the log settings,
// writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.Log.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
