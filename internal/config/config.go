// Package config resolves server settings from flags, the environment and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StoreREST     = "rest"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreFile     = "file"
)

// DefaultGeminiModel is used when neither flag nor environment names a model.
const DefaultGeminiModel = "gemini-2.0-flash-exp"

// Config holds the settings of the lumi MCP server.
type Config struct {
	SupabaseURL            string `validate:"omitempty,url"`
	SupabaseServiceRoleKey string
	SupabaseAnonKey        string
	GeminiAPIKey           string `validate:"required"`
	GeminiModel            string `validate:"required"`
	Store                  string `validate:"oneof=rest postgres sqlite file"`
	DatabaseURL            string
	SQLitePath             string
	DataFile               string
	MetricsAddr            string `validate:"omitempty,hostname_port"`
	LogMode                string `validate:"oneof=dev prod"`
}

// SupabaseKey returns the service role key when set, otherwise the anon key.
func (c Config) SupabaseKey() string {
	if c.SupabaseServiceRoleKey != "" {
		return c.SupabaseServiceRoleKey
	}
	return c.SupabaseAnonKey
}

// Options are explicit values, usually from flags. Empty fields fall back to the environment.
type Options struct {
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseAnonKey        string
	GeminiAPIKey           string
	GeminiModel            string
	Store                  string
	DatabaseURL            string
	SQLitePath             string
	DataFile               string
	MetricsAddr            string
	LogMode                string
}

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateBackend, Config{})
	return v
}

// validateBackend checks the settings each storage backend needs. A Supabase URL
// always needs a key, whichever store is selected.
func validateBackend(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if (c.Store == StoreREST || c.SupabaseURL != "") && c.SupabaseKey() == "" {
		sl.ReportError(c.SupabaseServiceRoleKey, "SupabaseServiceRoleKey", "SupabaseServiceRoleKey", "required_without", "SupabaseAnonKey")
	}
	switch c.Store {
	case StoreREST:
		if c.SupabaseURL == "" {
			sl.ReportError(c.SupabaseURL, "SupabaseURL", "SupabaseURL", "required", "")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			sl.ReportError(c.DatabaseURL, "DatabaseURL", "DatabaseURL", "required", "")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			sl.ReportError(c.SQLitePath, "SQLitePath", "SQLitePath", "required", "")
		}
	case StoreFile:
		if c.DataFile == "" {
			sl.ReportError(c.DataFile, "DataFile", "DataFile", "required", "")
		}
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_without":
		return fe.Field() + " or " + fe.Param() + " is required"
	case "url":
		return fmt.Sprintf("%s %q is not a valid URL", fe.Field(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag())
	}
}

// Validate checks c and returns a *ValidationError describing every problem.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.Problems = append(verr.Problems, describe(fe))
	}
	return verr
}

func pick(explicit string, getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

// Resolve fills every setting from opts, then getenv, then defaults, and validates the result.
func Resolve(opts Options, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Config{
		SupabaseURL:            pick(opts.SupabaseURL, getenv, "SUPABASE_URL", ""),
		SupabaseServiceRoleKey: pick(opts.SupabaseServiceRoleKey, getenv, "SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseAnonKey:        pick(opts.SupabaseAnonKey, getenv, "SUPABASE_ANON_KEY", ""),
		GeminiAPIKey:           pick(opts.GeminiAPIKey, getenv, "GEMINI_API_KEY", ""),
		GeminiModel:            pick(opts.GeminiModel, getenv, "GEMINI_MODEL", DefaultGeminiModel),
		DatabaseURL:            pick(opts.DatabaseURL, getenv, "DATABASE_URL", ""),
		SQLitePath:             pick(opts.SQLitePath, getenv, "LUMI_SQLITE_PATH", "./lumi.db"),
		DataFile:               pick(opts.DataFile, getenv, "LUMI_DATA_FILE", "./lumi.json"),
		MetricsAddr:            pick(opts.MetricsAddr, getenv, "LUMI_METRICS_ADDR", ""),
		LogMode:                pick(opts.LogMode, getenv, "LOG_MODE", "dev"),
	}
	cfg.Store = pick(opts.Store, getenv, "LUMI_STORE", defaultStore(cfg))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// defaultStore prefers the hosted REST API, then a direct database connection, then a local file.
func defaultStore(c Config) string {
	switch {
	case c.SupabaseURL != "":
		return StoreREST
	case c.DatabaseURL != "":
		return StorePostgres
	default:
		return StoreFile
	}
}

// LoadEnvFile loads path into the process environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load parses args as flags, loads the .env file they name and resolves the configuration.
func Load(args []string) (Config, error) {
	fset := flag.NewFlagSet("lumi", flag.ContinueOnError)
	var opts Options
	envFile := fset.String("env-file", ".env", "Path to a .env file to load")
	fset.StringVar(&opts.SupabaseURL, "supabase-url", "", "Supabase project URL (SUPABASE_URL)")
	fset.StringVar(&opts.SupabaseServiceRoleKey, "supabase-service-role-key", "", "Supabase service role key (SUPABASE_SERVICE_ROLE_KEY)")
	fset.StringVar(&opts.SupabaseAnonKey, "supabase-anon-key", "", "Supabase anon key (SUPABASE_ANON_KEY)")
	fset.StringVar(&opts.GeminiAPIKey, "gemini-api-key", "", "Gemini API key (GEMINI_API_KEY)")
	fset.StringVar(&opts.GeminiModel, "gemini-model", "", "Default Gemini model (GEMINI_MODEL)")
	fset.StringVar(&opts.Store, "store", "", "Storage backend: rest, postgres, sqlite or file (LUMI_STORE)")
	fset.StringVar(&opts.DatabaseURL, "database-url", "", "Postgres DSN for the postgres store (DATABASE_URL)")
	fset.StringVar(&opts.SQLitePath, "sqlite-path", "", "Database path for the sqlite store (LUMI_SQLITE_PATH)")
	fset.StringVar(&opts.DataFile, "file", "", "Data file for the file store (LUMI_DATA_FILE)")
	fset.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (LUMI_METRICS_ADDR)")
	fset.StringVar(&opts.LogMode, "log-mode", "", "Logging mode: dev or prod (LOG_MODE)")
	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	if err := LoadEnvFile(*envFile); err != nil {
		return Config{}, err
	}
	return Resolve(opts, os.Getenv)
}
