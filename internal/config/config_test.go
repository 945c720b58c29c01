package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestResolveFromEnvironment(t *testing.T) {
	cfg, err := Resolve(Options{}, env(map[string]string{
		"SUPABASE_URL":      "https://abc.supabase.co",
		"SUPABASE_ANON_KEY": "anon",
		"GEMINI_API_KEY":    "gemini",
	}))
	require.NoError(t, err)

	assert.Equal(t, StoreREST, cfg.Store)
	assert.Equal(t, "anon", cfg.SupabaseKey())
	assert.Equal(t, DefaultGeminiModel, cfg.GeminiModel)
	assert.Equal(t, "dev", cfg.LogMode)
}

func TestResolveOptionsOverrideEnvironment(t *testing.T) {
	cfg, err := Resolve(Options{
		SupabaseServiceRoleKey: "service",
		GeminiModel:            "gemini-1.5-pro",
	}, env(map[string]string{
		"SUPABASE_URL":              "https://abc.supabase.co",
		"SUPABASE_SERVICE_ROLE_KEY": "env-service",
		"SUPABASE_ANON_KEY":         "anon",
		"GEMINI_API_KEY":            "gemini",
		"GEMINI_MODEL":              "gemini-2.0-flash",
	}))
	require.NoError(t, err)

	assert.Equal(t, "service", cfg.SupabaseKey())
	assert.Equal(t, "gemini-1.5-pro", cfg.GeminiModel)
}

func TestResolveValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		problem string
	}{
		{
			name:    "invalid url",
			env:     map[string]string{"SUPABASE_URL": "not a url", "SUPABASE_ANON_KEY": "k", "GEMINI_API_KEY": "g"},
			problem: "is not a valid URL",
		},
		{
			name:    "no supabase key",
			env:     map[string]string{"SUPABASE_URL": "https://abc.supabase.co", "GEMINI_API_KEY": "g"},
			problem: "SupabaseServiceRoleKey or SupabaseAnonKey is required",
		},
		{
			name: "postgres store with supabase url but no key",
			env: map[string]string{
				"LUMI_STORE":     "postgres",
				"DATABASE_URL":   "postgres://u:p@localhost/lumi",
				"SUPABASE_URL":   "https://abc.supabase.co",
				"GEMINI_API_KEY": "g",
			},
			problem: "SupabaseServiceRoleKey or SupabaseAnonKey is required",
		},
		{
			name:    "file store with supabase url but no key",
			env:     map[string]string{"LUMI_STORE": "file", "SUPABASE_URL": "https://abc.supabase.co", "GEMINI_API_KEY": "g"},
			problem: "SupabaseServiceRoleKey or SupabaseAnonKey is required",
		},
		{
			name:    "rest store without url",
			env:     map[string]string{"LUMI_STORE": "rest", "SUPABASE_ANON_KEY": "k", "GEMINI_API_KEY": "g"},
			problem: "SupabaseURL is required",
		},
		{
			name:    "postgres store without dsn",
			env:     map[string]string{"LUMI_STORE": "postgres", "GEMINI_API_KEY": "g"},
			problem: "DatabaseURL is required",
		},
		{
			name:    "unknown store",
			env:     map[string]string{"LUMI_STORE": "mongo", "GEMINI_API_KEY": "g"},
			problem: "Store must be one of",
		},
		{
			name:    "missing gemini key",
			env:     map[string]string{"LUMI_STORE": "file"},
			problem: "GeminiAPIKey is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(Options{}, env(tt.env))
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Error(), tt.problem)
		})
	}
}

func TestResolveLocalStores(t *testing.T) {
	cfg, err := Resolve(Options{}, env(map[string]string{"GEMINI_API_KEY": "g"}))
	require.NoError(t, err)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, "./lumi.json", cfg.DataFile)

	cfg, err = Resolve(Options{}, env(map[string]string{"GEMINI_API_KEY": "g", "DATABASE_URL": "postgres://u:p@localhost/lumi"}))
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store)

	cfg, err = Resolve(Options{Store: "sqlite", SQLitePath: "/tmp/x.db"}, env(map[string]string{"GEMINI_API_KEY": "g"}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
}

func TestLoadReadsFlagsAndEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LUMI_TEST_ONLY_GEMINI=unused\n"), 0644))

	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LUMI_STORE", "")

	cfg, err := Load([]string{"-env-file", envPath, "-store", "file", "-file", "/tmp/lumi.json", "-log-mode", "prod"})
	require.NoError(t, err)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, "/tmp/lumi.json", cfg.DataFile)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.Equal(t, "from-env", cfg.GeminiAPIKey)
	assert.Equal(t, "unused", os.Getenv("LUMI_TEST_ONLY_GEMINI"))
	os.Unsetenv("LUMI_TEST_ONLY_GEMINI")
}

func TestLoadEnvFileMissingIsIgnored(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, LoadEnvFile(""))
}

func TestResolveMailer(t *testing.T) {
	cfg, err := ResolveMailer(env(map[string]string{
		"SMTP_USER": "lumi@gmail.com",
		"SMTP_PASS": "app-password",
	}))
	require.NoError(t, err)
	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTPHost)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, "lumi@gmail.com", cfg.MailFrom)

	_, err = ResolveMailer(env(map[string]string{"MAIL_FROM": "lumi@example.com"}))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "SMTPUser")

	cfg, err = ResolveMailer(env(map[string]string{
		"MAIL_TRANSPORT": "ses",
		"MAIL_FROM":      "lumi@example.com",
		"AWS_REGION":     "us-east-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, TransportSES, cfg.Transport)
}

func TestNewLogger(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		logger, err := NewLogger(mode)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}
}
