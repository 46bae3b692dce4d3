package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("USE_LOCAL_ENV", "true")
	cfg := LoadConfig()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.App.MaxFileCount)
	assert.Equal(t, DefaultOutputFilename, cfg.App.OutputFilename)
	assert.Equal(t, DefaultDriveFolderID, cfg.App.DriveFolderID)
	assert.Equal(t, "gemini-2.5-flash", cfg.OCR.Model)
	assert.InDelta(t, 0.7, cfg.OCR.Temperature, 1e-6)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	assert.Equal(t, 24*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, 5*time.Minute, cfg.Secrets.CacheTTL)
	assert.True(t, cfg.Secrets.UseLocalEnv)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DB_URL", "postgres://u:p@localhost/bills")
	t.Setenv("MAX_FILE_COUNT", "3")
	t.Setenv("SESSION_MAX_AGE", "60")
	t.Setenv("PIPELINE_TIMEOUT", "90s")
	t.Setenv("PIPELINE_GROUP_BY_FILE", "true")
	t.Setenv("EXTRACT_RATE", "0.5")
	t.Setenv("SESSION_SECRET_KEY", "s3cret")

	cfg := LoadConfig()
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.App.MaxFileCount)
	assert.Equal(t, time.Minute, cfg.Session.MaxAge)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.Timeout)
	assert.True(t, cfg.Pipeline.GroupByFile)
	assert.InDelta(t, 0.5, cfg.Server.ExtractRate, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestConfig_ValidateRejects(t *testing.T) {
	t.Setenv("USE_LOCAL_ENV", "false")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("OCR_BACKEND", "cloud")

	err := LoadConfig().Validate()
	require.Error(t, err)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, CodeConfig, appErr.Code)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "OCR_BACKEND")
	assert.Contains(t, err.Error(), "SESSION_SECRET_KEY")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BILL_TEST_FROM_DOTENV=hello\nBILL_TEST_PRESET=fromfile\n"), 0o600))
	t.Setenv("BILL_TEST_PRESET", "fromenv")
	t.Cleanup(func() { _ = os.Unsetenv("BILL_TEST_FROM_DOTENV") })

	loaded := LoadDotEnv(filepath.Join(dir, "missing.env"), path)

	assert.Equal(t, path, loaded)
	assert.Equal(t, "hello", os.Getenv("BILL_TEST_FROM_DOTENV"))
	assert.Equal(t, "fromenv", os.Getenv("BILL_TEST_PRESET"))
	assert.Equal(t, "", LoadDotEnv(filepath.Join(dir, "nope")))
}

func TestValidatorRules(t *testing.T) {
	v := NewValidator().
		Field("name", "  ", Required).
		Field("kind", "x", OneOf("a", "b")).
		Field("count", 0, Positive).
		Field("title", "abcdef", MaxLength(3))
	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 4)
	assert.True(t, IsValidation(v.Error()))

	ok := NewValidator().Field("name", "x", Required, MaxLength(3))
	assert.NoError(t, ok.Error())
}
