package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/entity"
	"github.com/joseph-ayodele/bill-extractor/internal/repository"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var ids = common.SecretsConfig{
	IDGoogleKey:     "g",
	IDOpenAIKey:     "o",
	IDAdminPassword: "p",
	IDDriveFolder:   "d",
}

type countingRepo struct {
	repository.SecretRepository
	gets int
	err  error
}

func (r *countingRepo) Get(ctx context.Context, id string) (*entity.Secret, error) {
	r.gets++
	if r.err != nil {
		return nil, r.err
	}
	return r.SecretRepository.Get(ctx, id)
}

func newRepo(t *testing.T) repository.SecretRepository {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.Config{Driver: repository.DriverSQLite, DSN: ":memory:"}, discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(discard()) })
	require.NoError(t, db.Migrate(context.Background(), discard()))
	return repository.NewSecretRepository(db, discard())
}

func TestKeyPreview(t *testing.T) {
	assert.Equal(t, "", KeyPreview(""))
	assert.Equal(t, "****", KeyPreview("abcd"))
	assert.Equal(t, "...2345", KeyPreview("sk-012345"))
}

func TestManager_StoredSecretsAreCached(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{SecretRepository: newRepo(t)}
	m := NewManager(ids, "default-folder", repo, discard())

	v, err := m.GoogleAPIKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)
	assert.False(t, m.KeysConfigured(ctx))

	require.NoError(t, m.Set(ctx, "g", "AIza-google-1234"))
	require.NoError(t, m.Set(ctx, "o", "sk-openai-9999"))
	repo.gets = 0

	for i := 0; i < 3; i++ {
		v, err = m.GoogleAPIKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, "AIza-google-1234", v)
	}
	assert.Equal(t, 0, repo.gets)
	assert.True(t, m.KeysConfigured(ctx))

	// a fresh manager reads through to the table
	m2 := NewManager(ids, "default-folder", repo, discard())
	v, err = m2.OpenAIAPIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-openai-9999", v)
	assert.Equal(t, 1, repo.gets)
}

func TestManager_CacheExpires(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{SecretRepository: newRepo(t)}
	cfg := ids
	cfg.CacheTTL = 20 * time.Millisecond
	m := NewManager(cfg, "", repo, discard())
	require.NoError(t, m.Set(ctx, "p", "pw"))

	time.Sleep(60 * time.Millisecond)
	v, err := m.AdminPassword(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pw", v)
	assert.Equal(t, 1, repo.gets)
}

func TestManager_DriveFolderFallback(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ids, "default-folder", newRepo(t), discard())

	v, err := m.DriveFolderID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default-folder", v)

	require.NoError(t, m.SetDriveFolderID(ctx, "  custom  "))
	v, err = m.DriveFolderID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "custom", v)
}

func TestManager_LocalMode(t *testing.T) {
	ctx := context.Background()
	cfg := ids
	cfg.UseLocalEnv = true
	cfg.GoogleAPIKey = "env-google"
	cfg.AdminPassword = "env-pw"
	repo := &countingRepo{err: errors.New("must not be called")}
	m := NewManager(cfg, "env-folder", repo, discard())

	s, err := m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, s.GoogleConfigured)
	assert.False(t, s.OpenAIConfigured)
	assert.Equal(t, "...ogle", s.GooglePreview)
	assert.Equal(t, "env-folder", s.DriveFolderID)

	require.NoError(t, m.Set(ctx, "o", "sk-local"))
	v, err := m.OpenAIAPIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-local", v)
	assert.Equal(t, 0, repo.gets)
}

func TestManager_RepoErrors(t *testing.T) {
	m := NewManager(ids, "", &countingRepo{err: errors.New("db down")}, discard())
	_, err := m.GoogleAPIKey(context.Background())
	assert.Error(t, err)
	assert.False(t, m.KeysConfigured(context.Background()))
}

func TestSecretID(t *testing.T) {
	m := NewManager(ids, "", nil, discard())
	id, ok := m.SecretID("google")
	assert.True(t, ok)
	assert.Equal(t, "g", id)
	_, ok = m.SecretID("aws")
	assert.False(t, ok)
}
