// Package secrets stores API keys and admin settings with a short-lived cache.
package secrets

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/repository"
)

// Manager reads secrets through a TTL cache. In local mode values come from
// the environment and Set only updates the cache.
type Manager struct {
	cfg           common.SecretsConfig
	defaultFolder string
	repo          repository.SecretRepository
	cache         *expirable.LRU[string, string]
	logger        *slog.Logger
}

func NewManager(cfg common.SecretsConfig, defaultFolder string, repo repository.SecretRepository, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Manager{
		cfg:           cfg,
		defaultFolder: defaultFolder,
		repo:          repo,
		cache:         expirable.NewLRU[string, string](64, nil, cfg.CacheTTL),
		logger:        logger,
	}
}

// Get returns the value of secretID, or "" when it is not set.
func (m *Manager) Get(ctx context.Context, secretID string) (string, error) {
	if v, ok := m.cache.Get(secretID); ok {
		return v, nil
	}
	if m.cfg.UseLocalEnv {
		return m.localValue(secretID), nil
	}

	s, err := m.repo.Get(ctx, secretID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", nil
		}
		m.logger.Error("secrets.get_failed", "secret_id", secretID, "error", err)
		return "", err
	}
	m.cache.Add(secretID, s.Value)
	return s.Value, nil
}

// Set stores a new value for secretID.
func (m *Manager) Set(ctx context.Context, secretID, value string) error {
	if !m.cfg.UseLocalEnv {
		if err := m.repo.Put(ctx, secretID, value); err != nil {
			m.logger.Error("secrets.set_failed", "secret_id", secretID, "error", err)
			return err
		}
	}
	m.cache.Add(secretID, value)
	m.logger.Info("secrets.updated", "secret_id", secretID, "local", m.cfg.UseLocalEnv)
	return nil
}

func (m *Manager) localValue(secretID string) string {
	switch secretID {
	case m.cfg.IDGoogleKey:
		return m.cfg.GoogleAPIKey
	case m.cfg.IDOpenAIKey:
		return m.cfg.OpenAIAPIKey
	case m.cfg.IDAdminPassword:
		return m.cfg.AdminPassword
	case m.cfg.IDDriveFolder:
		return m.defaultFolder
	}
	return ""
}

func (m *Manager) GoogleAPIKey(ctx context.Context) (string, error) {
	return m.Get(ctx, m.cfg.IDGoogleKey)
}

func (m *Manager) OpenAIAPIKey(ctx context.Context) (string, error) {
	return m.Get(ctx, m.cfg.IDOpenAIKey)
}

func (m *Manager) AdminPassword(ctx context.Context) (string, error) {
	return m.Get(ctx, m.cfg.IDAdminPassword)
}

// DriveFolderID falls back to the configured folder when none is stored.
func (m *Manager) DriveFolderID(ctx context.Context) (string, error) {
	v, err := m.Get(ctx, m.cfg.IDDriveFolder)
	if err != nil || v == "" {
		return m.defaultFolder, err
	}
	return v, nil
}

// SecretID maps an admin form key type (google, openai) to its secret id.
func (m *Manager) SecretID(keyType string) (string, bool) {
	switch keyType {
	case "google":
		return m.cfg.IDGoogleKey, true
	case "openai":
		return m.cfg.IDOpenAIKey, true
	}
	return "", false
}

func (m *Manager) SetDriveFolderID(ctx context.Context, folderID string) error {
	return m.Set(ctx, m.cfg.IDDriveFolder, strings.TrimSpace(folderID))
}

// Status is what the admin page shows about the stored keys.
type Status struct {
	GoogleConfigured bool
	OpenAIConfigured bool
	GooglePreview    string
	OpenAIPreview    string
	DriveFolderID    string
}

func (m *Manager) Status(ctx context.Context) (Status, error) {
	g, err := m.GoogleAPIKey(ctx)
	if err != nil {
		return Status{}, err
	}
	o, err := m.OpenAIAPIKey(ctx)
	if err != nil {
		return Status{}, err
	}
	folder, err := m.DriveFolderID(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		GoogleConfigured: g != "",
		OpenAIConfigured: o != "",
		GooglePreview:    KeyPreview(g),
		OpenAIPreview:    KeyPreview(o),
		DriveFolderID:    folder,
	}, nil
}

// KeysConfigured reports whether both API keys are set.
func (m *Manager) KeysConfigured(ctx context.Context) bool {
	s, err := m.Status(ctx)
	return err == nil && s.GoogleConfigured && s.OpenAIConfigured
}

// KeyPreview masks a key down to its last four characters.
func KeyPreview(value string) string {
	r := []rune(value)
	switch {
	case len(r) == 0:
		return ""
	case len(r) <= 4:
		return "****"
	default:
		return "..." + string(r[len(r)-4:])
	}
}
