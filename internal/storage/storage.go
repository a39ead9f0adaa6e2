package storage

import (
	"context"
	"errors"

	"xprobe/internal/storage/models"
	pkgerrors "xprobe/pkg/errors"
)

// Well-known setting keys.
const (
	// SettingRawConfig holds the user's raw configuration: an xray JSON
	// document, a share link or a subscription body.
	SettingRawConfig = "raw_config"
	// SettingRawConfigSource records where raw_config came from.
	SettingRawConfigSource = "raw_config_source"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Probe history
	RecordProbe(ctx context.Context, result *models.ProbeResult) error
	GetLatestProbe(ctx context.Context) (*models.ProbeResult, error)
	GetProbeHistory(ctx context.Context, limit int) ([]*models.ProbeResult, error)
	PruneProbeHistory(ctx context.Context, keep int) (int64, error)

	// Settings operations
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
	GetAllSettings(ctx context.Context) (map[string]string, error)

	// Active connection
	SetActiveConnection(ctx context.Context, conn *models.ActiveConnection) error
	GetActiveConnection(ctx context.Context) (*models.ActiveConnection, error)
	ClearActiveConnection(ctx context.Context) error

	// Transactions
	BeginTx(ctx context.Context) (Transaction, error)

	// Close closes the storage connection
	Close() error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Storage
}

// RawConfigSource reads the raw configuration setting on every call.
type RawConfigSource struct {
	store Storage
}

// NewRawConfigSource creates a RawConfigSource over store.
func NewRawConfigSource(store Storage) *RawConfigSource {
	return &RawConfigSource{store: store}
}

// RawConfiguration returns the stored raw configuration, or "" when unset.
func (s *RawConfigSource) RawConfiguration(ctx context.Context) (string, error) {
	raw, err := s.store.GetSetting(ctx, SettingRawConfig)
	if errors.Is(err, pkgerrors.ErrSettingNotFound) {
		return "", nil
	}
	return raw, err
}
