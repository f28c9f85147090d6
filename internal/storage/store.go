package storage

import (
	"context"
	"errors"

	"imagejob/internal/domain"
	"imagejob/internal/infra"
)

// Store persists artifacts by key.
type Store interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	// Location describes where a key lives, for humans.
	Location(key string) string
}

// SaveArtifact writes an artifact under <kind>/<handle><ext> and returns the key.
func SaveArtifact(ctx context.Context, store Store, kind domain.JobKind, artifact domain.Artifact) (string, error) {
	return store.Write(ctx, ArtifactKey(kind, artifact), artifact.Data)
}

// Mirror writes to a primary store and copies every write to a replica.
// Replica failures are logged, not returned. Reads that miss the primary
// are served from the replica.
type Mirror struct {
	primary Store
	replica Store
	logger  *infra.Logger
}

func NewMirror(primary, replica Store, logger *infra.Logger) *Mirror {
	return &Mirror{primary: primary, replica: replica, logger: logger}
}

func (m *Mirror) Write(ctx context.Context, key string, data []byte) (string, error) {
	clean, err := m.primary.Write(ctx, key, data)
	if err != nil {
		return "", err
	}
	if _, err := m.replica.Write(ctx, clean, data); err != nil && m.logger != nil {
		m.logger.Warn().Err(err).Str("key", clean).Msg("storage: mirror write failed")
	}
	return clean, nil
}

func (m *Mirror) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := m.primary.Read(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return m.replica.Read(ctx, key)
	}
	return data, err
}

func (m *Mirror) Location(key string) string {
	return m.primary.Location(key)
}

// Open builds the result store described by cfg: the local directory,
// mirrored to MinIO when an endpoint is configured.
func Open(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (Store, error) {
	local, err := NewFileStore(cfg.StoragePath)
	if err != nil {
		return nil, err
	}
	if !cfg.MinIO.Enabled() {
		return local, nil
	}
	remote, err := NewMinIOStore(ctx, cfg.MinIO)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info().Str("endpoint", cfg.MinIO.Endpoint).Str("bucket", cfg.MinIO.Bucket).Msg("storage: mirroring results to minio")
	}
	return NewMirror(local, remote, logger), nil
}
