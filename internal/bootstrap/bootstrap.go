// Package bootstrap builds the backends shared by the API server and the CLI
// from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"docregistry/internal/cache"
	"docregistry/internal/config"
	"docregistry/internal/database"
	"docregistry/internal/registry"
	"docregistry/internal/repository"
	"docregistry/internal/repository/postgres"
	"docregistry/internal/storage"
)

// Backends holds the opened collaborators of the document services.
// Store is nil unless requested. Journal is repository.Nop when no database
// is configured.
type Backends struct {
	Registry registry.Registry
	Store    storage.Storage
	Journal  repository.RegistrationRepository

	journalEnabled bool
	closers        []func()
}

// JournalEnabled reports whether a durable journal is attached.
func (b *Backends) JournalEnabled() bool { return b.journalEnabled }

// Close releases everything Open acquired, in reverse order.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Open dials the registry and, depending on configuration, the record cache,
// the blob store (when withStore is set) and the journal.
func Open(ctx context.Context, cfg *config.AppConfig, log *slog.Logger, withStore bool) (*Backends, error) {
	b := &Backends{Journal: repository.Nop{}}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	eth, err := registry.Dial(ctx, cfg.Chain)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	b.closers = append(b.closers, eth.Close)
	b.Registry = eth
	if !eth.CanSubmit() {
		log.Warn("no signing key configured, registry is read-only")
	}

	if cfg.Redis.Enabled() {
		rc := cache.NewRedis(cfg.Redis, log)
		if err := rc.Ping(ctx); err != nil {
			// Cache faults fall through to the chain, so a cold start without redis is fine.
			log.Warn("record cache unreachable", slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
		}
		b.closers = append(b.closers, rc.Close)
		b.Registry = registry.NewCached(eth, rc, cfg.Redis.TTL, log)
	}

	if withStore {
		store, err := OpenStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
		b.Store = store
	}

	if cfg.Database.Enabled() {
		db, err := database.OpenJournal(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		b.closers = append(b.closers, func() { closeDB(db, log) })
		b.Journal = postgres.NewRegistrationPostgres(db, log)
		b.journalEnabled = true
	}

	ok = true
	return b, nil
}

// OpenStore selects the blob backend named by BLOB_BACKEND.
func OpenStore(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch strings.ToLower(cfg.BlobBackend) {
	case "", "minio", "s3":
		return storage.NewMinIO(cfg.MinIO)
	case "gcs":
		return storage.NewGCS(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

func closeDB(db *sql.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("journal close failed", slog.Any("error", err))
	}
}
