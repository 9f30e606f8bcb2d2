// Package service implements the document registration, verification, lookup
// and listing use cases on top of the registry, blob store and journal.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"docregistry/internal/config"
	"docregistry/internal/logging"
	"docregistry/internal/model"
	"docregistry/internal/registry"
	"docregistry/internal/repository"
	"docregistry/internal/storage"
)

var tracer = otel.Tracer("docregistry/internal/service")

const (
	defaultPageLimit  = 50
	maxPageLimit      = 100
	healthCheckBudget = 5 * time.Second
)

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Register hashes, dedups, stores and registers a document on-chain.
	// Failures are *AbortError values wrapping one of the taxonomy sentinels.
	Register(ctx context.Context, r io.Reader, fileName, contentType string, size int64) (*model.DocumentRecord, error)

	// Verify re-hashes a file and reports whether the registry knows it.
	Verify(ctx context.Context, r io.Reader, contentType string, size int64) (*model.VerificationResult, error)

	// Get returns the registry record for a decimal id.
	Get(ctx context.Context, id string) (*model.DocumentRecord, error)

	// List returns one page of registry records in ascending id order.
	List(ctx context.Context, page, limit int) (*model.DocumentPage, error)

	// Health reports registry and blob store reachability.
	Health(ctx context.Context) model.HealthStatus
}

// Options wires the collaborators of the document service.
type Options struct {
	Registry registry.Registry
	Store    storage.Storage
	Journal  repository.RegistrationRepository
	Logger   *slog.Logger
	Metrics  *Metrics

	MaxFileSize     int64
	ConfirmTimeout  time.Duration
	ListParallelism int
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	registry registry.Registry
	store    storage.Storage
	journal  repository.RegistrationRepository
	log      *slog.Logger
	metrics  *Metrics

	maxFileSize     int64
	confirmTimeout  time.Duration
	listParallelism int
	now             func() time.Time
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(opts Options) DocumentService {
	s := &documentService{
		registry:        opts.Registry,
		store:           opts.Store,
		journal:         opts.Journal,
		log:             opts.Logger,
		metrics:         opts.Metrics,
		maxFileSize:     opts.MaxFileSize,
		confirmTimeout:  opts.ConfirmTimeout,
		listParallelism: opts.ListParallelism,
		now:             time.Now,
	}
	if s.journal == nil {
		s.journal = repository.Nop{}
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.maxFileSize <= 0 {
		s.maxFileSize = config.DefaultMaxFileSize
	}
	if s.confirmTimeout <= 0 {
		s.confirmTimeout = 2 * time.Minute
	}
	if s.listParallelism <= 0 {
		s.listParallelism = 1
	}
	return s
}

// Get returns a document by its registry id, enriched with journal data when available.
func (s *documentService) Get(ctx context.Context, id string) (*model.DocumentRecord, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return nil, fmt.Errorf("%w: id must be a positive integer", ErrInvalidInput)
	}

	rec, err := s.registry.RecordByID(ctx, n)
	if err != nil {
		return nil, registryReadError(err)
	}
	if !rec.Exists {
		return nil, ErrNotFound
	}

	out := &model.DocumentRecord{
		ID:        strconv.FormatUint(rec.ID, 10),
		DocHash:   rec.DocHash.Hex(),
		CreatedAt: rec.CreatedAtMillis,
	}

	entry, err := s.journal.FindConfirmedByDocumentID(ctx, out.ID)
	switch {
	case err == nil && entry.DocHash == out.DocHash:
		out.TxHash = entry.TxHash
		out.BlobURL = entry.BlobURL
		out.BlobKey = entry.BlobKey
		out.FileName = entry.FileName
		out.FileSize = entry.FileSize
		out.MimeType = entry.MimeType
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		logging.FromContext(ctx, s.log).Warn("journal lookup failed",
			slog.String("document_id", out.ID), slog.Any("error", err))
	}
	return out, nil
}

// Health checks both backends concurrently within a fixed budget.
func (s *documentService) Health(ctx context.Context) model.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthCheckBudget)
	defer cancel()

	var (
		total      uint64
		chainErr   error
		storageErr error
		g          errgroup.Group
	)
	g.Go(func() error {
		total, chainErr = s.registry.TotalCount(ctx)
		return nil
	})
	g.Go(func() error {
		storageErr = s.store.Ping(ctx)
		return nil
	})
	_ = g.Wait()

	h := model.HealthStatus{
		Status:              "healthy",
		BlockchainReachable: chainErr == nil,
		StorageReachable:    storageErr == nil,
		Timestamp:           s.now().UTC().Format(time.RFC3339),
		TotalDocuments:      strconv.FormatUint(total, 10),
	}
	if !h.BlockchainReachable || !h.StorageReachable {
		h.Status = "degraded"
		s.log.Warn("health degraded", slog.Any("registry_error", chainErr), slog.Any("storage_error", storageErr))
	}
	return h
}

// registryReadError maps a failed registry read onto the taxonomy.
func registryReadError(err error) error {
	return fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
}
