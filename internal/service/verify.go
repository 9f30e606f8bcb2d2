package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"

	"docregistry/internal/hasher"
	"docregistry/internal/logging"
	"docregistry/internal/model"
)

// Verify applies the same upload gate as Register, then resolves the digest
// through the registry. An unknown hash is a valid verdict, not an error.
func (s *documentService) Verify(ctx context.Context, r io.Reader, contentType string, size int64) (*model.VerificationResult, error) {
	ctx, span := tracer.Start(ctx, "document.verify")
	defer span.End()

	body, _, err := readUpload(r, contentType, size, s.maxFileSize)
	if err != nil {
		return nil, err
	}
	digest := hasher.Sum(body)
	result := &model.VerificationResult{Hash: digest.Hex()}

	id, ok, err := s.registry.IDByHash(ctx, digest)
	if err != nil {
		return nil, registryReadError(err)
	}
	if !ok {
		return result, nil
	}

	rec, err := s.registry.RecordByID(ctx, id)
	if err != nil {
		return nil, registryReadError(err)
	}
	if !rec.Exists || rec.DocHash != digest {
		logging.FromContext(ctx, s.log).Warn("registry id does not resolve back to hash",
			slog.Uint64("document_id", id), slog.String("doc_hash", result.Hash))
		return nil, registryReadError(errors.New("inconsistent registry read"))
	}

	result.IsValid = true
	result.DocumentID = strconv.FormatUint(id, 10)
	result.RegisteredAt = rec.CreatedAtMillis
	return result, nil
}
