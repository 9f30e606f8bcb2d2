package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docregistry/internal/hasher"
	"docregistry/internal/logging"
	"docregistry/internal/model"
	"docregistry/internal/registry"
	"docregistry/internal/storage"
)

// registration tracks one pass through the workflow.
type registration struct {
	svc       *documentService
	log       *slog.Logger
	span      trace.Span
	state     State
	entered   time.Time
	docHash   string
	txHash    string
	attemptID string
}

func (s *documentService) Register(ctx context.Context, r io.Reader, fileName, contentType string, size int64) (*model.DocumentRecord, error) {
	ctx, span := tracer.Start(ctx, "document.register")
	defer span.End()

	run := &registration{
		svc:     s,
		log:     logging.FromContext(ctx, s.log),
		span:    span,
		state:   StateValidating,
		entered: s.now(),
	}

	body, mimeType, err := readUpload(r, contentType, size, s.maxFileSize)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, run.abort(ctx, ErrInvalidInput, err)
		}
		return nil, run.abort(ctx, nil, err)
	}

	digest := hasher.Sum(body)
	run.docHash = digest.Hex()
	run.advance(StateHashComputed)

	exists, err := s.registry.ExistsByHash(ctx, digest)
	if err != nil {
		return nil, run.abort(ctx, ErrRegistryUnavailable, err)
	}
	if exists {
		return nil, run.abort(ctx, ErrDuplicate, nil)
	}
	run.advance(StateDuplicateChecked)

	key := blobKey(digest, fileName)
	info, err := s.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutObjectOptions{
		ContentType: mimeType,
		Metadata: map[string]string{
			"original-filename": fileName,
			"doc-hash":          run.docHash,
		},
	})
	if err != nil {
		return nil, run.abort(ctx, ErrStorageFailure, err)
	}
	run.advance(StateBlobStored)
	run.journalCreate(ctx, &model.Registration{
		DocHash:  run.docHash,
		BlobKey:  info.Key,
		BlobURL:  info.URL,
		FileName: fileName,
		FileSize: int64(len(body)),
		MimeType: mimeType,
	})

	pending, err := s.registry.Submit(ctx, digest)
	if err != nil {
		if errors.Is(err, registry.ErrRejected) {
			return nil, run.abort(ctx, run.rejectedReason(ctx, digest), err)
		}
		return nil, run.abort(ctx, ErrRegistryUnavailable, err)
	}
	run.txHash = pending.TxHash
	run.advance(StateSubmitted)
	run.journal(ctx, "mark submitted", func(ctx context.Context) error {
		return s.journal.MarkSubmitted(ctx, run.attemptID, pending.TxHash)
	})

	// The transaction is already broadcast: a client disconnect must not cut the wait short.
	confirmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.confirmTimeout)
	defer cancel()
	conf, err := s.registry.Confirm(confirmCtx, pending)
	if err != nil {
		if errors.Is(err, registry.ErrRejected) {
			return nil, run.abort(ctx, run.rejectedReason(ctx, digest), err)
		}
		return nil, run.abort(ctx, ErrConfirmationIndeterminate, err)
	}
	run.advance(StateConfirmed)

	id := strconv.FormatUint(conf.ID, 10)
	run.journal(ctx, "mark confirmed", func(ctx context.Context) error {
		return s.journal.MarkConfirmed(ctx, run.attemptID, id, conf.CreatedAtMillis)
	})

	rec := &model.DocumentRecord{
		ID:        id,
		DocHash:   run.docHash,
		CreatedAt: conf.CreatedAtMillis,
		TxHash:    conf.TxHash,
		BlobURL:   info.URL,
		BlobKey:   info.Key,
		FileName:  fileName,
		FileSize:  int64(len(body)),
		MimeType:  mimeType,
	}
	run.advance(StateAssembled)
	s.metrics.outcome(nil)
	run.log.Info("document registered",
		slog.String("doc_hash", run.docHash),
		slog.String("document_id", id),
		slog.String("tx_hash", conf.TxHash),
		slog.Uint64("block", conf.BlockNumber),
	)
	span.SetAttributes(attribute.String("document.id", id))
	return rec, nil
}

// rejectedReason runs the compensating duplicate check after a revert.
// A revert for a hash that is now registered means another writer won the race.
func (run *registration) rejectedReason(ctx context.Context, digest hasher.Digest) error {
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthCheckBudget)
	defer cancel()
	exists, err := run.svc.registry.ExistsByHash(checkCtx, digest)
	if err != nil {
		run.log.Warn("compensating duplicate check failed", slog.String("doc_hash", run.docHash), slog.Any("error", err))
		return ErrRegistryRejected
	}
	if exists {
		return ErrDuplicate
	}
	return ErrRegistryRejected
}

func (run *registration) advance(next State) {
	now := run.svc.now()
	run.svc.metrics.stage(next, now.Sub(run.entered))
	run.log.Debug("registration state",
		slog.String("state", string(next)),
		slog.String("from", string(run.state)),
		slog.String("doc_hash", run.docHash),
	)
	run.span.AddEvent(string(next))
	run.state = next
	run.entered = now
}

// abort ends the workflow. The journal entry, if any, records whether the
// outcome is settled (aborted) or may still change on-chain (indeterminate).
func (run *registration) abort(ctx context.Context, reason, cause error) error {
	e := &AbortError{State: run.state, Reason: reason, DocHash: run.docHash, TxHash: run.txHash, Err: cause}

	if run.attemptID != "" {
		state := "aborted"
		if errors.Is(reason, ErrConfirmationIndeterminate) {
			state = "indeterminate"
		}
		run.journal(ctx, "mark "+state, func(ctx context.Context) error {
			return run.svc.journal.MarkAborted(ctx, run.attemptID, model.RegistrationState(state), Code(e))
		})
	}

	run.svc.metrics.outcome(e)
	run.span.SetStatus(codes.Error, Code(e))
	run.span.SetAttributes(attribute.String("registration.state", string(run.state)))

	attrs := []any{
		slog.String("state", string(run.state)),
		slog.String("reason", Code(e)),
		slog.String("doc_hash", run.docHash),
	}
	if run.txHash != "" {
		attrs = append(attrs, slog.String("tx_hash", run.txHash))
	}
	if cause != nil {
		attrs = append(attrs, slog.Any("error", cause))
	}
	if reason == nil || errors.Is(reason, ErrConfirmationIndeterminate) {
		run.log.Error("registration aborted", attrs...)
	} else {
		run.log.Warn("registration aborted", attrs...)
	}
	return e
}

func (run *registration) journalCreate(ctx context.Context, entry *model.Registration) {
	entry.AttemptID = uuid.NewString()
	entry.State = model.RegistrationBlobStored
	if err := run.svc.journal.Create(context.WithoutCancel(ctx), entry); err != nil {
		run.log.Warn("journal create failed", slog.String("doc_hash", run.docHash), slog.Any("error", err))
		return
	}
	run.attemptID = entry.AttemptID
}

// journal runs a journal update. Failures never change the workflow outcome.
func (run *registration) journal(ctx context.Context, op string, fn func(context.Context) error) {
	if run.attemptID == "" {
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		run.log.Warn("journal "+op+" failed",
			slog.String("attempt_id", run.attemptID),
			slog.String("doc_hash", run.docHash),
			slog.Any("error", err),
		)
	}
}

// blobKey places each upload under its content hash with a unique leaf name.
func blobKey(digest hasher.Digest, fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(fileName, "\\", "/"))))
	if len(ext) > 16 {
		ext = ""
	}
	return fmt.Sprintf("documents/%s/%s%s", digest.Hex(), uuid.NewString(), ext)
}
