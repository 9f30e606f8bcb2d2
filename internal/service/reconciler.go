package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"docregistry/internal/hasher"
	"docregistry/internal/logging"
	"docregistry/internal/model"
	"docregistry/internal/registry"
	"docregistry/internal/repository"
	"docregistry/internal/storage"
)

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	Registry registry.Registry
	Store    storage.Storage
	Journal  repository.RegistrationRepository
	Logger   *slog.Logger

	// Grace is how long an attempt is left alone after its last update,
	// normally the confirmation timeout.
	Grace         time.Duration
	OrphanAfter   time.Duration
	DeleteOrphans bool
	BatchSize     int
}

// SweepResult counts what one pass settled.
type SweepResult struct {
	Confirmed int
	Orphaned  int
	Pending   int
	Failed    int
}

// Reconciler settles journal entries left behind by failed or indeterminate
// registrations: it confirms the ones the registry now knows and marks the
// rest as orphaned blobs once they are old enough.
type Reconciler struct {
	registry      registry.Registry
	store         storage.Storage
	journal       repository.RegistrationRepository
	log           *slog.Logger
	grace         time.Duration
	orphanAfter   time.Duration
	deleteOrphans bool
	batchSize     int
	now           func() time.Time
}

// NewReconciler wires the registry, blob store and journal for reconciliation.
func NewReconciler(opts ReconcilerOptions) *Reconciler {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Reconciler{
		registry:      opts.Registry,
		store:         opts.Store,
		journal:       opts.Journal,
		log:           log.With(slog.String("component", "reconciler")),
		grace:         opts.Grace,
		orphanAfter:   opts.OrphanAfter,
		deleteOrphans: opts.DeleteOrphans,
		batchSize:     opts.BatchSize,
		now:           time.Now,
	}
}

// Sweep performs one best-effort pass over a single batch of unsettled entries.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if r.registry == nil || r.journal == nil {
		return res, fmt.Errorf("reconciler missing dependencies")
	}
	limit := r.batchSize
	if limit <= 0 {
		limit = 100
	}

	entries, err := r.journal.ListUnsettled(ctx, r.now().Add(-r.grace), limit)
	if err != nil {
		return res, fmt.Errorf("list unsettled: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		outcome, err := r.settle(ctx, e)
		if err != nil {
			res.Failed++
			r.log.Warn("reconcile entry failed",
				slog.String("attempt_id", e.AttemptID),
				slog.String("doc_hash", e.DocHash),
				slog.Any("error", err),
			)
			continue
		}
		switch outcome {
		case model.RegistrationConfirmed:
			res.Confirmed++
		case model.RegistrationOrphaned:
			res.Orphaned++
		default:
			res.Pending++
		}
	}
	return res, nil
}

func (r *Reconciler) settle(ctx context.Context, e model.Registration) (model.RegistrationState, error) {
	if e.State == model.RegistrationAborted {
		return r.orphan(ctx, e, "registration aborted: "+e.AbortReason)
	}

	digest, err := hasher.Parse(e.DocHash)
	if err != nil {
		return "", err
	}
	id, ok, err := r.registry.IDByHash(ctx, digest)
	if err != nil {
		return "", err
	}
	if ok {
		rec, err := r.registry.RecordByID(ctx, id)
		if err != nil {
			return "", err
		}
		if !rec.Exists {
			return "", fmt.Errorf("registry id %d has no record", id)
		}
		docID := strconv.FormatUint(id, 10)
		// A second attempt for the same hash lost the race; its blob is not the registered one.
		winner, err := r.journal.FindConfirmedByDocumentID(ctx, docID)
		switch {
		case err == nil && winner.AttemptID != e.AttemptID:
			return r.orphan(ctx, e, "document "+docID+" confirmed by attempt "+winner.AttemptID)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return "", fmt.Errorf("find confirmed attempt: %w", err)
		}
		if err := r.journal.MarkConfirmed(ctx, e.AttemptID, docID, rec.CreatedAtMillis); err != nil {
			return "", err
		}
		r.log.Info("registration confirmed late",
			slog.String("attempt_id", e.AttemptID),
			slog.String("document_id", docID),
			slog.String("tx_hash", e.TxHash),
		)
		return model.RegistrationConfirmed, nil
	}

	if r.now().Sub(e.CreatedAt) < r.orphanAfter {
		return e.State, nil
	}
	return r.orphan(ctx, e, "no registry entry after "+r.orphanAfter.String())
}

func (r *Reconciler) orphan(ctx context.Context, e model.Registration, reason string) (model.RegistrationState, error) {
	if r.deleteOrphans && r.store != nil && e.BlobKey != "" {
		if err := r.store.Delete(ctx, e.BlobKey); err != nil {
			return "", fmt.Errorf("delete orphaned blob: %w", err)
		}
		reason += "; blob deleted"
	}
	if err := r.journal.MarkOrphaned(ctx, e.AttemptID, reason); err != nil {
		return "", err
	}
	r.log.Info("orphaned blob recorded",
		slog.String("attempt_id", e.AttemptID),
		slog.String("blob_key", e.BlobKey),
		slog.String("reason", reason),
	)
	return model.RegistrationOrphaned, nil
}

// Start launches a background sweep loop until ctx is canceled.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) context.CancelFunc {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			res, err := r.Sweep(ctx)
			switch {
			case err != nil && !errors.Is(err, context.Canceled):
				r.log.Error("reconcile sweep failed", slog.Any("error", err))
			case res.Confirmed+res.Orphaned+res.Failed > 0:
				r.log.Info("reconcile sweep",
					slog.Int("confirmed", res.Confirmed),
					slog.Int("orphaned", res.Orphaned),
					slog.Int("pending", res.Pending),
					slog.Int("failed", res.Failed),
				)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return cancel
}
