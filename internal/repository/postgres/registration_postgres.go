package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"docregistry/internal/model"
	"docregistry/internal/repository"
)

const registrationsTable = "registrations"

var registrationColumns = []string{
	"attempt_id", "doc_hash", "state", "blob_key", "blob_url", "file_name", "file_size", "mime_type",
	"tx_hash", "document_id", "registered_at", "abort_reason", "created_at", "updated_at",
}

// RegistrationPostgres is a PostgreSQL implementation of repository.RegistrationRepository.
// Queries are built with squirrel and run through database/sql.
type RegistrationPostgres struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// NewRegistrationPostgres creates a new RegistrationPostgres repository.
func NewRegistrationPostgres(db *sql.DB, log *slog.Logger) *RegistrationPostgres {
	if log == nil {
		log = slog.Default()
	}
	return &RegistrationPostgres{db: db, log: log, now: time.Now}
}

var _ repository.RegistrationRepository = (*RegistrationPostgres)(nil)

func (r *RegistrationPostgres) qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func (r *RegistrationPostgres) logSQL(op, query string, args []interface{}) {
	r.log.Debug("sql", slog.String("op", op), slog.String("query", query), slog.Int("args", len(args)))
}

// Create inserts a new attempt row.
func (r *RegistrationPostgres) Create(ctx context.Context, reg *model.Registration) error {
	now := r.now().UTC()
	if reg.State == "" {
		reg.State = model.RegistrationBlobStored
	}
	reg.CreatedAt, reg.UpdatedAt = now, now

	q := r.qb().Insert(registrationsTable).
		Columns("attempt_id", "doc_hash", "state", "blob_key", "blob_url", "file_name", "file_size", "mime_type", "created_at", "updated_at").
		Values(reg.AttemptID, reg.DocHash, string(reg.State), reg.BlobKey, reg.BlobURL, reg.FileName, reg.FileSize, reg.MimeType, now, now)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	r.logSQL("Create", query, args)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (r *RegistrationPostgres) MarkSubmitted(ctx context.Context, attemptID, txHash string) error {
	q := r.qb().Update(registrationsTable).
		Set("state", string(model.RegistrationSubmitted)).
		Set("tx_hash", txHash).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"attempt_id": attemptID})
	return r.execUpdate(ctx, "MarkSubmitted", q)
}

func (r *RegistrationPostgres) MarkConfirmed(ctx context.Context, attemptID, documentID string, registeredAt int64) error {
	q := r.qb().Update(registrationsTable).
		Set("state", string(model.RegistrationConfirmed)).
		Set("document_id", documentID).
		Set("registered_at", registeredAt).
		Set("abort_reason", "").
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"attempt_id": attemptID})
	return r.execUpdate(ctx, "MarkConfirmed", q)
}

func (r *RegistrationPostgres) MarkAborted(ctx context.Context, attemptID string, state model.RegistrationState, reason string) error {
	if state != model.RegistrationAborted && state != model.RegistrationIndeterminate {
		return fmt.Errorf("invalid abort state %q", state)
	}
	q := r.qb().Update(registrationsTable).
		Set("state", string(state)).
		Set("abort_reason", reason).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"attempt_id": attemptID})
	return r.execUpdate(ctx, "MarkAborted", q)
}

func (r *RegistrationPostgres) MarkOrphaned(ctx context.Context, attemptID, reason string) error {
	q := r.qb().Update(registrationsTable).
		Set("state", string(model.RegistrationOrphaned)).
		Set("abort_reason", reason).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"attempt_id": attemptID})
	return r.execUpdate(ctx, "MarkOrphaned", q)
}

func (r *RegistrationPostgres) execUpdate(ctx context.Context, op string, q sq.UpdateBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("%s: build update: %w", op, err)
	}
	r.logSQL(op, query, args)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// FindConfirmedByDocumentID returns the latest confirmed attempt for a registry id.
func (r *RegistrationPostgres) FindConfirmedByDocumentID(ctx context.Context, documentID string) (*model.Registration, error) {
	q := r.qb().Select(registrationColumns...).
		From(registrationsTable).
		Where(sq.And{
			sq.Eq{"document_id": documentID},
			sq.Eq{"state": string(model.RegistrationConfirmed)},
		}).
		OrderBy("updated_at DESC").
		Limit(1)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	r.logSQL("FindConfirmedByDocumentID", query, args)

	reg, err := scanRegistration(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// ListUnsettled returns attempts the reconciler has not settled yet.
func (r *RegistrationPostgres) ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]model.Registration, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.qb().Select(registrationColumns...).
		From(registrationsTable).
		Where(sq.And{
			sq.Eq{"state": []string{
				string(model.RegistrationSubmitted),
				string(model.RegistrationIndeterminate),
				string(model.RegistrationAborted),
			}},
			sq.Lt{"updated_at": olderThan.UTC()},
		}).
		OrderBy("updated_at ASC").
		Limit(uint64(limit))

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	r.logSQL("ListUnsettled", query, args)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var (
		reg   model.Registration
		state string
	)
	if err := row.Scan(
		&reg.AttemptID,
		&reg.DocHash,
		&state,
		&reg.BlobKey,
		&reg.BlobURL,
		&reg.FileName,
		&reg.FileSize,
		&reg.MimeType,
		&reg.TxHash,
		&reg.DocumentID,
		&reg.RegisteredAt,
		&reg.AbortReason,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	reg.State = model.RegistrationState(state)
	return &reg, nil
}
