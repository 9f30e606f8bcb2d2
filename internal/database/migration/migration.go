// Package migration creates the registration journal schema on first start.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_registrations",
		SQL: `CREATE TABLE IF NOT EXISTS registrations (
  attempt_id    UUID        PRIMARY KEY,
  doc_hash      CHAR(64)    NOT NULL,
  state         TEXT        NOT NULL,
  blob_key      TEXT        NOT NULL,
  blob_url      TEXT        NOT NULL,
  file_name     TEXT        NOT NULL,
  file_size     BIGINT      NOT NULL CHECK (file_size > 0),
  mime_type     TEXT        NOT NULL,
  tx_hash       TEXT        NOT NULL DEFAULT '',
  document_id   TEXT        NOT NULL DEFAULT '',
  registered_at BIGINT      NOT NULL DEFAULT 0,
  abort_reason  TEXT        NOT NULL DEFAULT '',
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_registrations_doc_hash",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_registrations_doc_hash ON registrations (doc_hash);`,
	},
	{
		Name: "create_index_registrations_document_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_registrations_document_id ON registrations (document_id) WHERE state = 'confirmed';`,
	},
	{
		Name: "create_index_registrations_state_updated_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_registrations_state_updated_at ON registrations (state, updated_at);`,
	},
}

// EnsureMigrated checks if the 'registrations' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	start := time.Now()
	log = log.With(slog.String("component", "database"))

	log.Info("db_migration_check", slog.String("status", "starting"))

	var exists bool
	query := "SELECT to_regclass('public.registrations') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			slog.String("status", "error"),
			slog.String("error_message", fmt.Sprintf("failed to check sentinel table: %v", err)),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			slog.String("status", "success"),
			slog.String("detail", "schema already exists, skipping migration"),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	log.Info("db_migration_start", slog.String("status", "in_progress"))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				slog.String("status", "error"),
				slog.String("migration_step", step.Name),
				slog.String("error_message", err.Error()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			slog.String("status", "success"),
			slog.String("migration_step", step.Name),
			slog.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success",
		slog.String("status", "success"),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
