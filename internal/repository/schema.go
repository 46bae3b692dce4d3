package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"entgo.io/ent/dialect"
)

const (
	tableExtractJob = "extract_job"
	tableUploadFile = "upload_file"
	tableAppSecret  = "app_secret"
)

// {{ts}} is replaced with the dialect's timestamp type.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS extract_job (
		id              TEXT PRIMARY KEY,
		request_id      TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		file_count      INTEGER NOT NULL DEFAULT 0,
		companies       TEXT NOT NULL DEFAULT '',
		ocr_chars       INTEGER NOT NULL DEFAULT 0,
		row_count       INTEGER NOT NULL DEFAULT 0,
		output_filename TEXT,
		drive_url       TEXT,
		error_message   TEXT,
		started_at      {{ts}} NOT NULL,
		finished_at     {{ts}}
	)`,
	`CREATE INDEX IF NOT EXISTS extract_job_started_at_idx ON extract_job (started_at)`,
	`CREATE TABLE IF NOT EXISTS upload_file (
		id           TEXT PRIMARY KEY,
		job_id       TEXT NOT NULL REFERENCES extract_job (id) ON DELETE CASCADE,
		filename     TEXT NOT NULL,
		file_ext     TEXT NOT NULL,
		file_size    BIGINT NOT NULL,
		content_hash TEXT NOT NULL,
		company      TEXT NOT NULL DEFAULT '',
		uploaded_at  {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS upload_file_job_id_idx ON upload_file (job_id)`,
	`CREATE INDEX IF NOT EXISTS upload_file_content_hash_idx ON upload_file (content_hash)`,
	`CREATE TABLE IF NOT EXISTS app_secret (
		secret_id  TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
}

// Migrate creates the tables when they do not exist yet.
func (d *DB) Migrate(ctx context.Context, logger *slog.Logger) error {
	ts := "TIMESTAMP"
	if d.dialect == dialect.Postgres {
		ts = "TIMESTAMPTZ"
	}
	for _, stmt := range schemaDDL {
		if _, err := d.sqlDB().ExecContext(ctx, strings.ReplaceAll(stmt, "{{ts}}", ts)); err != nil {
			logger.Error("schema migration failed", "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("schema up to date", "dialect", d.dialect)
	return nil
}
