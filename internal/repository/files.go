package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/entity"
)

type UploadFileRepository interface {
	Create(ctx context.Context, jobID uuid.UUID, filename, ext string, size int64, hashHex string) (*entity.UploadFile, error)
	SetCompany(ctx context.Context, fileID uuid.UUID, company string) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]entity.UploadFile, error)
	CountByHash(ctx context.Context, hashHex string) (int, error)
}

type uploadFileRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewUploadFileRepository(db *DB, logger *slog.Logger) UploadFileRepository {
	return &uploadFileRepo{db: db, logger: logger}
}

func (r *uploadFileRepo) Create(ctx context.Context, jobID uuid.UUID, filename, ext string, size int64, hashHex string) (*entity.UploadFile, error) {
	row := &entity.UploadFile{
		ID:          uuid.New(),
		JobID:       jobID,
		Filename:    filename,
		FileExt:     ext,
		FileSize:    size,
		ContentHash: hashHex,
		UploadedAt:  time.Now().UTC(),
	}
	ins := r.db.builder().Insert(tableUploadFile).
		Columns("id", "job_id", "filename", "file_ext", "file_size", "content_hash", "uploaded_at").
		Values(row.ID.String(), jobID.String(), filename, ext, size, hashHex, row.UploadedAt)
	if _, err := r.db.exec(ctx, ins); err != nil {
		r.logger.Error("failed to create upload file", "job_id", jobID, "filename", filename, "error", err)
		return nil, fmt.Errorf("%w: insert upload_file: %v", common.ErrDatabase, err)
	}
	return row, nil
}

func (r *uploadFileRepo) SetCompany(ctx context.Context, fileID uuid.UUID, company string) error {
	u := r.db.builder().Update(tableUploadFile).
		Set("company", company).
		Where(entsql.EQ("id", fileID.String()))
	if _, err := r.db.exec(ctx, u); err != nil {
		r.logger.Error("failed to set upload file company", "file_id", fileID, "error", err)
		return fmt.Errorf("%w: update upload_file: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *uploadFileRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]entity.UploadFile, error) {
	b := r.db.builder()
	q := b.Select("id", "job_id", "filename", "file_ext", "file_size", "content_hash", "company", "uploaded_at").
		From(b.Table(tableUploadFile)).
		Where(entsql.EQ("job_id", jobID.String())).
		OrderBy(entsql.Asc("uploaded_at"), entsql.Asc("filename"))
	rows, err := r.db.query(ctx, q)
	if err != nil {
		r.logger.Error("failed to list upload files", "job_id", jobID, "error", err)
		return nil, fmt.Errorf("%w: query upload_file: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.UploadFile
	for rows.Next() {
		var f entity.UploadFile
		var id, job string
		if err := rows.Scan(&id, &job, &f.Filename, &f.FileExt, &f.FileSize, &f.ContentHash, &f.Company, &f.UploadedAt); err != nil {
			return nil, fmt.Errorf("%w: scan upload_file: %v", common.ErrDatabase, err)
		}
		f.ID, _ = uuid.Parse(id)
		f.JobID, _ = uuid.Parse(job)
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountByHash returns how many times identical content has been uploaded.
func (r *uploadFileRepo) CountByHash(ctx context.Context, hashHex string) (int, error) {
	b := r.db.builder()
	q := b.Select(entsql.Count("*")).From(b.Table(tableUploadFile)).Where(entsql.EQ("content_hash", hashHex))
	rows, err := r.db.query(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("%w: count upload_file: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("%w: scan count: %v", common.ErrDatabase, err)
		}
	}
	return n, rows.Err()
}
