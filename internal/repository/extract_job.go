package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/bill-extractor/constants"
	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/entity"
)

type ExtractJobRepository interface {
	Start(ctx context.Context, requestID string, fileCount int) (*entity.ExtractJob, error)
	MarkOCR(ctx context.Context, jobID uuid.UUID, ocrChars int, companies []constants.Company) error
	MarkAnalyzed(ctx context.Context, jobID uuid.UUID, rowCount int) error
	FinishSuccess(ctx context.Context, jobID uuid.UUID, filename, driveURL string) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error)
	ListRecent(ctx context.Context, limit int) ([]entity.ExtractJob, error)
}

var jobColumns = []string{
	"id", "request_id", "status", "file_count", "companies", "ocr_chars", "row_count",
	"output_filename", "drive_url", "error_message", "started_at", "finished_at",
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewExtractJobRepository(db *DB, log *slog.Logger) ExtractJobRepository {
	return &extractJobRepo{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (r *extractJobRepo) Start(ctx context.Context, requestID string, fileCount int) (*entity.ExtractJob, error) {
	job := &entity.ExtractJob{
		ID:        uuid.New(),
		RequestID: requestID,
		Status:    constants.JobStatusRunning,
		FileCount: fileCount,
		StartedAt: r.now(),
	}
	ins := r.db.builder().Insert(tableExtractJob).
		Columns("id", "request_id", "status", "file_count", "started_at").
		Values(job.ID.String(), job.RequestID, string(job.Status), job.FileCount, job.StartedAt)
	if _, err := r.db.exec(ctx, ins); err != nil {
		r.log.Error("extract_job start failed", "request_id", requestID, "err", err)
		return nil, fmt.Errorf("%w: insert extract_job: %v", common.ErrDatabase, err)
	}
	r.log.Info("extract_job started", "job_id", job.ID, "files", fileCount)
	return job, nil
}

func (r *extractJobRepo) MarkOCR(ctx context.Context, jobID uuid.UUID, ocrChars int, companies []constants.Company) error {
	names := make([]string, 0, len(companies))
	for _, c := range companies {
		names = append(names, string(c))
	}
	return r.update(ctx, jobID, constants.JobStatusOCROK, func(u *entsql.UpdateBuilder) {
		u.Set("ocr_chars", ocrChars).Set("companies", strings.Join(names, ","))
	})
}

func (r *extractJobRepo) MarkAnalyzed(ctx context.Context, jobID uuid.UUID, rowCount int) error {
	return r.update(ctx, jobID, constants.JobStatusAnalyzed, func(u *entsql.UpdateBuilder) {
		u.Set("row_count", rowCount)
	})
}

func (r *extractJobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, filename, driveURL string) error {
	err := r.update(ctx, jobID, constants.JobStatusUploaded, func(u *entsql.UpdateBuilder) {
		u.Set("output_filename", filename).Set("drive_url", driveURL).Set("finished_at", r.now())
	})
	if err == nil {
		r.log.Info("extract_job finished (UPLOADED)", "job_id", jobID, "filename", filename)
	}
	return err
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	err := r.update(ctx, jobID, constants.JobStatusFailed, func(u *entsql.UpdateBuilder) {
		u.Set("error_message", message).Set("finished_at", r.now())
	})
	if err == nil {
		r.log.Warn("extract_job finished (FAILED)", "job_id", jobID, "error", message)
	}
	return err
}

func (r *extractJobRepo) update(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, set func(u *entsql.UpdateBuilder)) error {
	u := r.db.builder().Update(tableExtractJob).Set("status", string(status))
	set(u)
	u.Where(entsql.EQ("id", jobID.String()))
	res, err := r.db.exec(ctx, u)
	if err != nil {
		r.log.Error("extract_job update failed", "job_id", jobID, "status", status, "err", err)
		return fmt.Errorf("%w: update extract_job: %v", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("extract_job %s: %w", jobID, common.ErrNotFound)
	}
	return nil
}

func (r *extractJobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error) {
	b := r.db.builder()
	q := b.Select(jobColumns...).From(b.Table(tableExtractJob)).Where(entsql.EQ("id", jobID.String()))
	jobs, err := r.list(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("extract_job %s: %w", jobID, common.ErrNotFound)
	}
	return &jobs[0], nil
}

func (r *extractJobRepo) ListRecent(ctx context.Context, limit int) ([]entity.ExtractJob, error) {
	if limit <= 0 {
		limit = 20
	}
	b := r.db.builder()
	q := b.Select(jobColumns...).From(b.Table(tableExtractJob)).
		OrderBy(entsql.Desc("started_at")).
		Limit(limit)
	return r.list(ctx, q)
}

func (r *extractJobRepo) list(ctx context.Context, q *entsql.Selector) ([]entity.ExtractJob, error) {
	rows, err := r.db.query(ctx, q)
	if err != nil {
		r.log.Error("extract_job query failed", "err", err)
		return nil, fmt.Errorf("%w: query extract_job: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.ExtractJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(rows *sql.Rows) (entity.ExtractJob, error) {
	var (
		job                          entity.ExtractJob
		id, status, companies        string
		outName, driveURL, errorText sql.NullString
		finished                     sql.NullTime
	)
	err := rows.Scan(&id, &job.RequestID, &status, &job.FileCount, &companies, &job.OCRChars, &job.RowCount,
		&outName, &driveURL, &errorText, &job.StartedAt, &finished)
	if err != nil {
		return job, fmt.Errorf("%w: scan extract_job: %v", common.ErrDatabase, err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return job, fmt.Errorf("%w: bad job id %q", common.ErrDatabase, id)
	}
	job.ID = parsed
	job.Status = constants.JobStatus(status)
	if companies != "" {
		for _, c := range strings.Split(companies, ",") {
			company, _ := constants.ParseCompany(c)
			job.Companies = append(job.Companies, company)
		}
	}
	job.OutputFilename = nullString(outName)
	job.DriveURL = nullString(driveURL)
	job.ErrorMessage = nullString(errorText)
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	return job, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// IsNotFound reports whether err is a missing-row error from this package.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
