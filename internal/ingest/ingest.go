// Package ingest validates uploaded parts and records them as an extract job.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/bill-extractor/constants"
	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/pipeline"
	"github.com/joseph-ayodele/bill-extractor/internal/repository"
)

const (
	MsgTooManyFiles = "ファイルは同時に%d枚までです。"
	MsgUnsupported  = "サポートされていないファイル形式です: %s"
)

var (
	ErrNoFiles     = errors.New("no files uploaded")
	ErrTooMany     = errors.New("too many files")
	ErrUnsupported = errors.New("unsupported file type")
)

// RejectError carries the user-facing reason an upload was refused.
type RejectError struct {
	Message string
	Err     error
}

func (e *RejectError) Error() string { return e.Message }
func (e *RejectError) Unwrap() error { return e.Err }

// UploadedFile is a fully read upload part.
type UploadedFile struct {
	Filename string
	Ext      string
	Size     int64
	Content  []byte
	HashHex  string
}

// Validate checks the upload count first, then each name against the allow-set.
func Validate(names []string, maxCount int) error {
	if len(names) == 0 {
		return &RejectError{Message: "ファイルが選択されていません。", Err: ErrNoFiles}
	}
	if maxCount > 0 && len(names) > maxCount {
		return &RejectError{Message: fmt.Sprintf(MsgTooManyFiles, maxCount), Err: ErrTooMany}
	}
	for _, n := range names {
		if !constants.IsAllowedExt(constants.ExtOf(n)) {
			return &RejectError{Message: fmt.Sprintf(MsgUnsupported, n), Err: ErrUnsupported}
		}
	}
	return nil
}

// Read loads every part into memory and hashes its content.
func Read(headers []*multipart.FileHeader) ([]UploadedFile, error) {
	out := make([]UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open part %q: %w", fh.Filename, err)
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %q: %w", fh.Filename, err)
		}
		out = append(out, NewUploadedFile(fh.Filename, content))
	}
	return out, nil
}

func NewUploadedFile(name string, content []byte) UploadedFile {
	sum := sha256.Sum256(content)
	return UploadedFile{
		Filename: name,
		Ext:      constants.ExtOf(name),
		Size:     int64(len(content)),
		Content:  content,
		HashHex:  hex.EncodeToString(sum[:]),
	}
}

// Service persists accepted uploads.
type Service struct {
	jobs   repository.ExtractJobRepository
	files  repository.UploadFileRepository
	logger *slog.Logger
}

func NewService(jobs repository.ExtractJobRepository, files repository.UploadFileRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, files: files, logger: logger}
}

// Accept starts an extract job with one upload_file row per part and returns
// the pipeline input for it.
func (s *Service) Accept(ctx context.Context, files []UploadedFile) (uuid.UUID, []pipeline.File, error) {
	start := time.Now()
	requestID := common.RequestIDFromContext(ctx)
	job, err := s.jobs.Start(ctx, requestID, len(files))
	if err != nil {
		return uuid.Nil, nil, err
	}

	out := make([]pipeline.File, 0, len(files))
	var total int64
	for _, f := range files {
		seen, err := s.files.CountByHash(ctx, f.HashHex)
		if err != nil {
			s.logger.Warn("ingest.count_by_hash_failed", "error", err)
		}
		row, err := s.files.Create(ctx, job.ID, f.Filename, f.Ext, f.Size, f.HashHex)
		if err != nil {
			return job.ID, nil, err
		}
		if seen > 0 {
			s.logger.Info("ingest.duplicate_upload", "job_id", job.ID, "file", f.Filename, "hash", f.HashHex, "previous", seen)
		}
		total += f.Size
		out = append(out, pipeline.File{ID: row.ID, Name: f.Filename, Content: f.Content})
	}
	s.logger.Info("ingest.accepted",
		"req_id", requestID,
		"job_id", job.ID,
		"files", len(files),
		"bytes", total,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return job.ID, out, nil
}
