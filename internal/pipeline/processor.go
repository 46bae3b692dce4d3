// Package pipeline runs an extraction job: OCR, company detection, analysis,
// table assembly, XLSX export and Drive upload.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/bill-extractor/constants"
	"github.com/joseph-ayodele/bill-extractor/internal/combiner"
	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/export"
	"github.com/joseph-ayodele/bill-extractor/internal/ocr"
	"github.com/joseph-ayodele/bill-extractor/internal/repository"
)

// ErrorMessage is shown to the user whenever any stage fails.
const ErrorMessage = `ファイルの処理に失敗しました。

PDFや画像の容量が大きすぎる、またはページ数が多すぎる可能性があります。
お手数ですが、次のいずれかの方法をお試しください。

- ファイルを圧縮する（PDF圧縮でWeb検索しI Love PDFなどのwebサイトで圧縮）
- PDFを数ページごとに分割して、1ファイルずつアップロードする
- 画像の場合はファイルサイズを小さくしてから再アップロードする（画像圧縮でWeb検索しI Love IMGなどのwebサイトで圧縮）

※特に最近のiphoneの画像は高画質なためエラーが出る場合があります。

その他、うまく行かない場合は三宅まで連絡下さい`

type Analyzer interface {
	Analyze(ctx context.Context, text string, company constants.Company, apiKey string) (string, error)
}

type Exporter interface {
	MarkdownToXLSX(markdown string) ([]byte, error)
}

type Uploader interface {
	GenerateFilename(base string) string
	Upload(ctx context.Context, data []byte, folderID, filename string) (string, error)
}

// Keys are the API keys in effect for one job.
type Keys struct {
	GoogleAPIKey string
	OpenAIAPIKey string
}

// File is one uploaded document. ID is the upload_file row, uuid.Nil when not persisted.
type File struct {
	ID      uuid.UUID
	Name    string
	Content []byte
}

type Request struct {
	JobID    uuid.UUID
	Files    []File
	Keys     Keys
	FolderID string
}

type Result struct {
	JobID     uuid.UUID
	Filename  string
	DriveURL  string
	Companies []constants.Company
	Rows      int
}

// StageError records which stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

const (
	StageOCR     = "ocr"
	StageAnalyze = "analyze"
	StageCombine = "combine"
	StageExport  = "export"
	StageUpload  = "upload"
)

type Config struct {
	OutputBase     string
	OCRConcurrency int
	// GroupByFile classifies every file separately instead of treating the
	// upload as one bill.
	GroupByFile bool
}

// Processor coordinates the stages and records progress in extract_job.
type Processor struct {
	cfg      Config
	ocr      ocr.Extractor
	analyzer Analyzer
	exporter Exporter
	uploader Uploader
	jobs     repository.ExtractJobRepository
	files    repository.UploadFileRepository
	metrics  *Metrics
	logger   *slog.Logger
}

type Deps struct {
	OCR      ocr.Extractor
	Analyzer Analyzer
	Exporter Exporter
	Uploader Uploader
	Jobs     repository.ExtractJobRepository
	Files    repository.UploadFileRepository
	Metrics  *Metrics
}

func NewProcessor(cfg Config, deps Deps, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OutputBase == "" {
		cfg.OutputBase = common.DefaultOutputFilename
	}
	if cfg.OCRConcurrency <= 0 {
		cfg.OCRConcurrency = 3
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	return &Processor{
		cfg:      cfg,
		ocr:      deps.OCR,
		analyzer: deps.Analyzer,
		exporter: deps.Exporter,
		uploader: deps.Uploader,
		jobs:     deps.Jobs,
		files:    deps.Files,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// Process runs every stage for req. On failure the job row is marked FAILED
// with the detailed error and a *StageError is returned; callers show
// ErrorMessage to the user.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	log := common.LoggerWith(ctx, p.logger).With("job_id", req.JobID)
	log.Info("pipeline.start", "files", len(req.Files))

	res, err := p.run(ctx, log, req)
	if err != nil {
		stage := "unknown"
		var se *StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		p.metrics.jobs.WithLabelValues(string(constants.JobStatusFailed)).Inc()
		p.metrics.failures.WithLabelValues(stage).Inc()
		log.Error("pipeline.failed", "stage", stage, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if ferr := p.jobs.FinishFailure(context.WithoutCancel(ctx), req.JobID, err.Error()); ferr != nil {
			log.Warn("pipeline.record_failure_failed", "error", ferr)
		}
		return Result{JobID: req.JobID}, err
	}

	p.metrics.jobs.WithLabelValues(string(constants.JobStatusUploaded)).Inc()
	p.metrics.duration.Observe(time.Since(start).Seconds())
	log.Info("pipeline.ok",
		"filename", res.Filename,
		"companies", len(res.Companies),
		"rows", res.Rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (p *Processor) run(ctx context.Context, log *slog.Logger, req Request) (Result, error) {
	res := Result{JobID: req.JobID}
	if len(req.Files) == 0 {
		return res, &StageError{Stage: StageOCR, Err: common.ErrInvalidInput}
	}

	// 1-2) OCR every file and detect its company
	grouped, chars, err := p.ocrStage(ctx, log, req)
	if err != nil {
		return res, &StageError{Stage: StageOCR, Err: err}
	}
	for _, c := range constants.Companies {
		if _, ok := grouped[c]; ok {
			res.Companies = append(res.Companies, c)
		}
	}
	if err := p.jobs.MarkOCR(ctx, req.JobID, chars, res.Companies); err != nil {
		return res, &StageError{Stage: StageOCR, Err: err}
	}

	// 3) per-company analysis
	analyzed, err := p.analyzeStage(ctx, log, grouped, req.Keys.OpenAIAPIKey)
	if err != nil {
		return res, &StageError{Stage: StageAnalyze, Err: err}
	}

	// 4) combine into one table
	markdown, err := combiner.Combine(analyzed)
	if err != nil {
		return res, &StageError{Stage: StageCombine, Err: err}
	}
	if rows := len(export.ParseMarkdownTable(markdown)); rows > 0 {
		res.Rows = rows - 1
	}
	if err := p.jobs.MarkAnalyzed(ctx, req.JobID, res.Rows); err != nil {
		return res, &StageError{Stage: StageCombine, Err: err}
	}

	// 5) xlsx
	stageStart := time.Now()
	xlsx, err := p.exporter.MarkdownToXLSX(markdown)
	if err != nil {
		return res, &StageError{Stage: StageExport, Err: err}
	}
	p.metrics.observeStage(StageExport, stageStart)

	// 6) drive
	stageStart = time.Now()
	res.Filename = p.uploader.GenerateFilename(p.cfg.OutputBase)
	res.DriveURL, err = p.uploader.Upload(ctx, xlsx, req.FolderID, res.Filename)
	if err != nil {
		return res, &StageError{Stage: StageUpload, Err: err}
	}
	p.metrics.observeStage(StageUpload, stageStart)

	if err := p.jobs.FinishSuccess(ctx, req.JobID, res.Filename, res.DriveURL); err != nil {
		// the file is already in Drive; keep the result
		log.Warn("pipeline.record_success_failed", "error", err)
	}
	return res, nil
}
