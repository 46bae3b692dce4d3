package server

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/entity"
	"github.com/joseph-ayodele/bill-extractor/internal/ingest"
	"github.com/joseph-ayodele/bill-extractor/internal/pipeline"
	"github.com/joseph-ayodele/bill-extractor/internal/secrets"
)

const (
	formFieldFiles = "files"

	MsgKeysMissing = "APIキーが設定されていません。管理者に連絡してください。"
	MsgBadUpload   = "アップロードされたファイルを読み込めませんでした。"
)

// ExtractHandler serves POST /extract. Every outcome that reaches the handler
// is answered with 200 and an entity.ExtractResponse body.
type ExtractHandler struct {
	ingest   Accepter
	queue    ExtractQueue
	secrets  *secrets.Manager
	maxFiles int
	logger   *slog.Logger
}

func NewExtractHandler(in Accepter, q ExtractQueue, sm *secrets.Manager, maxFiles int, logger *slog.Logger) *ExtractHandler {
	return &ExtractHandler{ingest: in, queue: q, secrets: sm, maxFiles: maxFiles, logger: logger}
}

func (h *ExtractHandler) HandleExtract(c echo.Context) error {
	ctx := c.Request().Context()
	log := common.LoggerWith(ctx, h.logger)

	form, err := c.MultipartForm()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.Warn("extract.bad_form", "error", err)
		return c.JSON(http.StatusOK, entity.ExtractFailed(MsgBadUpload))
	}
	var headers []*multipart.FileHeader
	if form != nil {
		headers = form.File[formFieldFiles]
	}

	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		names = append(names, fh.Filename)
	}
	if err := ingest.Validate(names, h.maxFiles); err != nil {
		return h.reject(c, log, err)
	}

	keys, folderID, ok := h.loadSettings(ctx, log)
	if !ok {
		return c.JSON(http.StatusOK, entity.ExtractFailed(MsgKeysMissing))
	}

	uploaded, err := ingest.Read(headers)
	if err != nil {
		log.Warn("extract.read_failed", "error", err)
		return c.JSON(http.StatusOK, entity.ExtractFailed(MsgBadUpload))
	}

	jobID, files, err := h.ingest.Accept(ctx, uploaded)
	if err != nil {
		log.Error("extract.accept_failed", "error", err)
		return c.JSON(http.StatusOK, entity.ExtractFailed(pipeline.ErrorMessage))
	}
	log = log.With("job_id", jobID)

	// the job outlives a dropped connection; the queue timeout still bounds it
	runCtx := common.WithJobID(context.WithoutCancel(ctx), jobID.String())
	res, err := h.queue.Submit(runCtx, pipeline.Request{
		JobID:    jobID,
		Files:    files,
		Keys:     keys,
		FolderID: folderID,
	})
	if err != nil {
		log.Error("extract.failed", "error", err)
		return c.JSON(http.StatusOK, entity.ExtractFailed(pipeline.ErrorMessage))
	}

	log.Info("extract.ok", "filename", res.Filename, "rows", res.Rows)
	return c.JSON(http.StatusOK, entity.ExtractSucceeded(res.DriveURL, res.Filename))
}

func (h *ExtractHandler) reject(c echo.Context, log *slog.Logger, err error) error {
	var rej *ingest.RejectError
	if errors.As(err, &rej) {
		log.Info("extract.rejected", "reason", rej.Err)
		return c.JSON(http.StatusOK, entity.ExtractFailed(rej.Message))
	}
	log.Error("extract.validate_failed", "error", err)
	return c.JSON(http.StatusOK, entity.ExtractFailed(pipeline.ErrorMessage))
}

func (h *ExtractHandler) loadSettings(ctx context.Context, log *slog.Logger) (pipeline.Keys, string, bool) {
	google, err := h.secrets.GoogleAPIKey(ctx)
	if err != nil {
		log.Error("extract.secret_lookup_failed", "secret", "google", "error", err)
		return pipeline.Keys{}, "", false
	}
	openai, err := h.secrets.OpenAIAPIKey(ctx)
	if err != nil {
		log.Error("extract.secret_lookup_failed", "secret", "openai", "error", err)
		return pipeline.Keys{}, "", false
	}
	if google == "" || openai == "" {
		log.Warn("extract.keys_missing", "google", google != "", "openai", openai != "")
		return pipeline.Keys{}, "", false
	}
	folder, err := h.secrets.DriveFolderID(ctx)
	if err != nil {
		log.Warn("extract.folder_lookup_failed", "error", err)
	}
	return pipeline.Keys{GoogleAPIKey: google, OpenAIAPIKey: openai}, folder, true
}
