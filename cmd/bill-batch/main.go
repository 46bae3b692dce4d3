package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/bill-extractor/constants"
	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/drive"
	"github.com/joseph-ayodele/bill-extractor/internal/export"
	"github.com/joseph-ayodele/bill-extractor/internal/ingest"
	"github.com/joseph-ayodele/bill-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/bill-extractor/internal/ocr"
	"github.com/joseph-ayodele/bill-extractor/internal/pipeline"
	repo "github.com/joseph-ayodele/bill-extractor/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// dirUploader stores the workbook next to the inputs instead of on Drive.
type dirUploader struct {
	dir string
}

func (u dirUploader) GenerateFilename(base string) string {
	return drive.GenerateFilename(base, time.Now())
}

func (u dirUploader) Upload(ctx context.Context, data []byte, folderID, filename string) (string, error) {
	path := filepath.Join(u.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file://" + abs, nil
}

func main() {
	var (
		inmem = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir   = flag.String("dir", "", "directory holding the bill PDFs and images (required)")
		out   = flag.String("out", "", "output directory for the workbook (defaults to --dir)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = *dir
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	common.LoadDotEnv()
	cfg := common.LoadConfig()

	uploads, err := collect(*dir)
	if err != nil {
		logger.Error("failed to read input directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(uploads) == 0 {
		printError("Error: no supported files in %s\n", *dir)
		os.Exit(1)
	}

	dbCfg := repo.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN, DialTimeout: cfg.Database.DialTimeout}
	if *inmem {
		dbCfg = repo.Config{Driver: repo.DriverSQLite, DSN: ":memory:"}
	}
	db, err := repo.Open(ctx, dbCfg, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)
	if err := db.Migrate(ctx, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	jobsRepo := repo.NewExtractJobRepository(db, logger)
	filesRepo := repo.NewUploadFileRepository(db, logger)

	var extractor ocr.Extractor
	if cfg.OCR.Backend == "local" {
		extractor = ocr.NewLocalExtractor(ocr.LocalConfig{TessdataDir: cfg.OCR.TessdataDir}, logger)
	} else {
		extractor = ocr.NewGeminiExtractor(ocr.GeminiConfig{
			Model:       cfg.OCR.Model,
			Temperature: cfg.OCR.Temperature,
			Timeout:     cfg.OCR.Timeout,
		}, logger)
	}

	processor := pipeline.NewProcessor(pipeline.Config{OutputBase: cfg.App.OutputFilename, GroupByFile: cfg.Pipeline.GroupByFile}, pipeline.Deps{
		OCR:      extractor,
		Analyzer: openai.NewClient(openai.Config{Model: cfg.LLM.Model, Timeout: cfg.LLM.Timeout}, logger),
		Exporter: export.NewService(jobsRepo, logger),
		Uploader: dirUploader{dir: *out},
		Jobs:     jobsRepo,
		Files:    filesRepo,
	}, logger)

	jobID, files, err := ingest.NewService(jobsRepo, filesRepo, logger).Accept(common.WithRequestID(ctx, "batch"), uploads)
	if err != nil {
		logger.Error("failed to record uploads", "error", err)
		os.Exit(1)
	}

	res, err := processor.Process(ctx, pipeline.Request{
		JobID: jobID,
		Files: files,
		Keys: pipeline.Keys{
			GoogleAPIKey: cfg.Secrets.GoogleAPIKey,
			OpenAIAPIKey: cfg.Secrets.OpenAIAPIKey,
		},
	})
	if err != nil {
		logger.Error("batch processing failed", "job_id", jobID, "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"files", len(files),
		"companies", res.Companies,
		"rows", res.Rows,
		"output_file", res.DriveURL)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files: %d\n", len(files))
	fmt.Printf("- Rows: %d\n", res.Rows)
	fmt.Printf("- Output: %s\n", res.DriveURL)
}

// collect reads every supported file directly inside dir, in name order.
func collect(dir string) ([]ingest.UploadedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []ingest.UploadedFile
	for _, e := range entries {
		if e.IsDir() || !constants.IsAllowedName(e.Name()) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, ingest.NewUploadedFile(e.Name(), content))
	}
	return out, nil
}
