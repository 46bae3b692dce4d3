package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/bill-extractor/internal/classify"
	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/ocr"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage", "cmd", "runocr <file> [file...]")
		os.Exit(2)
	}

	common.LoadDotEnv()
	cfg := common.LoadConfig()

	var extractor ocr.Extractor
	switch cfg.OCR.Backend {
	case "local":
		extractor = ocr.NewLocalExtractor(ocr.LocalConfig{TessdataDir: cfg.OCR.TessdataDir}, logger)
	default:
		if cfg.Secrets.GoogleAPIKey == "" {
			logger.Error("GOOGLE_API_KEY required for the gemini backend (or set OCR_BACKEND=local)")
			os.Exit(1)
		}
		extractor = ocr.NewGeminiExtractor(ocr.GeminiConfig{
			Model:       cfg.OCR.Model,
			Temperature: cfg.OCR.Temperature,
			Timeout:     cfg.OCR.Timeout,
		}, logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	failed := 0
	for _, path := range os.Args[1:] {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Error("read file", "path", path, "error", err)
			failed++
			continue
		}

		start := time.Now()
		text, err := extractor.Extract(ctx, ocr.Document{Name: filepath.Base(path), Content: content}, cfg.Secrets.GoogleAPIKey)
		dur := time.Since(start)
		if err != nil {
			logger.Error("text extraction failed", "path", path, "error", err, "duration_ms", dur.Milliseconds())
			failed++
			continue
		}

		company := classify.DetectCompany(text)
		logger.Info("text extraction OK",
			"path", path,
			"backend", cfg.OCR.Backend,
			"company", company,
			"chars", len([]rune(text)),
			"duration_ms", dur.Milliseconds(),
		)
		fmt.Printf("===== %s [%s] =====\n%s\n\n", path, company, text)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
