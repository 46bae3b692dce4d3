package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joseph-ayodele/bill-extractor/constants"
	"github.com/joseph-ayodele/bill-extractor/internal/classify"
	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/export"
	"github.com/joseph-ayodele/bill-extractor/internal/llm/openai"
)

// llm runs the analysis step on an OCR text dump several times so prompt
// changes can be checked for row-count stability.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: llm <ocr-text-file> [times] [company]")
		os.Exit(2)
	}
	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		logger.Error("read text file", "path", os.Args[1], "error", err)
		os.Exit(2)
	}
	text := string(raw)

	times := 3
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}
	company := classify.DetectCompany(text)
	if len(os.Args) >= 4 {
		c, ok := constants.ParseCompany(os.Args[3])
		if !ok {
			logger.Error("unknown company", "arg", os.Args[3], "known", constants.Companies)
			os.Exit(2)
		}
		company = c
	}

	common.LoadDotEnv()
	cfg := common.LoadConfig()
	if cfg.Secrets.OpenAIAPIKey == "" {
		logger.Error("OPENAI_API_KEY env var is required")
		os.Exit(2)
	}

	client := openai.NewClient(openai.Config{Model: cfg.LLM.Model, Timeout: cfg.LLM.Timeout}, logger)

	counts := make([]int, 0, times)
	for i := 1; i <= times; i++ {
		runCtx, cancelRun := context.WithTimeout(context.Background(), 2*time.Minute)
		start := time.Now()
		logger.Info("analyze.run.start", "iter", i, "company", company, "chars", len([]rune(text)))

		md, err := client.Analyze(runCtx, text, company, cfg.Secrets.OpenAIAPIKey)
		cancelRun()

		if err != nil {
			logger.Error("analyze.run.error", "iter", i, "err", err)
		} else {
			rows := len(export.ParseMarkdownTable(md))
			counts = append(counts, rows)
			logger.Info("analyze.run.ok", "iter", i, "rows", rows, "elapsed_ms", time.Since(start).Milliseconds())
		}

		time.Sleep(750 * time.Millisecond)
	}

	logger.Info("done", "company", company, "times", times, "row_counts", counts)
}
