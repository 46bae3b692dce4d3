package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/bill-extractor/constants"
)

// LocalConfig configures the poppler/tesseract backend.
type LocalConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // if empty -> "pdftoppm"
	Tesseract string // if empty -> "tesseract"

	TesseractLang string // default "jpn+eng"
	TessdataDir   string
	DPI           int // rasterization DPI for scanned PDFs, default 300
	MaxPages      int // 0 = no limit

	// PDFs whose text layer is shorter than this are rasterized and OCR'd.
	MinTextChars int
}

// LocalExtractor runs pdftotext, pdftoppm and tesseract on a temp copy of the document.
type LocalExtractor struct {
	cfg    LocalConfig
	runner Runner
	logger *slog.Logger
}

func NewLocalExtractor(cfg LocalConfig, logger *slog.Logger) *LocalExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "jpn+eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 20
	}
	return &LocalExtractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner.
func (e *LocalExtractor) WithRunner(r Runner) *LocalExtractor {
	e.runner = r
	return e
}

func (e *LocalExtractor) Extract(ctx context.Context, doc Document, _ string) (string, error) {
	start := time.Now()
	ext := constants.ExtOf(doc.Name)
	format := constants.MapExtToFormat(ext)
	if format == "" || ext == "svg" {
		e.logger.Error("ocr.local.unsupported", "name", doc.Name, "ext", ext)
		return "", fmt.Errorf("%w: %q", ErrUnsupported, doc.Name)
	}

	tmpDir, err := os.MkdirTemp("", "bill-ocr-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("ocr.local.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()
	path := filepath.Join(tmpDir, "input."+ext)
	if err := os.WriteFile(path, doc.Content, 0o600); err != nil {
		return "", err
	}

	var (
		text   string
		method string
	)
	if format == constants.PDF {
		text, err = e.pdfToText(ctx, path)
		method = "pdf-text"
		if err == nil && len([]rune(strings.TrimSpace(text))) < e.cfg.MinTextChars {
			text, err = e.pdfToOCR(ctx, path, tmpDir)
			method = "pdf-ocr"
		}
	} else {
		text, err = e.tesseract(ctx, path)
		method = "image-ocr"
	}
	if err != nil {
		return "", err
	}
	text = Normalize(text)
	e.logger.Info("ocr.local.ok",
		"name", doc.Name,
		"method", method,
		"chars", len([]rune(text)),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func (e *LocalExtractor) pdfToText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}

func (e *LocalExtractor) pdfToOCR(ctx context.Context, path, dir string) (string, error) {
	prefix := filepath.Join(dir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm produced no pages")
	}

	var b strings.Builder
	for _, img := range matches {
		txt, err := e.tesseract(ctx, img)
		if err != nil {
			return "", err
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(txt)
	}
	return b.String(), nil
}

func (e *LocalExtractor) tesseract(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}
