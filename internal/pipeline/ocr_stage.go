package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/bill-extractor/constants"
	"github.com/joseph-ayodele/bill-extractor/internal/classify"
	"github.com/joseph-ayodele/bill-extractor/internal/ocr"
)

// ocrStage reads the text of the upload and detects the company. By default
// every file is one bill: the texts are read together and classified once.
// With GroupByFile each text is classified on its own and the texts of one
// company are joined in upload order.
func (p *Processor) ocrStage(ctx context.Context, log *slog.Logger, req Request) (map[constants.Company]string, int, error) {
	start := time.Now()
	if p.cfg.GroupByFile {
		texts, err := p.extractEach(ctx, req)
		if err != nil {
			return nil, 0, err
		}
		p.metrics.observeStage(StageOCR, start)
		return p.groupByFile(ctx, log, req.Files, texts)
	}

	text, err := p.extractCombined(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	p.metrics.observeStage(StageOCR, start)

	chars := len([]rune(text))
	if chars == 0 {
		return nil, 0, fmt.Errorf("no text extracted")
	}
	company := classify.DetectCompany(text)
	log.Info("pipeline.ocr.ok", "files", len(req.Files), "company", company, "chars", chars)
	for _, f := range req.Files {
		p.recordCompany(ctx, log, f, company)
	}
	return map[constants.Company]string{company: text}, chars, nil
}

// extractCombined uses a single request when the backend supports it and
// otherwise joins the per-file texts in upload order.
func (p *Processor) extractCombined(ctx context.Context, req Request) (string, error) {
	if batch, ok := p.ocr.(ocr.BatchExtractor); ok {
		docs := make([]ocr.Document, 0, len(req.Files))
		for _, f := range req.Files {
			docs = append(docs, ocr.Document{Name: f.Name, Content: f.Content})
		}
		return batch.ExtractAll(ctx, docs, req.Keys.GoogleAPIKey)
	}
	texts, err := p.extractEach(ctx, req)
	if err != nil {
		return "", err
	}
	nonEmpty := texts[:0]
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	return strings.Join(nonEmpty, "\n\n"), nil
}

func (p *Processor) extractEach(ctx context.Context, req Request) ([]string, error) {
	texts := make([]string, len(req.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.OCRConcurrency)
	for i, f := range req.Files {
		g.Go(func() error {
			text, err := p.ocr.Extract(gctx, ocr.Document{Name: f.Name, Content: f.Content}, req.Keys.GoogleAPIKey)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

func (p *Processor) groupByFile(ctx context.Context, log *slog.Logger, files []File, texts []string) (map[constants.Company]string, int, error) {
	parts := map[constants.Company][]string{}
	chars := 0
	for i, f := range files {
		text := texts[i]
		chars += len([]rune(text))
		company := classify.DetectCompany(text)
		parts[company] = append(parts[company], text)
		log.Info("pipeline.ocr.ok", "file", f.Name, "company", company, "chars", len([]rune(text)))
		p.recordCompany(ctx, log, f, company)
	}
	if chars == 0 {
		return nil, 0, fmt.Errorf("no text extracted")
	}

	grouped := make(map[constants.Company]string, len(parts))
	for c, ts := range parts {
		grouped[c] = strings.Join(ts, "\n\n")
	}
	return grouped, chars, nil
}

func (p *Processor) recordCompany(ctx context.Context, log *slog.Logger, f File, company constants.Company) {
	p.metrics.files.WithLabelValues(string(company)).Inc()
	if f.ID == uuid.Nil {
		return
	}
	if err := p.files.SetCompany(ctx, f.ID, string(company)); err != nil {
		log.Warn("pipeline.set_company_failed", "file_id", f.ID, "error", err)
	}
}
