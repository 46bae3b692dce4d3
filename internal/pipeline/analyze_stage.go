package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/bill-extractor/constants"
)

func (p *Processor) analyzeStage(ctx context.Context, log *slog.Logger, grouped map[constants.Company]string, apiKey string) (map[constants.Company]string, error) {
	start := time.Now()
	var (
		mu  sync.Mutex
		out = make(map[constants.Company]string, len(grouped))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.OCRConcurrency)
	for company, text := range grouped {
		g.Go(func() error {
			rows, err := p.analyzer.Analyze(gctx, text, company, apiKey)
			if err != nil {
				return fmt.Errorf("%s: %w", company, err)
			}
			mu.Lock()
			out[company] = rows
			mu.Unlock()
			log.Info("pipeline.analyze.ok", "company", company, "bytes", len(rows))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.metrics.observeStage(StageAnalyze, start)
	return out, nil
}
