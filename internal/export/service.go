package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/bill-extractor/internal/entity"
	"github.com/joseph-ayodele/bill-extractor/internal/repository"
)

// ErrNoRows is returned when the markdown holds no table rows.
var ErrNoRows = errors.New("変換するデータがありません")

var separatorRow = regexp.MustCompile(`^\|[\s\-:]+\|`)

// Service produces XLSX workbooks.
type Service struct {
	jobs   repository.ExtractJobRepository
	logger *slog.Logger
}

func NewService(jobs repository.ExtractJobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// ParseMarkdownTable returns the cells of every pipe-table row in markdown.
// Separator rows are skipped; one leading and one trailing empty cell are dropped.
func ParseMarkdownTable(markdown string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(strings.TrimSpace(markdown), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") || separatorRow.MatchString(line) {
			continue
		}
		parts := strings.Split(line, "|")
		cells := make([]string, 0, len(parts))
		for _, p := range parts {
			cells = append(cells, strings.TrimSpace(p))
		}
		if len(cells) > 0 && cells[0] == "" {
			cells = cells[1:]
		}
		if len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return rows
}

// MarkdownToXLSX writes the table rows of markdown to the first sheet of a new
// workbook. Cell values are kept as text.
func (s *Service) MarkdownToXLSX(markdown string) ([]byte, error) {
	start := time.Now()
	rows := ParseMarkdownTable(markdown)
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+1)
		vals := make([]any, len(row))
		for i, v := range row {
			vals[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", r+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportJobsXLSX returns the most recent extract jobs as a workbook for the admin page.
func (s *Service) ExportJobsXLSX(ctx context.Context, limit int) ([]byte, error) {
	jobs, err := s.jobs.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Jobs"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"開始日時", "状態", "ファイル数", "会社", "明細行数", "ファイル名", "Drive URL", "エラー"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, j := range jobs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, j.StartedAt.In(jst).Format("2006-01-02 15:04:05"))
		write(2, string(j.Status))
		write(3, j.FileCount)
		write(4, companies(j))
		write(5, j.RowCount)
		write(6, entity.StrOrEmpty(j.OutputFilename))
		write(7, entity.StrOrEmpty(j.DriveURL))
		write(8, truncate(firstLine(entity.StrOrEmpty(j.ErrorMessage)), 140))
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "E", 12)
	_ = f.SetColWidth(sheet, "F", "F", 40)
	_ = f.SetColWidth(sheet, "G", "G", 60)
	_ = f.SetColWidth(sheet, "H", "H", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.jobs.ok", "rows", len(jobs))
	return buf.Bytes(), nil
}

var jst = time.FixedZone("JST", 9*60*60)

func companies(j entity.ExtractJob) string {
	names := make([]string, 0, len(j.Companies))
	for _, c := range j.Companies {
		names = append(names, string(c))
	}
	return strings.Join(names, ",")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
