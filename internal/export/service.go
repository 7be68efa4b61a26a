// Package export turns an analysis result into an XLSX workbook:
// one row per tag, one column per target language.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/photolingo/photolingo/internal/analyze"
)

const unavailableCell = "—"

// Service produces XLSX bytes for analysis results.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ExportXLSX writes one workbook for result. Languages appear as
// columns in the given order; unavailable entries render as a dash.
func (s *Service) ExportXLSX(result *analyze.Result, langs []string) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Tags"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{"Label", "Score"}
	for _, lang := range langs {
		headers = append(headers, lang)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, item := range result.Tags {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, item.Label)
		write(2, fmt.Sprintf("%.1f%%", item.Score*100))
		for i, lang := range langs {
			entry, ok := item.Translations[lang]
			if !ok || !entry.OK {
				write(3+i, unavailableCell)
				continue
			}
			write(3+i, entry.Text)
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", "B", 10)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export.xlsx.done",
		"rows", len(result.Tags),
		"langs", len(langs),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
