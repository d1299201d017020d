package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docintel/internal/core/domain"
)

var MIMETypes = []string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-excel.sheet.macroenabled.12",
}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract renders each sheet as a heading followed by tab-separated rows.
// Every sheet counts as one page.
func (e *Extractor) Extract(ctx context.Context, data []byte) (domain.Extraction, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	var sb strings.Builder
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		rows, err := book.GetRows(sheet)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("# ")
		sb.WriteString(sheet)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			sb.WriteByte('\n')
			sb.WriteString(line)
		}
	}
	return domain.NewExtraction(sb.String(), len(sheets)), nil
}
