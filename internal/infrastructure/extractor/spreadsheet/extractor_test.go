package spreadsheet

import (
	"context"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractRendersSheetsAsRows(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	_ = book.SetCellValue("Sheet1", "A1", "Item")
	_ = book.SetCellValue("Sheet1", "B1", "Amount")
	_ = book.SetCellValue("Sheet1", "A2", "Laptop")
	_ = book.SetCellValue("Sheet1", "B2", 1200)
	if _, err := book.NewSheet("Empty"); err != nil {
		t.Fatalf("NewSheet() error = %v", err)
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	got, err := NewExtractor().Extract(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(got.Text, "# Sheet1\nItem\tAmount\nLaptop\t1200") {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if got.PageCount != 2 {
		t.Fatalf("expected 2 sheets as pages, got %d", got.PageCount)
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	if _, err := NewExtractor().Extract(context.Background(), []byte("not a workbook")); err == nil {
		t.Fatalf("expected error")
	}
}
