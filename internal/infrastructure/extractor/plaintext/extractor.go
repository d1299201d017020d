package plaintext

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// MIMETypes handled by the plain text extractor.
var MIMETypes = []string{
	"text/",
	"application/json",
	"application/xml",
	"application/x-yaml",
}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, data []byte) (domain.Extraction, error) {
	if !utf8.Valid(data) {
		return domain.Extraction{}, domain.WrapError(domain.ErrUnsupportedMIME, "extract plain text", fmt.Errorf("content is not valid UTF-8"))
	}
	return domain.NewExtraction(string(data), 1), nil
}
