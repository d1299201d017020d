// Package extractor routes raw document bytes to a format-specific text extractor.
package extractor

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// Format extracts text from one family of document types.
type Format interface {
	Extract(ctx context.Context, data []byte) (domain.Extraction, error)
}

type route struct {
	match  string
	prefix bool
	format Format
}

// Registry picks a Format by MIME type. Exact matches win over prefixes
// such as "text/"; registration order breaks ties between prefixes.
type Registry struct {
	routes []route
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register binds format to each MIME type. A type ending in "/" is a prefix.
func (r *Registry) Register(format Format, mimeTypes ...string) *Registry {
	for _, mt := range mimeTypes {
		mt = strings.ToLower(strings.TrimSpace(mt))
		r.routes = append(r.routes, route{match: mt, prefix: strings.HasSuffix(mt, "/"), format: format})
	}
	return r
}

func (r *Registry) Extract(ctx context.Context, mimeType string, data []byte) (domain.Extraction, error) {
	format, ok := r.lookup(normalizeMIME(mimeType))
	if !ok {
		return domain.Extraction{}, domain.WrapError(domain.ErrUnsupportedMIME, "extract", fmt.Errorf("mime type %q", mimeType))
	}
	if len(data) == 0 {
		return domain.Extraction{}, nil
	}
	return format.Extract(ctx, data)
}

// Supports reports whether some format is registered for mimeType.
func (r *Registry) Supports(mimeType string) bool {
	_, ok := r.lookup(normalizeMIME(mimeType))
	return ok
}

func (r *Registry) lookup(mimeType string) (Format, bool) {
	for _, rt := range r.routes {
		if !rt.prefix && rt.match == mimeType {
			return rt.format, true
		}
	}
	for _, rt := range r.routes {
		if rt.prefix && strings.HasPrefix(mimeType, rt.match) {
			return rt.format, true
		}
	}
	return nil, false
}

func normalizeMIME(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}
