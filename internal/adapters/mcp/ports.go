// Package mcp exposes document questions and pipeline controls to MCP
// clients. Every tool is bound to one tenant fixed at startup.
package mcp

import (
	"errors"
	"strings"

	"github.com/kirillkom/docintel/internal/core/ports"
)

var (
	ErrMissingQuestionAnswerer = errors.New("mcp: question answerer is required")
	ErrMissingDocumentService  = errors.New("mcp: document service is required")
	ErrMissingProcessor        = errors.New("mcp: document processor is required")
	ErrMissingTenant           = errors.New("mcp: tenant id is required")
)

type Ports struct {
	Query     ports.QuestionAnswerer
	Documents ports.DocumentService
	Processor ports.DocumentProcessor
	TenantID  string
}

func (p *Ports) Validate() error {
	switch {
	case p.Query == nil:
		return ErrMissingQuestionAnswerer
	case p.Documents == nil:
		return ErrMissingDocumentService
	case p.Processor == nil:
		return ErrMissingProcessor
	case strings.TrimSpace(p.TenantID) == "":
		return ErrMissingTenant
	}
	return nil
}
