package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool("ask_documents",
		mcp.WithDescription("Answer a question from the tenant's processed documents and cite the fragments used"),
		mcp.WithString("question", mcp.Required(), mcp.Description("natural language question")),
		mcp.WithString("document_id", mcp.Description("restrict retrieval to one document")),
		mcp.WithNumber("k", mcp.Description("number of fragments to retrieve")),
		mcp.WithString("variant", mcp.Description("prompt variant: full, terse, conversational or summarization")),
	), s.handleAsk)

	s.server.AddTool(mcp.NewTool("document_status",
		mcp.WithDescription("Show the processing state and AI fields of a document"),
		mcp.WithString("document_id", mcp.Required()),
	), s.handleStatus)

	s.server.AddTool(mcp.NewTool("reprocess_document",
		mcp.WithDescription("Queue a finished or failed document for another pipeline run"),
		mcp.WithString("document_id", mcp.Required()),
	), s.handleReprocess)

	s.server.AddTool(mcp.NewTool("chunk_stats",
		mcp.WithDescription("Count stored chunks and documents for the tenant"),
	), s.handleStats)
}

type statusOutput struct {
	DocumentID string                 `json:"document_id"`
	Filename   string                 `json:"filename"`
	Status     domain.ProcessingState `json:"status"`
	Category   string                 `json:"category,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	Summary    string                 `json:"summary,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.ports.Query.Answer(ctx, domain.QuestionRequest{
		Question:   question,
		TenantID:   s.ports.TenantID,
		DocumentID: req.GetString("document_id", ""),
		K:          req.GetInt("k", 0),
		Variant:    domain.PromptVariant(req.GetString("variant", "")),
	})
	if err != nil {
		return s.toolError("ask_documents", err), nil
	}
	return jsonResult(answer)
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, result := s.tenantDocument(ctx, req, "document_status")
	if result != nil {
		return result, nil
	}
	return jsonResult(statusOutput{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     doc.AI.Status,
		Category:   doc.AI.Category,
		Tags:       doc.AI.Tags,
		Summary:    doc.AI.Summary,
		Error:      doc.AI.Error,
	})
}

func (s *Server) handleReprocess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, result := s.tenantDocument(ctx, req, "reprocess_document")
	if result != nil {
		return result, nil
	}
	updated, err := s.ports.Processor.Reprocess(ctx, doc.ID)
	if err != nil {
		return s.toolError("reprocess_document", err), nil
	}
	return jsonResult(statusOutput{DocumentID: updated.ID, Filename: updated.Filename, Status: updated.AI.Status})
}

func (s *Server) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.ports.Query.Stats(ctx, s.ports.TenantID)
	if err != nil {
		return s.toolError("chunk_stats", err), nil
	}
	return jsonResult(map[string]any{
		"tenant_id":      s.ports.TenantID,
		"chunk_count":    stats.ChunkCount,
		"document_count": stats.DocumentCount,
	})
}

// tenantDocument loads the requested document; documents outside the bound
// tenant are reported as missing.
func (s *Server) tenantDocument(ctx context.Context, req mcp.CallToolRequest, tool string) (*domain.Document, *mcp.CallToolResult) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	doc, err := s.ports.Documents.GetByID(ctx, id, false)
	if err != nil {
		return nil, s.toolError(tool, err)
	}
	if doc.TenantID != s.ports.TenantID {
		return nil, mcp.NewToolResultError(domain.ErrDocumentNotFound.Error())
	}
	return doc, nil
}

// toolError reports failures as tool results so the client model can read
// them. Internal errors are logged and replaced with a generic message.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	var pe *domain.ProviderError
	switch {
	case errors.As(err, &pe),
		domain.IsKind(err, domain.ErrValidation),
		domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrStateConflict),
		domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError(err.Error())
	}
	s.logger.Error("mcp_tool_failed", "tool", tool, "error", err)
	return mcp.NewToolResultError("internal error")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
