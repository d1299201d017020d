package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
	"github.com/kirillkom/docintel/internal/observability/metrics"
)

var (
	errMissingUser = errors.New("X-User-Id header is required")
	errNotMember   = errors.New("user is not a member of the tenant")
)

type Options struct {
	ServiceName       string
	MaxUploadBytes    int64
	RateLimit         float64
	RateBurst         int
	RequireMembership bool
	Metrics           *metrics.HTTPServerMetrics
	// MetricsHandler serves /metrics; nil disables the endpoint.
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

type Router struct {
	ingest    ports.DocumentIngestor
	docs      ports.DocumentService
	processor ports.DocumentProcessor
	query     ports.QuestionAnswerer
	authz     ports.TenantAuthorizer
	opts      Options
}

func NewRouter(
	ingest ports.DocumentIngestor,
	docs ports.DocumentService,
	processor ports.DocumentProcessor,
	query ports.QuestionAnswerer,
	authz ports.TenantAuthorizer,
	opts Options,
) *Router {
	if opts.ServiceName == "" {
		opts.ServiceName = "api"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		ingest:    ingest,
		docs:      docs,
		processor: processor,
		query:     query,
		authz:     authz,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/documents", rt.uploadDocument)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	api.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	api.HandleFunc("POST /v1/documents/{id}/reprocess", rt.reprocessDocument)
	api.HandleFunc("GET /v1/documents/{id}/chunks", rt.listChunks)
	api.HandleFunc("POST /v1/rag/query", rt.queryRAG)
	api.HandleFunc("GET /v1/rag/stats", rt.ragStats)

	var protected http.Handler = tenantMiddleware(rt.authz, rt.opts.RequireMembership)(api)
	if rt.opts.RateLimit > 0 {
		protected = rateLimitMiddleware(newClientLimiter(rate.Limit(rt.opts.RateLimit), rt.opts.RateBurst))(protected)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", rt.opts.MetricsHandler)
	}
	mux.Handle("/v1/", protected)

	mw := []middleware{
		recoverMiddleware(rt.opts.Logger),
		requestIDMiddleware,
		accessLogMiddleware(rt.opts.Logger),
		func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, rt.opts.ServiceName) },
	}
	if rt.opts.Metrics != nil {
		mw = append(mw, rt.opts.Metrics.Middleware)
	}
	return chain(mux, mw...)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > rt.opts.MaxUploadBytes {
		writeDomainError(w, r, &http.MaxBytesError{Limit: rt.opts.MaxUploadBytes})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDomainError(w, r, err)
			return
		}
		writeDomainError(w, r, domain.ValidationError("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	c := callerFromContext(r.Context())
	doc, err := rt.ingest.Upload(r.Context(), ports.UploadRequest{
		TenantID: c.TenantID,
		OwnerID:  c.UserID,
		Filename: header.Filename,
		MimeType: detectMIME(header.Header.Get("Content-Type"), header.Filename),
		Body:     file,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

// detectMIME trusts the part header unless it is missing or generic.
func detectMIME(declared, filename string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return declared
}

// ownedDocument loads the path document and hides documents of other
// tenants behind 404.
func (rt *Router) ownedDocument(w http.ResponseWriter, r *http.Request, includeText bool) (*domain.Document, bool) {
	id := r.PathValue("id")
	doc, err := rt.docs.GetByID(r.Context(), id, includeText)
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	if !callerFromContext(r.Context()).owns(doc) {
		writeDomainError(w, r, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("id="+id)))
		return nil, false
	}
	return doc, true
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	includeText := false
	for _, part := range strings.Split(r.URL.Query().Get("include"), ",") {
		if strings.TrimSpace(part) == "text" {
			includeText = true
		}
	}
	doc, ok := rt.ownedDocument(w, r, includeText)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := rt.ownedDocument(w, r, false)
	if !ok {
		return
	}
	if err := rt.docs.Delete(r.Context(), doc.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := rt.ownedDocument(w, r, false)
	if !ok {
		return
	}
	updated, err := rt.processor.Reprocess(r.Context(), doc.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, updated)
}

func (rt *Router) listChunks(w http.ResponseWriter, r *http.Request) {
	doc, ok := rt.ownedDocument(w, r, false)
	if !ok {
		return
	}
	chunks, err := rt.docs.ListChunks(r.Context(), doc.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": doc.ID, "chunks": chunks})
}

// queryRequest.TokenBudget is a pointer so an explicit 0 is rejected instead
// of falling back to the configured default.
type queryRequest struct {
	Question    string                    `json:"question"`
	DocumentID  string                    `json:"document_id"`
	K           int                       `json:"k"`
	Variant     string                    `json:"variant"`
	History     []domain.ConversationTurn `json:"history"`
	TokenBudget *int                      `json:"token_budget"`
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, r, domain.ValidationError("invalid json: %v", err))
		return
	}
	c := callerFromContext(r.Context())
	if c.TenantID == "" {
		writeDomainError(w, r, domain.ValidationError("%s header is required for document questions", tenantHeader))
		return
	}
	budget := 0
	if req.TokenBudget != nil {
		if *req.TokenBudget <= 0 {
			writeDomainError(w, r, domain.ValidationError("token_budget must be positive, got %d", *req.TokenBudget))
			return
		}
		budget = *req.TokenBudget
	}

	answer, err := rt.query.Answer(r.Context(), domain.QuestionRequest{
		Question:    req.Question,
		TenantID:    c.TenantID,
		DocumentID:  strings.TrimSpace(req.DocumentID),
		K:           req.K,
		Variant:     domain.PromptVariant(strings.ToLower(strings.TrimSpace(req.Variant))),
		History:     req.History,
		TokenBudget: budget,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) ragStats(w http.ResponseWriter, r *http.Request) {
	c := callerFromContext(r.Context())
	if c.TenantID == "" {
		writeDomainError(w, r, domain.ValidationError("%s header is required for chunk stats", tenantHeader))
		return
	}
	stats, err := rt.query.Stats(r.Context(), c.TenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": c.TenantID, "chunk_count": stats.ChunkCount, "document_count": stats.DocumentCount})
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, RequestID: requestIDOf(r.Context())})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Default().Error("http_request_failed",
			"request_id", requestIDOf(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, r, status, publicMessage(status, err))
}
