package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/maneesh/safeupload/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Lister lists stored upload names
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// ListHandler handles GET /list-uploads
type ListHandler struct {
	store Lister
}

// NewListHandler creates a new list handler
func NewListHandler(store Lister) *ListHandler {
	return &ListHandler{store: store}
}

// ServeHTTP returns a JSON array of stored filenames
func (lh *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_uploads",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	names, err := lh.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list uploads: %v", err))
		return
	}
	if names == nil {
		names = []string{}
	}

	span.SetAttributes(attribute.Int("file_count", len(names)))
	writeJSON(w, http.StatusOK, names)
}

// AuditReader reads recent audit records
type AuditReader interface {
	RecentAssessments(ctx context.Context, limit int) ([]*models.AssessmentRecord, error)
}

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditHandler handles GET /assessments?limit=N
type AuditHandler struct {
	audit AuditReader
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit AuditReader) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// ServeHTTP returns the newest audit records
func (ah *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_assessments",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	limit := defaultAuditLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	records, err := ah.audit.RecentAssessments(ctx, limit)
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read assessments: %v", err))
		return
	}
	if records == nil {
		records = []*models.AssessmentRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
