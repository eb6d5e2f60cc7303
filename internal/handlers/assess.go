package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/maneesh/safeupload/internal/models"
	"github.com/maneesh/safeupload/internal/moderation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("safeupload-handlers")

// multipartMemory is how much of a form is buffered in memory before
// parts spill to disk.
const multipartMemory = 32 << 20

// Assessor classifies a set of artifacts and returns a label per kind
type Assessor interface {
	Assess(ctx context.Context, artifacts []models.Artifact) (map[models.Kind]string, error)
}

// AssessHandler handles moderation uploads
type AssessHandler struct {
	assessor Assessor
	maxBytes int64
	tempDir  string
}

// NewAssessHandler creates a new assess handler. Uploads are spooled
// under tempDir, or the system temp directory when it is empty.
func NewAssessHandler(assessor Assessor, maxBytes int64, tempDir string) *AssessHandler {
	return &AssessHandler{
		assessor: assessor,
		maxBytes: maxBytes,
		tempDir:  tempDir,
	}
}

// AssessResponse is the body returned by POST /assess
type AssessResponse struct {
	Assessment map[models.Kind]string `json:"assessment"`
}

// ServeHTTP handles POST /assess with optional text_file, image and video parts
func (ah *AssessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "assess_upload",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	if r.ContentLength > ah.maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, ah.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		span.RecordError(err)
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	// Request-scoped spool directory, removed on every exit path.
	spoolDir, err := os.MkdirTemp(ah.tempDir, "assess-")
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, "failed to allocate upload space")
		return
	}
	defer os.RemoveAll(spoolDir)

	artifacts, err := ah.spoolArtifacts(r.MultipartForm, spoolDir)
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}
	span.SetAttributes(attribute.Int("artifact_count", len(artifacts)))
	log.Printf("Assessing %d artifact(s)", len(artifacts))

	results, err := ah.assessor.Assess(ctx, artifacts)
	if err != nil {
		span.RecordError(err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("assessment failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, AssessResponse{Assessment: results})
}

// spoolArtifacts copies each present part into dir. A part sent without a
// filename arrives as a plain form value and is stored under the kind's
// placeholder name.
func (ah *AssessHandler) spoolArtifacts(form *multipart.Form, dir string) ([]models.Artifact, error) {
	var artifacts []models.Artifact

	for _, kind := range models.Kinds {
		if headers := form.File[string(kind)]; len(headers) > 0 {
			a, err := spoolFile(headers[0], kind, dir)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, a)
			continue
		}
		if values := form.Value[string(kind)]; len(values) > 0 {
			a, err := spoolBytes(strings.NewReader(values[0]), kind, kind.Placeholder(), dir)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, a)
		}
	}

	return artifacts, nil
}

func spoolFile(fh *multipart.FileHeader, kind models.Kind, dir string) (models.Artifact, error) {
	f, err := fh.Open()
	if err != nil {
		return models.Artifact{}, fmt.Errorf("open %s part: %w", kind, err)
	}
	defer f.Close()

	name := moderation.SanitizeFilename(fh.Filename, kind.Placeholder())
	return spoolBytes(f, kind, name, dir)
}

func spoolBytes(r io.Reader, kind models.Kind, name, dir string) (models.Artifact, error) {
	kindDir := filepath.Join(dir, string(kind))
	if err := os.MkdirAll(kindDir, 0o700); err != nil {
		return models.Artifact{}, fmt.Errorf("create spool dir: %w", err)
	}

	path := filepath.Join(kindDir, name)
	out, err := os.Create(path)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("create spool file: %w", err)
	}
	defer out.Close()

	size, err := io.Copy(out, r)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("spool %s: %w", kind, err)
	}

	return models.Artifact{
		Kind:     kind,
		Filename: name,
		Path:     path,
		Size:     size,
	}, nil
}
