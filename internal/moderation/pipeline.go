// Package moderation runs uploaded artifacts through the classifiers and
// keeps only the ones judged safe.
package moderation

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/safeupload/internal/classify"
	"github.com/maneesh/safeupload/internal/extract"
	"github.com/maneesh/safeupload/internal/metrics"
	"github.com/maneesh/safeupload/internal/models"
	"github.com/maneesh/safeupload/internal/storage"
	"github.com/maneesh/safeupload/internal/video"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("safeupload-moderation")

// TextClassifier flags unsafe text
type TextClassifier interface {
	IsUnsafe(text string) bool
}

// ImageClassifier classifies one encoded image without failing
type ImageClassifier interface {
	Classify(ctx context.Context, image []byte) classify.Decision
}

// FrameScanner walks sampled video frames in order until fn returns false
type FrameScanner interface {
	Scan(ctx context.Context, path string, fn func(*video.Frame) bool) error
}

// VerdictCache memoizes verdicts by content key. For text the key carries
// the extension as well as the digest.
type VerdictCache interface {
	GetVerdict(ctx context.Context, kind models.Kind, key string) (models.Verdict, bool, error)
	SetVerdict(ctx context.Context, kind models.Kind, key string, v models.Verdict) error
}

// AuditLog records every verdict
type AuditLog interface {
	RecordAssessment(ctx context.Context, rec *models.AssessmentRecord) error
}

// Pipeline applies the save-or-reject policy per artifact kind
type Pipeline struct {
	store  storage.UploadStore
	text   TextClassifier
	image  ImageClassifier
	frames FrameScanner
	cache  VerdictCache
	audit  AuditLog
}

// NewPipeline creates a pipeline without cache or audit log
func NewPipeline(
	store storage.UploadStore,
	text TextClassifier,
	image ImageClassifier,
	frames FrameScanner,
) *Pipeline {
	return &Pipeline{
		store:  store,
		text:   text,
		image:  image,
		frames: frames,
	}
}

// WithCache enables verdict caching
func (p *Pipeline) WithCache(c VerdictCache) *Pipeline {
	p.cache = c
	return p
}

// WithAudit enables the audit log
func (p *Pipeline) WithAudit(a AuditLog) *Pipeline {
	p.audit = a
	return p
}

// Assess processes each artifact independently, in kind order, and
// returns a verdict label per kind present.
func (p *Pipeline) Assess(ctx context.Context, artifacts []models.Artifact) (map[models.Kind]string, error) {
	results := make(map[models.Kind]string, len(artifacts))

	byKind := make(map[models.Kind]models.Artifact, len(artifacts))
	for _, a := range artifacts {
		byKind[a.Kind] = a
	}

	for _, kind := range models.Kinds {
		a, ok := byKind[kind]
		if !ok {
			continue
		}

		var (
			v   models.Verdict
			err error
		)
		switch kind {
		case models.KindText:
			v, err = p.AssessText(ctx, a)
		case models.KindImage:
			v, err = p.AssessImage(ctx, a)
		case models.KindVideo:
			v, err = p.AssessVideo(ctx, a)
		}
		if err != nil {
			return nil, err
		}
		results[kind] = v.Label()
	}

	return results, nil
}

// AssessText extracts and classifies a document. Corrupt, unsupported
// and blank documents are Unreadable.
func (p *Pipeline) AssessText(ctx context.Context, a models.Artifact) (models.Verdict, error) {
	return p.run(ctx, a, func(ctx context.Context, data []byte) (models.Verdict, bool) {
		_, span := tracer.Start(ctx, "moderation.extract_text")
		defer span.End()

		text, err := extract.Extract(data, a.Filename)
		if err != nil {
			span.RecordError(err)
			log.Printf("Warning: could not read %s: %v", a.Filename, err)
			return models.Unreadable, true
		}
		if strings.TrimSpace(text) == "" {
			return models.Unreadable, true
		}

		span.SetAttributes(attribute.Int("text_length", len(text)))
		if p.text.IsUnsafe(text) {
			return models.Unsafe, true
		}
		return models.Safe, true
	})
}

// AssessImage classifies an image directly
func (p *Pipeline) AssessImage(ctx context.Context, a models.Artifact) (models.Verdict, error) {
	return p.run(ctx, a, func(ctx context.Context, data []byte) (models.Verdict, bool) {
		d := p.image.Classify(ctx, data)
		if d.Unsafe {
			return models.Unsafe, !d.Defaulted
		}
		return models.Safe, !d.Defaulted
	})
}

// AssessVideo classifies sampled frames in order and stops at the first
// unsafe one. A video with no decodable frames is Safe.
func (p *Pipeline) AssessVideo(ctx context.Context, a models.Artifact) (models.Verdict, error) {
	return p.run(ctx, a, func(ctx context.Context, _ []byte) (models.Verdict, bool) {
		unsafe := false
		cacheable := true
		classified := 0

		err := p.frames.Scan(ctx, a.Path, func(f *video.Frame) bool {
			data, err := f.Data()
			if err != nil {
				log.Printf("Warning: skipping frame %d of %s: %v", f.Index, a.Filename, err)
				return true
			}

			d := p.image.Classify(ctx, data)
			classified++
			metrics.FramesClassified.Inc()
			if d.Defaulted {
				cacheable = false
			}
			if d.Unsafe {
				unsafe = true
				return false
			}
			return true
		})
		if err != nil {
			// Nothing could be sampled; treated like a video with zero frames.
			log.Printf("Warning: could not sample %s: %v", a.Filename, err)
			cacheable = false
		}

		log.Printf("Video %s: %d frames classified, unsafe=%t", a.Filename, classified, unsafe)
		if unsafe {
			return models.Unsafe, cacheable
		}
		return models.Safe, cacheable
	})
}

type classifyFunc func(ctx context.Context, data []byte) (v models.Verdict, cacheable bool)

// run wraps a classifier with caching, persistence, audit and metrics.
// Only a persistence failure is returned as an error.
func (p *Pipeline) run(ctx context.Context, a models.Artifact, classifyFn classifyFunc) (models.Verdict, error) {
	ctx, span := tracer.Start(ctx, "moderation.assess",
		trace.WithAttributes(
			attribute.String("kind", string(a.Kind)),
			attribute.String("file_name", a.Filename),
			attribute.Int64("file_size", a.Size),
		),
	)
	defer span.End()
	start := time.Now()

	data, err := os.ReadFile(a.Path)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to read spooled %s: %w", a.Kind, err)
	}
	digest := storage.ComputeHash(data)

	key := cacheKey(a, digest)
	v, cached := p.lookup(ctx, a.Kind, key)
	if !cached {
		var cacheable bool
		v, cacheable = classifyFn(ctx, data)
		if cacheable {
			p.remember(ctx, a.Kind, key, v)
		}
	}
	span.SetAttributes(
		attribute.String("verdict", v.Label()),
		attribute.Bool("cache_hit", cached),
	)
	log.Printf("Assessed %s %s: %s", a.Kind, a.Filename, v.Label())

	stored := false
	if v == models.Safe {
		if err := p.persist(ctx, a); err != nil {
			span.RecordError(err)
			return 0, err
		}
		stored = true
	}

	p.record(ctx, a, v, digest, stored)
	metrics.Verdicts.WithLabelValues(string(a.Kind), v.Label()).Inc()
	metrics.AssessDuration.WithLabelValues(string(a.Kind)).Observe(time.Since(start).Seconds())

	return v, nil
}

// cacheKey scopes text verdicts by extension, since the extension picks
// the reader and identical bytes can be readable under one name and not
// another.
func cacheKey(a models.Artifact, digest string) string {
	if a.Kind == models.KindText {
		return extract.Extension(a.Filename) + ":" + digest
	}
	return digest
}

func (p *Pipeline) persist(ctx context.Context, a models.Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("failed to open spooled %s: %w", a.Kind, err)
	}
	defer f.Close()

	if err := p.store.Save(ctx, a.Filename, f, a.Size); err != nil {
		return fmt.Errorf("failed to store %s: %w", a.Filename, err)
	}
	log.Printf("Stored %s", a.Filename)
	return nil
}

func (p *Pipeline) lookup(ctx context.Context, kind models.Kind, key string) (models.Verdict, bool) {
	if p.cache == nil {
		return 0, false
	}
	v, ok, err := p.cache.GetVerdict(ctx, kind, key)
	if err != nil {
		log.Printf("Warning: verdict cache lookup failed: %v", err)
		return 0, false
	}
	return v, ok
}

func (p *Pipeline) remember(ctx context.Context, kind models.Kind, key string, v models.Verdict) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetVerdict(ctx, kind, key, v); err != nil {
		log.Printf("Warning: failed to cache verdict: %v", err)
	}
}

func (p *Pipeline) record(ctx context.Context, a models.Artifact, v models.Verdict, digest string, stored bool) {
	if p.audit == nil {
		return
	}
	rec := &models.AssessmentRecord{
		ID:        uuid.New().String(),
		Kind:      a.Kind,
		Filename:  a.Filename,
		Verdict:   v.Label(),
		Digest:    digest,
		Size:      a.Size,
		Stored:    stored,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.audit.RecordAssessment(ctx, rec); err != nil {
		log.Printf("Warning: failed to record assessment: %v", err)
	}
}
