// Package classify decides whether text and images are safe to keep.
package classify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/maneesh/safeupload/internal/metrics"
	"github.com/maneesh/safeupload/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("safeupload-classify")

// Analyzer scores an image on the adult, violence and racy categories
type Analyzer interface {
	SafeSearch(ctx context.Context, image []byte) (models.SafetyScore, error)
}

// AnalyzerError is an error reported inside an otherwise successful
// analyzer response.
type AnalyzerError struct {
	Message string
}

func (e *AnalyzerError) Error() string {
	return "analyzer error: " + e.Message
}

// FailurePolicy chooses the verdict used when the analyzer cannot answer.
type FailurePolicy struct {
	Default models.Verdict
}

// FailOpen treats unanswered images as safe. Unsafe images get through
// whenever the analyzer is down.
var FailOpen = FailurePolicy{Default: models.Safe}

// FailClosed treats unanswered images as unsafe.
var FailClosed = FailurePolicy{Default: models.Unsafe}

// Decision is the outcome of classifying one image
type Decision struct {
	Unsafe bool
	Score  models.SafetyScore
	// Defaulted is set when the verdict came from the failure policy
	Defaulted bool
}

// Unsafe applies the moderation rule: two or more categories at
// Possible or above, or any single category at Likely or above.
func Unsafe(s models.SafetyScore) bool {
	levels := []models.Likelihood{s.Adult, s.Violence, s.Racy}

	possibleOrHigher := 0
	anyLikelyOrHigher := false
	for _, l := range levels {
		if l >= models.Possible {
			possibleOrHigher++
		}
		if l >= models.Likely {
			anyLikelyOrHigher = true
		}
	}

	return possibleOrHigher >= 2 || anyLikelyOrHigher
}

// ImageClassifier classifies images through a remote Analyzer
type ImageClassifier struct {
	analyzer Analyzer
	policy   FailurePolicy
	timeout  time.Duration
}

// NewImageClassifier creates an image classifier. A zero timeout leaves
// the deadline to the analyzer client.
func NewImageClassifier(analyzer Analyzer, policy FailurePolicy, timeout time.Duration) *ImageClassifier {
	return &ImageClassifier{
		analyzer: analyzer,
		policy:   policy,
		timeout:  timeout,
	}
}

// Classify calls the analyzer exactly once. It never returns an error;
// analyzer failures resolve through the failure policy.
func (ic *ImageClassifier) Classify(ctx context.Context, image []byte) Decision {
	ctx, span := tracer.Start(ctx, "classify.image")
	defer span.End()

	if ic.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ic.timeout)
		defer cancel()
	}

	score, err := ic.safeSearch(ctx, image)
	if err != nil {
		span.RecordError(err)
		metrics.AnalyzerFailures.Inc()
		log.Printf("Warning: image analysis failed, using default verdict %q: %v", ic.policy.Default.Label(), err)
		return Decision{Unsafe: ic.policy.Default == models.Unsafe, Defaulted: true}
	}

	unsafe := Unsafe(score)
	span.SetAttributes(
		attribute.String("adult", score.Adult.String()),
		attribute.String("violence", score.Violence.String()),
		attribute.String("racy", score.Racy.String()),
		attribute.Bool("unsafe", unsafe),
	)
	return Decision{Unsafe: unsafe, Score: score}
}

// IsUnsafe is Classify reduced to its verdict
func (ic *ImageClassifier) IsUnsafe(ctx context.Context, image []byte) bool {
	return ic.Classify(ctx, image).Unsafe
}

// safeSearch turns analyzer panics into errors so a misbehaving client
// cannot take the request down.
func (ic *ImageClassifier) safeSearch(ctx context.Context, image []byte) (score models.SafetyScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzer panic: %v", r)
		}
	}()
	return ic.analyzer.SafeSearch(ctx, image)
}
