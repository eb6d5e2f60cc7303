package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/maneesh/safeupload/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"
)

type fakeAnalyzer struct {
	SafeSearchFunc func(ctx context.Context, image []byte) (models.SafetyScore, error)
	calls          int
}

func (f *fakeAnalyzer) SafeSearch(ctx context.Context, image []byte) (models.SafetyScore, error) {
	f.calls++
	return f.SafeSearchFunc(ctx, image)
}

func scoreOf(score models.SafetyScore) *fakeAnalyzer {
	return &fakeAnalyzer{SafeSearchFunc: func(context.Context, []byte) (models.SafetyScore, error) {
		return score, nil
	}}
}

const (
	vu = models.VeryUnlikely
	u  = models.Unlikely
	p  = models.Possible
	l  = models.Likely
	vl = models.VeryLikely
)

func TestUnsafe_DecisionTable(t *testing.T) {
	tests := []struct {
		adult, violence, racy models.Likelihood
		want                  bool
	}{
		{vu, vu, vu, false},
		{u, u, u, false},
		{p, vu, vu, false},
		{vu, p, vu, false},
		{vu, vu, p, false},
		{p, u, u, false},
		{p, p, vu, true},
		{p, vu, p, true},
		{vu, p, p, true},
		{p, p, p, true},
		{l, vu, vu, true},
		{vu, l, vu, true},
		{vu, vu, l, true},
		{vl, vu, vu, true},
		{vu, vu, vl, true},
		{l, p, vu, true},
		{models.Unknown, models.Unknown, models.Unknown, false},
		{models.Unknown, p, models.Unknown, false},
	}

	for _, tt := range tests {
		score := models.SafetyScore{Adult: tt.adult, Violence: tt.violence, Racy: tt.racy}
		assert.Equal(t, tt.want, Unsafe(score), "adult=%s violence=%s racy=%s", tt.adult, tt.violence, tt.racy)
	}
}

func TestImageClassifier_UsesDecisionRule(t *testing.T) {
	analyzer := scoreOf(models.SafetyScore{Adult: p, Violence: p, Racy: vu})
	ic := NewImageClassifier(analyzer, FailOpen, 0)

	d := ic.Classify(context.Background(), []byte("img"))
	assert.True(t, d.Unsafe)
	assert.False(t, d.Defaulted)
	assert.Equal(t, p, d.Score.Adult)
	assert.Equal(t, 1, analyzer.calls)
}

func TestImageClassifier_FailOpen(t *testing.T) {
	analyzer := &fakeAnalyzer{SafeSearchFunc: func(context.Context, []byte) (models.SafetyScore, error) {
		return models.SafetyScore{}, &AnalyzerError{Message: "quota exceeded"}
	}}
	ic := NewImageClassifier(analyzer, FailOpen, 0)

	d := ic.Classify(context.Background(), []byte("img"))
	assert.False(t, d.Unsafe)
	assert.True(t, d.Defaulted)
	assert.Equal(t, 1, analyzer.calls, "analyzer must not be retried")
}

func TestImageClassifier_FailClosed(t *testing.T) {
	analyzer := &fakeAnalyzer{SafeSearchFunc: func(context.Context, []byte) (models.SafetyScore, error) {
		return models.SafetyScore{}, errors.New("connection refused")
	}}
	ic := NewImageClassifier(analyzer, FailClosed, 0)

	assert.True(t, ic.IsUnsafe(context.Background(), []byte("img")))
}

func TestImageClassifier_AnalyzerPanic(t *testing.T) {
	analyzer := &fakeAnalyzer{SafeSearchFunc: func(context.Context, []byte) (models.SafetyScore, error) {
		panic("nil client")
	}}
	ic := NewImageClassifier(analyzer, FailOpen, 0)

	var d Decision
	assert.NotPanics(t, func() { d = ic.Classify(context.Background(), nil) })
	assert.True(t, d.Defaulted)
	assert.False(t, d.Unsafe)
}

func TestImageClassifier_Timeout(t *testing.T) {
	analyzer := &fakeAnalyzer{SafeSearchFunc: func(ctx context.Context, _ []byte) (models.SafetyScore, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "expected a deadline on the analyzer context")
		return models.SafetyScore{}, nil
	}}
	ic := NewImageClassifier(analyzer, FailOpen, 50*time.Millisecond)

	ic.Classify(context.Background(), nil)
	assert.Equal(t, 1, analyzer.calls)
}

func TestScoreFromResponse(t *testing.T) {
	score, err := scoreFromResponse(&visionpb.AnnotateImageResponse{
		SafeSearchAnnotation: &visionpb.SafeSearchAnnotation{
			Adult:    visionpb.Likelihood_VERY_LIKELY,
			Violence: visionpb.Likelihood_UNLIKELY,
			Racy:     visionpb.Likelihood_POSSIBLE,
			Medical:  visionpb.Likelihood_LIKELY,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.SafetyScore{Adult: vl, Violence: u, Racy: p}, score)

	_, err = scoreFromResponse(&visionpb.AnnotateImageResponse{
		Error: &status.Status{Code: 13, Message: "internal"},
	})
	var aerr *AnalyzerError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "internal", aerr.Message)
}

func TestLoadWordlist_Default(t *testing.T) {
	wl, err := LoadWordlist("")
	require.NoError(t, err)
	assert.Greater(t, wl.Len(), 0)

	tc := NewTextClassifier(wl)
	assert.True(t, tc.IsUnsafe("what a load of shit"))
	assert.False(t, tc.IsUnsafe("the quick brown fox"))
}

func TestLoadWordlist_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	content := "# house rules\n\nPineapple\n  broccoli  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	wl, err := LoadWordlist(path)
	require.NoError(t, err)
	assert.Equal(t, 2, wl.Len())

	tc := NewTextClassifier(wl)
	assert.True(t, tc.IsUnsafe("I put PINEAPPLE on pizza"))
	assert.False(t, tc.IsUnsafe("I put ham on pizza"))
}

func TestLoadWordlist_Errors(t *testing.T) {
	_, err := LoadWordlist(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("# nothing\n"), 0o644))
	_, err = LoadWordlist(path)
	assert.Error(t, err)
}
