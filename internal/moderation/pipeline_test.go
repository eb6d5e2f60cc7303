package moderation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maneesh/safeupload/internal/classify"
	"github.com/maneesh/safeupload/internal/models"
	"github.com/maneesh/safeupload/internal/storage"
	"github.com/maneesh/safeupload/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeText struct {
	unsafeWords []string
	calls       int
}

func (f *fakeText) IsUnsafe(text string) bool {
	f.calls++
	for _, w := range f.unsafeWords {
		if strings.Contains(strings.ToLower(text), w) {
			return true
		}
	}
	return false
}

type fakeImage struct {
	ClassifyFunc func(ctx context.Context, image []byte) classify.Decision
	calls        int
}

func (f *fakeImage) Classify(ctx context.Context, image []byte) classify.Decision {
	f.calls++
	return f.ClassifyFunc(ctx, image)
}

func alwaysImage(d classify.Decision) *fakeImage {
	return &fakeImage{ClassifyFunc: func(context.Context, []byte) classify.Decision { return d }}
}

// frameDecoder produces frames whose single byte is the frame index.
type frameDecoder struct {
	total   int
	openErr error
	decoded []string
}

func (d *frameDecoder) Open(ctx context.Context, path string) (video.Video, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &frameVideo{d: d}, nil
}

type frameVideo struct{ d *frameDecoder }

func (v *frameVideo) FrameCount() int { return v.d.total }

func (v *frameVideo) ReadFrame(ctx context.Context, index int, dst string) error {
	v.d.decoded = append(v.d.decoded, dst)
	return os.WriteFile(dst, []byte{byte(index)}, 0o600)
}

func (v *frameVideo) Close() error { return nil }

type fakeCache struct {
	entries map[string]models.Verdict
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]models.Verdict{}}
}

func (c *fakeCache) GetVerdict(ctx context.Context, kind models.Kind, digest string) (models.Verdict, bool, error) {
	v, ok := c.entries[string(kind)+":"+digest]
	return v, ok, nil
}

func (c *fakeCache) SetVerdict(ctx context.Context, kind models.Kind, digest string, v models.Verdict) error {
	c.sets++
	c.entries[string(kind)+":"+digest] = v
	return nil
}

type fakeAudit struct {
	records []*models.AssessmentRecord
	err     error
}

func (a *fakeAudit) RecordAssessment(ctx context.Context, rec *models.AssessmentRecord) error {
	a.records = append(a.records, rec)
	return a.err
}

type failingStore struct{}

func (failingStore) Save(context.Context, string, io.Reader, int64) error {
	return errors.New("disk full")
}

func (failingStore) List(context.Context) ([]string, error) { return nil, nil }

type fixture struct {
	store   *storage.LocalStore
	text    *fakeText
	image   *fakeImage
	decoder *frameDecoder
	p       *Pipeline
	tmp     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	f := &fixture{
		store:   store,
		text:    &fakeText{unsafeWords: []string{"darn"}},
		image:   alwaysImage(classify.Decision{}),
		decoder: &frameDecoder{total: 100},
		tmp:     t.TempDir(),
	}
	sampler := video.NewSampler(f.decoder, video.DefaultMaxFrames, f.tmp)
	f.p = NewPipeline(store, f.text, f.image, sampler)
	return f
}

func (f *fixture) artifact(t *testing.T, kind models.Kind, name string, data []byte) models.Artifact {
	t.Helper()
	path := filepath.Join(f.tmp, "spool-"+string(kind))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return models.Artifact{Kind: kind, Filename: name, Path: path, Size: int64(len(data))}
}

func (f *fixture) stored(t *testing.T) []string {
	t.Helper()
	names, err := f.store.List(context.Background())
	require.NoError(t, err)
	return names
}

func TestAssessText_SafeIsStored(t *testing.T) {
	f := newFixture(t)
	a := f.artifact(t, models.KindText, "notes.txt", []byte("hello there"))

	v, err := f.p.AssessText(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, models.Safe, v)
	assert.Equal(t, []string{"notes.txt"}, f.stored(t))

	data, err := os.ReadFile(filepath.Join(f.store.Dir(), "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(data))
}

func TestAssessText_UnsafeIsDiscarded(t *testing.T) {
	f := newFixture(t)
	a := f.artifact(t, models.KindText, "rant.txt", []byte("well DARN it"))

	v, err := f.p.AssessText(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, models.Unsafe, v)
	assert.Empty(t, f.stored(t))
}

func TestAssessText_Unreadable(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"whitespace only", "blank.txt", []byte(" \n\t  \r\n")},
		{"empty file", "empty.txt", nil},
		{"unsupported format", "slides.pptx", []byte("PK binary")},
		{"corrupt pdf", "broken.pdf", []byte("not a pdf")},
		{"corrupt docx", "broken.docx", []byte("not a zip")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.artifact(t, models.KindText, tt.filename, tt.data)

			v, err := f.p.AssessText(context.Background(), a)
			require.NoError(t, err)
			assert.Equal(t, models.Unreadable, v)
			assert.Equal(t, "No readable text found.", v.Label())
			assert.Empty(t, f.stored(t))
			assert.Zero(t, f.text.calls, "blank text must not reach the classifier")
		})
	}
}

func TestAssessImage(t *testing.T) {
	f := newFixture(t)
	f.image.ClassifyFunc = func(_ context.Context, img []byte) classify.Decision {
		return classify.Decision{Unsafe: bytes.Equal(img, []byte("bad"))}
	}

	v, err := f.p.AssessImage(context.Background(), f.artifact(t, models.KindImage, "cat.png", []byte("good")))
	require.NoError(t, err)
	assert.Equal(t, models.Safe, v)

	v, err = f.p.AssessImage(context.Background(), f.artifact(t, models.KindImage, "gore.png", []byte("bad")))
	require.NoError(t, err)
	assert.Equal(t, models.Unsafe, v)

	assert.Equal(t, []string{"cat.png"}, f.stored(t))
}

func TestAssessVideo_StopsAtFirstUnsafeFrame(t *testing.T) {
	f := newFixture(t)
	var seen []byte
	f.image.ClassifyFunc = func(_ context.Context, img []byte) classify.Decision {
		seen = append(seen, img[0])
		// The third sampled frame (index 40 of 100) is unsafe.
		return classify.Decision{Unsafe: img[0] == 40}
	}

	v, err := f.p.AssessVideo(context.Background(), f.artifact(t, models.KindVideo, "clip.mp4", []byte("video")))
	require.NoError(t, err)

	assert.Equal(t, models.Unsafe, v)
	assert.Equal(t, 3, f.image.calls, "frames after the unsafe one must not be classified")
	assert.Equal(t, []byte{0, 20, 40}, seen)
	require.Len(t, f.decoder.decoded, 3)
	for _, p := range f.decoder.decoded {
		assert.NoFileExists(t, p)
	}
	assert.Empty(t, f.stored(t))
}

func TestAssessVideo_AllSafeIsStored(t *testing.T) {
	f := newFixture(t)

	v, err := f.p.AssessVideo(context.Background(), f.artifact(t, models.KindVideo, "clip.mp4", []byte("video")))
	require.NoError(t, err)

	assert.Equal(t, models.Safe, v)
	assert.Equal(t, 5, f.image.calls)
	for _, p := range f.decoder.decoded {
		assert.NoFileExists(t, p)
	}
	assert.Equal(t, []string{"clip.mp4"}, f.stored(t))
}

func TestAssessVideo_ZeroFramesIsSafe(t *testing.T) {
	f := newFixture(t)
	f.decoder.total = 0

	v, err := f.p.AssessVideo(context.Background(), f.artifact(t, models.KindVideo, "empty.mp4", []byte("video")))
	require.NoError(t, err)
	assert.Equal(t, models.Safe, v)
	assert.Zero(t, f.image.calls)
	assert.Equal(t, []string{"empty.mp4"}, f.stored(t))
}

func TestAssessVideo_UndecodableIsSafe(t *testing.T) {
	f := newFixture(t)
	f.decoder.openErr = errors.New("moov atom not found")

	v, err := f.p.AssessVideo(context.Background(), f.artifact(t, models.KindVideo, "bad.mp4", []byte("video")))
	require.NoError(t, err)
	assert.Equal(t, models.Safe, v)
}

func TestAssess_OnlyPresentKinds(t *testing.T) {
	f := newFixture(t)
	text := f.artifact(t, models.KindText, "blank.txt", []byte("   "))
	img := f.artifact(t, models.KindImage, "cat.png", []byte("img"))

	results, err := f.p.Assess(context.Background(), []models.Artifact{img, text})
	require.NoError(t, err)

	assert.Equal(t, map[models.Kind]string{
		models.KindText:  "No readable text found.",
		models.KindImage: "safe",
	}, results)
	assert.Equal(t, []string{"cat.png"}, f.stored(t))
}

func TestAssess_StoreFailure(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(failingStore{}, f.text, f.image, video.NewSampler(f.decoder, 5, f.tmp))

	_, err := p.Assess(context.Background(), []models.Artifact{
		f.artifact(t, models.KindImage, "cat.png", []byte("img")),
	})
	assert.ErrorContains(t, err, "disk full")
}

func TestCache_HitSkipsClassifier(t *testing.T) {
	f := newFixture(t)
	cache := newFakeCache()
	f.p.WithCache(cache)

	a := f.artifact(t, models.KindImage, "cat.png", []byte("img"))
	_, err := f.p.AssessImage(context.Background(), a)
	require.NoError(t, err)
	_, err = f.p.AssessImage(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, 1, f.image.calls)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, []string{"cat.png"}, f.stored(t), "cached safe verdicts still persist")
}

func TestCache_TextVerdictIsScopedByExtension(t *testing.T) {
	ctx := context.Background()

	t.Run("unreadable does not leak to readable", func(t *testing.T) {
		f := newFixture(t)
		f.p.WithCache(newFakeCache())
		data := []byte("well darn it")

		v, err := f.p.AssessText(ctx, f.artifact(t, models.KindText, "rant.bin", data))
		require.NoError(t, err)
		assert.Equal(t, models.Unreadable, v)

		v, err = f.p.AssessText(ctx, f.artifact(t, models.KindText, "rant.txt", data))
		require.NoError(t, err)
		assert.Equal(t, models.Unsafe, v)
		assert.Equal(t, 1, f.text.calls)
		assert.Empty(t, f.stored(t))
	})

	t.Run("safe does not leak to unreadable", func(t *testing.T) {
		f := newFixture(t)
		f.p.WithCache(newFakeCache())
		data := []byte("hello there")

		v, err := f.p.AssessText(ctx, f.artifact(t, models.KindText, "a.txt", data))
		require.NoError(t, err)
		assert.Equal(t, models.Safe, v)

		v, err = f.p.AssessText(ctx, f.artifact(t, models.KindText, "a.docx", data))
		require.NoError(t, err)
		assert.Equal(t, models.Unreadable, v)
		assert.Equal(t, []string{"a.txt"}, f.stored(t))
	})

	t.Run("same extension hits", func(t *testing.T) {
		f := newFixture(t)
		f.p.WithCache(newFakeCache())
		data := []byte("hello there")

		_, err := f.p.AssessText(ctx, f.artifact(t, models.KindText, "a.txt", data))
		require.NoError(t, err)
		_, err = f.p.AssessText(ctx, f.artifact(t, models.KindText, "b.TXT", data))
		require.NoError(t, err)
		assert.Equal(t, 1, f.text.calls)
	})
}

func TestCache_DefaultedVerdictNotCached(t *testing.T) {
	f := newFixture(t)
	cache := newFakeCache()
	f.p.WithCache(cache)
	f.image.ClassifyFunc = func(context.Context, []byte) classify.Decision {
		return classify.Decision{Defaulted: true}
	}

	_, err := f.p.AssessImage(context.Background(), f.artifact(t, models.KindImage, "cat.png", []byte("img")))
	require.NoError(t, err)
	assert.Zero(t, cache.sets)
}

func TestAudit_RecordsEveryVerdict(t *testing.T) {
	f := newFixture(t)
	audit := &fakeAudit{err: errors.New("db down")}
	f.p.WithAudit(audit)

	_, err := f.p.Assess(context.Background(), []models.Artifact{
		f.artifact(t, models.KindText, "rant.txt", []byte("darn")),
		f.artifact(t, models.KindImage, "cat.png", []byte("img")),
	})
	require.NoError(t, err, "audit failures must not fail the request")

	require.Len(t, audit.records, 2)
	assert.Equal(t, models.KindText, audit.records[0].Kind)
	assert.Equal(t, "unsafe", audit.records[0].Verdict)
	assert.False(t, audit.records[0].Stored)
	assert.Equal(t, "safe", audit.records[1].Verdict)
	assert.True(t, audit.records[1].Stored)
	assert.Equal(t, storage.ComputeHash([]byte("img")), audit.records[1].Digest)
	assert.NotEmpty(t, audit.records[1].ID)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\photo.jpg`, "photo.jpg"},
		{"/abs/path/", "path"},
		{"", "placeholder"},
		{"..", "placeholder"},
		{".", "placeholder"},
		{"///", "placeholder"},
		{"dir/..", "placeholder"},
		{"bad\x00name.txt", "badname.txt"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in, "placeholder"), "input %q", tt.in)
	}
}
