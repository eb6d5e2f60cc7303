package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("safeupload-storage")

// UploadStore persists files that passed moderation. Names are flat
// (no directories) and a second save under the same name replaces the first.
type UploadStore interface {
	Save(ctx context.Context, name string, r io.Reader, size int64) error
	List(ctx context.Context) ([]string, error)
}

// ComputeHash computes SHA256 hash of data
func ComputeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
