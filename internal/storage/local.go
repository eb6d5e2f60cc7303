package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tempPrefix marks in-flight writes. Stored names never contain control
// characters, so no upload can be mistaken for a temp file.
const tempPrefix = "\x1f.upload-"

// LocalStore keeps uploads in a single flat directory
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if it does not exist
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the upload directory
func (ls *LocalStore) Dir() string {
	return ls.dir
}

// Save writes r to a temp file and renames it over name
func (ls *LocalStore) Save(ctx context.Context, name string, r io.Reader, size int64) error {
	_, span := tracer.Start(ctx, "local.save",
		trace.WithAttributes(
			attribute.String("file_name", name),
			attribute.Int64("size_bytes", size),
		),
	)
	defer span.End()

	if err := checkName(name); err != nil {
		span.RecordError(err)
		return err
	}

	if err := os.MkdirAll(ls.dir, 0o755); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(ls.dir, tempPrefix+"*")
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		span.RecordError(err)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		span.RecordError(err)
		return fmt.Errorf("failed to set mode on %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		span.RecordError(err)
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, filepath.Join(ls.dir, name)); err != nil {
		os.Remove(tmpPath)
		span.RecordError(err)
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	span.SetAttributes(attribute.Bool("save_success", true))
	return nil
}

// List returns the names of regular files, sorted. A missing directory
// yields an empty list.
func (ls *LocalStore) List(ctx context.Context) ([]string, error) {
	_, span := tracer.Start(ctx, "local.list")
	defer span.End()

	entries, err := os.ReadDir(ls.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read upload dir: %w", err)
	}

	names := []string{}
	for _, e := range entries {
		// Skip in-flight temp files.
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	span.SetAttributes(attribute.Int("file_count", len(names)))
	return names, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid upload name %q", name)
	}
	if strings.ContainsFunc(name, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return fmt.Errorf("invalid upload name %q: control character", name)
	}
	return nil
}
