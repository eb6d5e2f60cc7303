package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MinioClient stores uploads as top-level objects in a bucket
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinioClient initializes a new MinIO client
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	mc := &MinioClient{
		client:     client,
		bucketName: bucketName,
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		log.Printf("Creating bucket: %s", bucketName)
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Printf("Bucket %s created successfully", bucketName)
	}

	return mc, nil
}

// Save uploads r as object name, replacing any existing object
func (mc *MinioClient) Save(ctx context.Context, name string, r io.Reader, size int64) error {
	ctx, span := tracer.Start(ctx, "minio.save",
		trace.WithAttributes(
			attribute.String("object_key", name),
			attribute.Int64("size_bytes", size),
		),
	)
	defer span.End()

	if err := checkName(name); err != nil {
		span.RecordError(err)
		return err
	}

	_, err := mc.client.PutObject(ctx, mc.bucketName, name, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return nil
}

// List returns top-level object names, sorted
func (mc *MinioClient) List(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "minio.list")
	defer span.End()

	names := []string{}
	for obj := range mc.client.ListObjects(ctx, mc.bucketName, minio.ListObjectsOptions{Recursive: false}) {
		if obj.Err != nil {
			span.RecordError(obj.Err)
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		// Non-recursive listings report prefixes as keys ending in "/".
		if checkName(obj.Key) != nil {
			continue
		}
		names = append(names, obj.Key)
	}
	sort.Strings(names)

	span.SetAttributes(attribute.Int("object_count", len(names)))
	return names, nil
}
