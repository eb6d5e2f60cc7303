package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/maneesh/safeupload/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const createAssessmentsTable = `CREATE TABLE IF NOT EXISTS assessments (
	id         VARCHAR(36)  NOT NULL PRIMARY KEY,
	kind       VARCHAR(16)  NOT NULL,
	filename   VARCHAR(255) NOT NULL,
	verdict    VARCHAR(32)  NOT NULL,
	digest     CHAR(64)     NOT NULL,
	size       BIGINT       NOT NULL,
	stored     BOOLEAN      NOT NULL,
	created_at DATETIME(6)  NOT NULL,
	INDEX idx_assessments_digest (digest)
)`

// TiDBClient appends verdicts to the assessments audit table
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient initializes a new TiDB client and ensures the schema
func NewTiDBClient(dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(createAssessmentsTable); err != nil {
		return nil, fmt.Errorf("failed to create assessments table: %w", err)
	}

	return &TiDBClient{db: db}, nil
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

// RecordAssessment inserts one audit row
func (tc *TiDBClient) RecordAssessment(ctx context.Context, rec *models.AssessmentRecord) error {
	ctx, span := tracer.Start(ctx, "tidb.record_assessment",
		trace.WithAttributes(
			attribute.String("assessment_id", rec.ID),
			attribute.String("kind", string(rec.Kind)),
			attribute.String("verdict", rec.Verdict),
		),
	)
	defer span.End()

	query := `INSERT INTO assessments (id, kind, filename, verdict, digest, size, stored, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tc.db.ExecContext(ctx, query,
		rec.ID, string(rec.Kind), rec.Filename, rec.Verdict, rec.Digest, rec.Size, rec.Stored, rec.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert assessment: %w", err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// RecentAssessments returns the newest records first
func (tc *TiDBClient) RecentAssessments(ctx context.Context, limit int) ([]*models.AssessmentRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.recent_assessments",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	query := `SELECT id, kind, filename, verdict, digest, size, stored, created_at
			  FROM assessments
			  ORDER BY created_at DESC
			  LIMIT ?`

	rows, err := tc.db.QueryContext(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer rows.Close()

	var records []*models.AssessmentRecord
	for rows.Next() {
		var rec models.AssessmentRecord
		var kind string
		err := rows.Scan(
			&rec.ID,
			&kind,
			&rec.Filename,
			&rec.Verdict,
			&rec.Digest,
			&rec.Size,
			&rec.Stored,
			&rec.CreatedAt,
		)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		rec.Kind = models.Kind(kind)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating assessments: %w", err)
	}

	span.SetAttributes(attribute.Int("record_count", len(records)))
	return records, nil
}
