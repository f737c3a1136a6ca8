// Package store persists finished analysis reports for audit.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

const reportsSchema = `CREATE TABLE IF NOT EXISTS analysis_reports (
	job_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	report JSONB NOT NULL,
	checksum TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store writes reports to Postgres.
type Store struct {
	DB *sql.DB
}

// Report is a stored report row.
type Report struct {
	JobID     string
	Kind      string
	Body      json.RawMessage
	Checksum  string
	CreatedAt time.Time
}

var (
	metricsOnce  sync.Once
	savedCounter otelmetric.Int64Counter
	bytesCounter otelmetric.Int64Counter
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	savedCounter, _ = meter.Int64Counter("credence_reports_saved_total")
	bytesCounter, _ = meter.Int64Counter("credence_report_bytes_total")
}

// NewWithDSN opens Postgres, checks the connection and creates the schema.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{DB: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the reports table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, reportsSchema); err != nil {
		return fmt.Errorf("ensure analysis_reports: %w", err)
	}
	return nil
}

// SaveReport stores report as JSON under jobID, replacing an earlier row.
func (s *Store) SaveReport(ctx context.Context, jobID, kind string, report any) error {
	if jobID == "" {
		return errors.New("save report: job id required")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", jobID, err)
	}
	sum := sha256.Sum256(body)
	checksum := hex.EncodeToString(sum[:])
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO analysis_reports (job_id, kind, report, checksum, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (job_id) DO UPDATE SET kind = EXCLUDED.kind, report = EXCLUDED.report,
		   checksum = EXCLUDED.checksum, created_at = NOW()`,
		jobID, kind, body, checksum,
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", jobID, err)
	}
	metricsOnce.Do(initStoreMetrics)
	attrs := otelmetric.WithAttributes(attribute.String("kind", kind))
	savedCounter.Add(ctx, 1, attrs)
	bytesCounter.Add(ctx, int64(len(body)), attrs)
	return nil
}

// GetReport loads the report of jobID.
func (s *Store) GetReport(ctx context.Context, jobID string) (Report, bool, error) {
	var r Report
	err := s.DB.QueryRowContext(ctx,
		`SELECT job_id, kind, report, checksum, created_at FROM analysis_reports WHERE job_id = $1`, jobID,
	).Scan(&r.JobID, &r.Kind, &r.Body, &r.Checksum, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, false, nil
	}
	if err != nil {
		return Report{}, false, fmt.Errorf("query report %s: %w", jobID, err)
	}
	return r, true, nil
}

// PruneReportsBefore deletes reports created before cutoff.
func (s *Store) PruneReportsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM analysis_reports WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
