package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestSaveReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	report := map[string]any{"overall_score": 72, "overall_rating": "Credible"}
	body, _ := json.Marshal(report)
	sum := sha256.Sum256(body)

	mock.ExpectExec(`INSERT INTO analysis_reports`).
		WithArgs("job-1", "comprehensive", body, hex.EncodeToString(sum[:])).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveReport(context.Background(), "job-1", "comprehensive", report); err != nil {
		t.Fatalf("SaveReport returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveReportWrapsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO analysis_reports`).WillReturnError(boom)

	st := &Store{DB: db}
	err = st.SaveReport(context.Background(), "job-2", "fact_check", map[string]int{"total_facts": 0})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if err := st.SaveReport(context.Background(), "", "fact_check", nil); err == nil {
		t.Fatal("expected an error for a missing job id")
	}
}

func TestGetReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"job_id", "kind", "report", "checksum", "created_at"}).
		AddRow("job-1", "comprehensive", []byte(`{"overall_score":72}`), "abc", created)
	mock.ExpectQuery(`SELECT job_id, kind, report, checksum, created_at FROM analysis_reports WHERE job_id = \$1`).
		WithArgs("job-1").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT job_id, kind, report, checksum, created_at FROM analysis_reports WHERE job_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "kind", "report", "checksum", "created_at"}))

	st := &Store{DB: db}
	r, ok, err := st.GetReport(context.Background(), "job-1")
	if err != nil || !ok {
		t.Fatalf("GetReport: ok=%v err=%v", ok, err)
	}
	if r.Kind != "comprehensive" || string(r.Body) != `{"overall_score":72}` || !r.CreatedAt.Equal(created) {
		t.Fatalf("unexpected report: %+v", r)
	}
	if _, ok, err := st.GetReport(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("missing report: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPruneReportsBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(`DELETE FROM analysis_reports WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	st := &Store{DB: db}
	n, err := st.PruneReportsBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PruneReportsBefore returned error: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 reports pruned, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS analysis_reports`).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := (&Store{DB: db}).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
