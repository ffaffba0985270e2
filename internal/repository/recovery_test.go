package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
	"github.com/atinyakov/keywarden/internal/models"
)

func setupRecoveryMock(t *testing.T) (*PostgresRecoveryRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresRecoveryRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

func TestFindRequest_Success(t *testing.T) {
	repo, mock, cleanup := setupRecoveryMock(t)
	defer cleanup()

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recovery_requests")).
		WithArgs("req-1", "user-1", "token-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "created"}).
			AddRow("req-1", "user-1", "approved", created))
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recovery_private_keys WHERE request_id = $1")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).AddRow("pk-1", "escrow"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recovery_responses WHERE request_id = $1")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "status", "data"}).
			AddRow("resp-1", "req-1", "approved", "response"))
	mock.ExpectCommit()

	req, err := repo.FindRequest(context.Background(), "req-1", "user-1", "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != models.RecoveryRequestApproved {
		t.Errorf("expected approved status, got %q", req.Status)
	}
	if req.PrivateKey == nil || req.PrivateKey.Data != "escrow" {
		t.Errorf("unexpected private key: %+v", req.PrivateKey)
	}
	if len(req.Responses) != 1 || req.Responses[0].Data != "response" {
		t.Errorf("unexpected responses: %+v", req.Responses)
	}
	if !req.Created.Equal(created) {
		t.Errorf("expected created %v, got %v", created, req.Created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFindRequest_WithoutPrivateKey(t *testing.T) {
	repo, mock, cleanup := setupRecoveryMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recovery_requests")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "created"}).
			AddRow("req-1", "user-1", "pending", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recovery_private_keys")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recovery_responses")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "status", "data"}))
	mock.ExpectCommit()

	req, err := repo.FindRequest(context.Background(), "req-1", "user-1", "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.PrivateKey != nil {
		t.Errorf("expected no private key, got %+v", req.PrivateKey)
	}
	if len(req.Responses) != 0 {
		t.Errorf("expected no responses, got %d", len(req.Responses))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFindRequest_NotFound(t *testing.T) {
	repo, mock, cleanup := setupRecoveryMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recovery_requests")).
		WithArgs("req-1", "user-1", "bad-token").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.FindRequest(context.Background(), "req-1", "user-1", "bad-token")
	if !errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFindRequest_PrivateKeyError(t *testing.T) {
	repo, mock, cleanup := setupRecoveryMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recovery_requests")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "created"}).
			AddRow("req-1", "user-1", "approved", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM account_recovery_private_keys")).
		WillReturnError(errors.New("disk failure"))
	mock.ExpectRollback()

	_, err := repo.FindRequest(context.Background(), "req-1", "user-1", "token-1")
	if err == nil || errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("expected database error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFindRequest_BeginError(t *testing.T) {
	repo, mock, cleanup := setupRecoveryMock(t)
	defer cleanup()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	if _, err := repo.FindRequest(context.Background(), "req-1", "user-1", "token-1"); err == nil {
		t.Error("expected begin error, got nil")
	}
}

func TestCompleteRequest(t *testing.T) {
	repo, mock, cleanup := setupRecoveryMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE account_recovery_requests SET status = $1")).
		WithArgs(models.RecoveryRequestCompleted, "req-1", models.RecoveryRequestApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.CompleteRequest(context.Background(), "req-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCompleteRequest_NotApproved(t *testing.T) {
	repo, mock, cleanup := setupRecoveryMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE account_recovery_requests SET status = $1")).
		WithArgs(models.RecoveryRequestCompleted, "req-1", models.RecoveryRequestApproved).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CompleteRequest(context.Background(), "req-1")
	if !errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
