package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
	"github.com/atinyakov/keywarden/internal/models"
)

// PostgresRecoveryRepository reads and completes account recovery requests.
type PostgresRecoveryRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresRecoveryRepository creates a repository on db.
func NewPostgresRecoveryRepository(db *sql.DB) *PostgresRecoveryRepository {
	return &PostgresRecoveryRepository{DB: db}
}

// FindRequest returns the request id of userID authorized by token, with its
// escrowed private key and responses. A request without private key is
// returned with a nil PrivateKey; validating it is up to the caller.
func (r *PostgresRecoveryRepository) FindRequest(ctx context.Context, id, userID, token string) (*models.AccountRecoveryRequest, error) {
	tx, err := r.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var req models.AccountRecoveryRequest
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, status, created FROM account_recovery_requests
		WHERE id = $1 AND user_id = $2 AND authentication_token = $3
	`, id, userID, token).Scan(&req.ID, &req.UserID, &req.Status, &req.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account recovery request %s", kerrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("FindRequest: %w", err)
	}

	var pk models.AccountRecoveryPrivateKey
	err = tx.QueryRowContext(ctx, `
		SELECT id, data FROM account_recovery_private_keys WHERE request_id = $1
	`, id).Scan(&pk.ID, &pk.Data)
	switch {
	case err == nil:
		req.PrivateKey = &pk
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("FindRequest private key: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, request_id, status, data FROM account_recovery_responses WHERE request_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("FindRequest responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var resp models.AccountRecoveryResponse
		if err := rows.Scan(&resp.ID, &resp.RequestID, &resp.Status, &resp.Data); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		req.Responses = append(req.Responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindRequest responses: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &req, nil
}

// CompleteRequest marks an approved request completed. It fails with
// ErrNotFound when no approved request id exists.
func (r *PostgresRecoveryRepository) CompleteRequest(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE account_recovery_requests SET status = $1, modified = now()
		WHERE id = $2 AND status = $3
	`, models.RecoveryRequestCompleted, id, models.RecoveryRequestApproved)
	if err != nil {
		return fmt.Errorf("CompleteRequest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("CompleteRequest: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: approved account recovery request %s", kerrors.ErrNotFound, id)
	}
	return nil
}
