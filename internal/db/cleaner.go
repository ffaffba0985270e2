package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/atinyakov/keywarden/internal/models"
)

// finishedStatuses are the request states that no longer carry usable material.
var finishedStatuses = []string{
	string(models.RecoveryRequestCompleted),
	string(models.RecoveryRequestRejected),
}

// StartRecoveryRequestCleaner periodically deletes finished account recovery
// requests older than retention, together with their escrowed keys and
// responses.
func StartRecoveryRequestCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rows, err := CleanRecoveryRequests(ctx, db, time.Now().Add(-retention))
				if err != nil {
					log.Error("failed to clean finished recovery requests", zap.Error(err))
					continue
				}
				if rows > 0 {
					log.Info("cleaned finished recovery requests", zap.Int64("removed", rows))
				}
			}
		}
	}()
}

// CleanRecoveryRequests deletes finished requests last modified before cutoff.
func CleanRecoveryRequests(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
        DELETE FROM account_recovery_requests
         WHERE status = ANY($1)
           AND modified < $2
    `, pq.Array(finishedStatuses), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
