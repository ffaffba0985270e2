package service

import (
	"context"
	"fmt"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"

	"github.com/atinyakov/keywarden/internal/models"
)

// RecoveryAccountStore holds temporary recovery accounts and turns them into
// regular accounts once recovered.
type RecoveryAccountStore interface {
	RecoveryAccount(userID string) (models.RecoveryAccount, error)
	CompleteRecovery(ra models.RecoveryAccount, key *models.RecoveredPrivateKey) error
}

// RecoveryRepository defines the backend operations on account recovery requests.
type RecoveryRepository interface {
	// FindRequest returns the request id of userID authorized by token.
	FindRequest(ctx context.Context, id, userID, token string) (*models.AccountRecoveryRequest, error)
	// CompleteRequest marks an approved request completed.
	CompleteRequest(ctx context.Context, id string) error
}

// KeyRecoverer unwraps the escrowed key of a recovery request.
type KeyRecoverer interface {
	Recover(ctx context.Context, account models.RecoveryAccount, request *models.AccountRecoveryRequest, passphrase []byte) (*models.RecoveredPrivateKey, error)
}

// RecoveryService completes account recoveries started on this client.
type RecoveryService struct {
	accounts   RecoveryAccountStore
	repo       RecoveryRepository
	passphrase PassphraseSource
	recoverer  KeyRecoverer
	log        *zap.Logger
}

// NewRecoveryService constructs a RecoveryService.
func NewRecoveryService(accounts RecoveryAccountStore, repo RecoveryRepository, passphrase PassphraseSource, recoverer KeyRecoverer, log *zap.Logger) *RecoveryService {
	return &RecoveryService{
		accounts:   accounts,
		repo:       repo,
		passphrase: passphrase,
		recoverer:  recoverer,
		log:        log,
	}
}

// Recover fetches the recovery request of userID, asks for the passphrase of
// the temporary recovery key and restores the user's original key under that
// same passphrase. On success the local account is replaced and the request
// is marked completed.
func (s *RecoveryService) Recover(ctx context.Context, userID string) (*models.RecoveredPrivateKey, error) {
	ra, err := s.accounts.RecoveryAccount(userID)
	if err != nil {
		return nil, err
	}

	request, err := s.repo.FindRequest(ctx, ra.AccountRecoveryRequestID, ra.UserID, ra.AuthenticationToken)
	if err != nil {
		return nil, err
	}

	passphrase, err := s.passphrase.Acquire(ctx, ra.AccountRecoveryRequestID, ra.UserPrivateArmoredKey)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(passphrase)

	key, err := s.recoverer.Recover(ctx, ra, request, passphrase)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.CompleteRecovery(ra, key); err != nil {
		return nil, fmt.Errorf("store recovered account: %w", err)
	}
	if err := s.repo.CompleteRequest(ctx, request.ID); err != nil {
		s.log.Warn("recovered key stored but request not completed",
			zap.String("request_id", request.ID), zap.Error(err))
		return key, fmt.Errorf("complete request: %w", err)
	}
	return key, nil
}
