// Package service composes local accounts, backend repositories and the
// passphrase gate into the operations exposed by the command line.
package service

import (
	"context"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/keywarden/internal/models"
)

// AccountStore returns locally configured accounts.
type AccountStore interface {
	Account(userID string) (models.Account, error)
}

// SecretRepository defines the backend reads needed to decrypt a secret.
type SecretRepository interface {
	// GetSecretEnvelope returns the secret of resourceID encrypted for userID.
	GetSecretEnvelope(ctx context.Context, resourceID, userID string) (*models.SecretEnvelope, error)
	// GetResourceType returns the resource type with id.
	GetResourceType(ctx context.Context, id string) (*models.ResourceType, error)
	// ListResourceTypes returns the resource types with the given slugs.
	ListResourceTypes(ctx context.Context, slugs []models.ResourceTypeSlug) ([]models.ResourceType, error)
}

// PassphraseSource returns a passphrase that unlocks an armored private key.
type PassphraseSource interface {
	Acquire(ctx context.Context, token, armoredKey string) ([]byte, error)
}

// KeyUnlocker unlocks an armored private key.
type KeyUnlocker interface {
	DecryptPrivateKey(armored string, passphrase []byte) (*openpgp.Entity, error)
}

// SecretDecoder decrypts an envelope into the plaintext shape of its resource type.
type SecretDecoder interface {
	Decrypt(ctx context.Context, envelope models.SecretEnvelope, rt models.ResourceType, key *openpgp.Entity) (*models.PlaintextSecret, error)
}

// Secret is a decrypted secret together with its resource type.
type Secret struct {
	ResourceID string
	Type       models.ResourceType
	Plaintext  *models.PlaintextSecret
}

// SecretService decrypts secrets of locally configured accounts.
type SecretService struct {
	accounts   AccountStore
	repo       SecretRepository
	passphrase PassphraseSource
	keys       KeyUnlocker
	codec      SecretDecoder
	log        *zap.Logger
}

// NewSecretService constructs a SecretService.
func NewSecretService(accounts AccountStore, repo SecretRepository, passphrase PassphraseSource, keys KeyUnlocker, codec SecretDecoder, log *zap.Logger) *SecretService {
	return &SecretService{
		accounts:   accounts,
		repo:       repo,
		passphrase: passphrase,
		keys:       keys,
		codec:      codec,
		log:        log,
	}
}

// Decrypt fetches the secret of resourceID for the account of userID, asks
// for the passphrase of the account key and decrypts the secret with it.
func (s *SecretService) Decrypt(ctx context.Context, userID, resourceID string) (*Secret, error) {
	account, err := s.accounts.Account(userID)
	if err != nil {
		return nil, err
	}

	envelope, err := s.repo.GetSecretEnvelope(ctx, resourceID, account.UserID)
	if err != nil {
		return nil, err
	}
	rt, err := s.repo.GetResourceType(ctx, envelope.ResourceTypeID)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	s.log.Debug("requesting passphrase", zap.String("token", token), zap.String("resource_id", resourceID))
	passphrase, err := s.passphrase.Acquire(ctx, token, account.UserPrivateArmoredKey)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(passphrase)

	key, err := s.keys.DecryptPrivateKey(account.UserPrivateArmoredKey, passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlock account key: %w", err)
	}

	plaintext, err := s.codec.Decrypt(ctx, *envelope, *rt, key)
	if err != nil {
		return nil, err
	}
	return &Secret{ResourceID: resourceID, Type: *rt, Plaintext: plaintext}, nil
}

// ResourceTypes returns the backend resource types this client can decrypt.
func (s *SecretService) ResourceTypes(ctx context.Context) ([]models.ResourceType, error) {
	types, err := s.repo.ListResourceTypes(ctx, models.SupportedResourceTypeSlugs)
	if err != nil {
		return nil, err
	}
	supported := types[:0]
	for _, rt := range types {
		if rt.Slug.IsSupported() {
			supported = append(supported, rt)
		}
	}
	return supported, nil
}
