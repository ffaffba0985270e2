package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"go.uber.org/zap"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
	"github.com/atinyakov/keywarden/internal/models"
	"github.com/atinyakov/keywarden/internal/service"
)

type mockAccounts struct {
	AccountFunc func(userID string) (models.Account, error)
}

func (m *mockAccounts) Account(userID string) (models.Account, error) {
	return m.AccountFunc(userID)
}

type mockSecretRepo struct {
	GetSecretEnvelopeFunc func(ctx context.Context, resourceID, userID string) (*models.SecretEnvelope, error)
	GetResourceTypeFunc   func(ctx context.Context, id string) (*models.ResourceType, error)
	ListResourceTypesFunc func(ctx context.Context, slugs []models.ResourceTypeSlug) ([]models.ResourceType, error)
}

func (m *mockSecretRepo) GetSecretEnvelope(ctx context.Context, resourceID, userID string) (*models.SecretEnvelope, error) {
	return m.GetSecretEnvelopeFunc(ctx, resourceID, userID)
}
func (m *mockSecretRepo) GetResourceType(ctx context.Context, id string) (*models.ResourceType, error) {
	return m.GetResourceTypeFunc(ctx, id)
}
func (m *mockSecretRepo) ListResourceTypes(ctx context.Context, slugs []models.ResourceTypeSlug) ([]models.ResourceType, error) {
	return m.ListResourceTypesFunc(ctx, slugs)
}

type mockPassphrase struct {
	AcquireFunc func(ctx context.Context, token, armoredKey string) ([]byte, error)
	tokens      []string
}

func (m *mockPassphrase) Acquire(ctx context.Context, token, armoredKey string) ([]byte, error) {
	m.tokens = append(m.tokens, token)
	return m.AcquireFunc(ctx, token, armoredKey)
}

type mockUnlocker struct {
	DecryptPrivateKeyFunc func(armored string, passphrase []byte) (*openpgp.Entity, error)
}

func (m *mockUnlocker) DecryptPrivateKey(armored string, passphrase []byte) (*openpgp.Entity, error) {
	return m.DecryptPrivateKeyFunc(armored, passphrase)
}

type mockDecoder struct {
	DecryptFunc func(ctx context.Context, envelope models.SecretEnvelope, rt models.ResourceType, key *openpgp.Entity) (*models.PlaintextSecret, error)
}

func (m *mockDecoder) Decrypt(ctx context.Context, envelope models.SecretEnvelope, rt models.ResourceType, key *openpgp.Entity) (*models.PlaintextSecret, error) {
	return m.DecryptFunc(ctx, envelope, rt, key)
}

type secretFixture struct {
	accounts *mockAccounts
	repo     *mockSecretRepo
	pass     *mockPassphrase
	keys     *mockUnlocker
	codec    *mockDecoder
}

func newSecretFixture() *secretFixture {
	account := models.Account{UserID: "user-1", UserPrivateArmoredKey: "private-key"}
	password := "hunter2"
	return &secretFixture{
		accounts: &mockAccounts{AccountFunc: func(string) (models.Account, error) {
			return account, nil
		}},
		repo: &mockSecretRepo{
			GetSecretEnvelopeFunc: func(_ context.Context, resourceID, userID string) (*models.SecretEnvelope, error) {
				return &models.SecretEnvelope{ResourceID: resourceID, ResourceTypeID: "rt-1", UserID: userID, Data: "message"}, nil
			},
			GetResourceTypeFunc: func(_ context.Context, id string) (*models.ResourceType, error) {
				return &models.ResourceType{ID: id, Slug: models.PasswordString}, nil
			},
		},
		pass: &mockPassphrase{AcquireFunc: func(context.Context, string, string) ([]byte, error) {
			return []byte("correct horse"), nil
		}},
		keys: &mockUnlocker{DecryptPrivateKeyFunc: func(string, []byte) (*openpgp.Entity, error) {
			return &openpgp.Entity{}, nil
		}},
		codec: &mockDecoder{DecryptFunc: func(context.Context, models.SecretEnvelope, models.ResourceType, *openpgp.Entity) (*models.PlaintextSecret, error) {
			return &models.PlaintextSecret{Password: &password}, nil
		}},
	}
}

func (f *secretFixture) service() *service.SecretService {
	return service.NewSecretService(f.accounts, f.repo, f.pass, f.keys, f.codec, zap.NewNop())
}

func TestSecretService_Decrypt(t *testing.T) {
	f := newSecretFixture()
	var unlockedWith string
	f.keys.DecryptPrivateKeyFunc = func(armored string, passphrase []byte) (*openpgp.Entity, error) {
		if armored != "private-key" {
			t.Errorf("unlocked key = %q; want account key", armored)
		}
		unlockedWith = string(passphrase)
		return &openpgp.Entity{}, nil
	}

	secret, err := f.service().Decrypt(context.Background(), "", "res-1")
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if secret.ResourceID != "res-1" || secret.Type.Slug != models.PasswordString {
		t.Errorf("unexpected secret: %+v", secret)
	}
	if secret.Plaintext.Password == nil || *secret.Plaintext.Password != "hunter2" {
		t.Errorf("unexpected plaintext: %+v", secret.Plaintext)
	}
	if unlockedWith != "correct horse" {
		t.Errorf("key unlocked with %q; want acquired passphrase", unlockedWith)
	}
	if len(f.pass.tokens) != 1 || f.pass.tokens[0] == "" {
		t.Errorf("expected one non-empty prompt token, got %v", f.pass.tokens)
	}
}

func TestSecretService_Decrypt_NewTokenPerCall(t *testing.T) {
	f := newSecretFixture()
	svc := f.service()
	for range 2 {
		if _, err := svc.Decrypt(context.Background(), "user-1", "res-1"); err != nil {
			t.Fatalf("Decrypt returned error: %v", err)
		}
	}
	if f.pass.tokens[0] == f.pass.tokens[1] {
		t.Errorf("expected distinct tokens, got %v", f.pass.tokens)
	}
}

func TestSecretService_Decrypt_Errors(t *testing.T) {
	wantErr := errors.New("boom")
	cases := []struct {
		name      string
		breakIt   func(f *secretFixture)
		want      error
		wantNoAsk bool
	}{
		{
			name: "unknown account",
			breakIt: func(f *secretFixture) {
				f.accounts.AccountFunc = func(string) (models.Account, error) {
					return models.Account{}, kerrors.ErrNotFound
				}
			},
			want:      kerrors.ErrNotFound,
			wantNoAsk: true,
		},
		{
			name: "missing secret",
			breakIt: func(f *secretFixture) {
				f.repo.GetSecretEnvelopeFunc = func(context.Context, string, string) (*models.SecretEnvelope, error) {
					return nil, kerrors.ErrNotFound
				}
			},
			want:      kerrors.ErrNotFound,
			wantNoAsk: true,
		},
		{
			name: "resource type lookup",
			breakIt: func(f *secretFixture) {
				f.repo.GetResourceTypeFunc = func(context.Context, string) (*models.ResourceType, error) {
					return nil, wantErr
				}
			},
			want:      wantErr,
			wantNoAsk: true,
		},
		{
			name: "passphrase exhausted",
			breakIt: func(f *secretFixture) {
				f.pass.AcquireFunc = func(context.Context, string, string) ([]byte, error) {
					return nil, kerrors.ErrExhausted
				}
			},
			want: kerrors.ErrExhausted,
		},
		{
			name: "unlock failure",
			breakIt: func(f *secretFixture) {
				f.keys.DecryptPrivateKeyFunc = func(string, []byte) (*openpgp.Entity, error) {
					return nil, kerrors.ErrInvalidKey
				}
			},
			want: kerrors.ErrInvalidKey,
		},
		{
			name: "malformed payload",
			breakIt: func(f *secretFixture) {
				f.codec.DecryptFunc = func(context.Context, models.SecretEnvelope, models.ResourceType, *openpgp.Entity) (*models.PlaintextSecret, error) {
					return nil, kerrors.ErrMalformedPayload
				}
			},
			want: kerrors.ErrMalformedPayload,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSecretFixture()
			tc.breakIt(f)
			_, err := f.service().Decrypt(context.Background(), "user-1", "res-1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("Decrypt error = %v; want %v", err, tc.want)
			}
			if tc.wantNoAsk && len(f.pass.tokens) != 0 {
				t.Errorf("passphrase requested %d times; want none", len(f.pass.tokens))
			}
		})
	}
}

func TestSecretService_ResourceTypes(t *testing.T) {
	f := newSecretFixture()
	f.repo.ListResourceTypesFunc = func(_ context.Context, slugs []models.ResourceTypeSlug) ([]models.ResourceType, error) {
		if len(slugs) != len(models.SupportedResourceTypeSlugs) {
			t.Errorf("queried %d slugs; want %d", len(slugs), len(models.SupportedResourceTypeSlugs))
		}
		return []models.ResourceType{
			{ID: "rt-1", Slug: models.PasswordString},
			{ID: "rt-9", Slug: "password-description-uris"},
			{ID: "rt-4", Slug: models.TOTP},
		}, nil
	}

	types, err := f.service().ResourceTypes(context.Background())
	if err != nil {
		t.Fatalf("ResourceTypes returned error: %v", err)
	}
	if len(types) != 2 || types[0].ID != "rt-1" || types[1].ID != "rt-4" {
		t.Errorf("unexpected resource types: %+v", types)
	}
}
