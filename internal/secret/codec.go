// Package secret turns encrypted secret envelopes into typed plaintext secrets.
package secret

import (
	"context"
	"errors"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/awnumar/memguard"
	"go.uber.org/zap"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
	"github.com/atinyakov/keywarden/internal/metrics"
	"github.com/atinyakov/keywarden/internal/models"
)

// MessageDecrypter decrypts armored OpenPGP messages.
type MessageDecrypter interface {
	DecryptMessage(armored string, key *openpgp.Entity, verifiers ...*openpgp.Entity) ([]byte, error)
}

// Codec decrypts secret envelopes according to their resource type.
type Codec struct {
	pgp     MessageDecrypter
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewCodec creates a Codec. m may be nil.
func NewCodec(pgp MessageDecrypter, log *zap.Logger, m *metrics.Metrics) *Codec {
	return &Codec{pgp: pgp, log: log, metrics: m}
}

// Decrypt decrypts envelope with the unlocked key and decodes it with the
// shape of rt.
//
// Unsupported resource types fail with ErrUnsupportedType before any
// decryption. Decryption failures wrap ErrDecryptionFailed and payloads that do
// not match the shape wrap ErrMalformedPayload.
func (c *Codec) Decrypt(ctx context.Context, envelope models.SecretEnvelope, rt models.ResourceType, key *openpgp.Entity) (*models.PlaintextSecret, error) {
	secret, err := c.decrypt(ctx, envelope, rt, key)
	kind := "ok"
	if err != nil {
		kind = kerrors.KindOf(err).String()
		c.log.Warn("failed to decrypt secret",
			zap.String("resource_id", envelope.ResourceID),
			zap.String("resource_type", string(rt.Slug)),
			zap.Error(err))
	}
	label := string(rt.Slug)
	if !rt.Slug.IsSupported() {
		label = metrics.ResourceTypeUnsupported
	}
	c.metrics.RecordDecryption(label, kind)
	return secret, err
}

func (c *Codec) decrypt(ctx context.Context, envelope models.SecretEnvelope, rt models.ResourceType, key *openpgp.Entity) (*models.PlaintextSecret, error) {
	shape, err := ShapeFor(rt)
	if err != nil {
		return nil, err
	}
	if envelope.ResourceTypeID != "" && rt.ID != "" && envelope.ResourceTypeID != rt.ID {
		return nil, fmt.Errorf("%w: secret of resource type %s decoded as %s",
			kerrors.ErrUnsupportedType, envelope.ResourceTypeID, rt.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plaintext, err := c.pgp.DecryptMessage(envelope.Data, key)
	if err != nil {
		if !errors.Is(err, kerrors.ErrDecryptionFailed) {
			err = fmt.Errorf("%w: %w", kerrors.ErrDecryptionFailed, err)
		}
		return nil, err
	}
	defer memguard.WipeBytes(plaintext)

	secret, err := shape.Decode(plaintext)
	if err != nil {
		return nil, fmt.Errorf("decode %s secret: %w", shape, err)
	}
	return secret, nil
}
