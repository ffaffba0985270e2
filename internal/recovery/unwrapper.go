// Package recovery recovers a user's private key from an approved account
// recovery request.
//
// The escrowed private key is wrapped in two layers. The organization answers
// the request with a response encrypted for the user's temporary recovery key;
// the response carries the symmetric secret that unlocks the escrowed copy of
// the original private key. The recovered key is then protected with the
// user's passphrase.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/awnumar/memguard"
	"go.uber.org/zap"

	"github.com/atinyakov/keywarden/internal/crypto"
	kerrors "github.com/atinyakov/keywarden/internal/errors"
	"github.com/atinyakov/keywarden/internal/metrics"
	"github.com/atinyakov/keywarden/internal/models"
)

// Primitives is the OpenPGP capability set a recovery run needs.
type Primitives interface {
	ReadKey(armored string) (*openpgp.Entity, error)
	ReadPrivateKey(armored string) (*openpgp.Entity, error)
	DecryptPrivateKey(armored string, passphrase []byte) (*openpgp.Entity, error)
	DecryptMessage(armored string, key *openpgp.Entity, verifiers ...*openpgp.Entity) ([]byte, error)
	DecryptSymmetric(armored string, secret []byte) ([]byte, error)
	EncryptPrivateKey(key *openpgp.Entity, passphrase []byte) (string, error)
	ArmorPublicKey(key *openpgp.Entity) (string, error)
}

// Unwrapper runs account recovery chains.
type Unwrapper struct {
	pgp       Primitives
	verifiers []*openpgp.Entity
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// NewUnwrapper creates an Unwrapper. When verifiers are given, recovery
// responses must be signed by one of them. m may be nil.
func NewUnwrapper(pgp Primitives, verifiers []*openpgp.Entity, log *zap.Logger, m *metrics.Metrics) *Unwrapper {
	return &Unwrapper{pgp: pgp, verifiers: verifiers, log: log, metrics: m}
}

// run holds the material of one recovery. It never outlives Recover.
type run struct {
	account    models.RecoveryAccount
	request    *models.AccountRecoveryRequest
	passphrase []byte

	state            State
	temporaryKey     *openpgp.Entity
	responseData     *models.PrivateKeyPasswordDecryptedData
	privateKeySecret []byte
	recoveredArmored []byte
	recoveredKey     *openpgp.Entity
	result           *models.RecoveredPrivateKey
}

func (r *run) wipe() {
	memguard.WipeBytes(r.privateKeySecret)
	memguard.WipeBytes(r.recoveredArmored)
	r.temporaryKey = nil
	r.recoveredKey = nil
	r.responseData = nil
}

type step struct {
	to   State
	exec func(*Unwrapper, *run) error
}

var steps = []step{
	{RequestValidated, (*Unwrapper).validateRequest},
	{PrivateKeyLayerDecrypted, (*Unwrapper).decryptTemporaryKey},
	{ResponseDataDecrypted, (*Unwrapper).decryptResponseData},
	{SymmetricKeyLayerDecrypted, (*Unwrapper).decryptPrivateKeyLayer},
	{RecoveredKeyParsed, (*Unwrapper).parseRecoveredKey},
	{RecoveredKeyReencrypted, (*Unwrapper).reencryptRecoveredKey},
}

// Recover unwraps the private key escrowed in request for the account and
// protects it with passphrase. The same passphrase must unlock the account's
// temporary recovery key.
//
// Failures are *StepError values wrapping ErrInvalidRequest when the request is
// inconsistent, ErrWrongPassphrase when passphrase does not unlock the
// temporary key and ErrCorruptRecoveryMaterial for every later layer.
func (u *Unwrapper) Recover(ctx context.Context, account models.RecoveryAccount, request *models.AccountRecoveryRequest, passphrase []byte) (*models.RecoveredPrivateKey, error) {
	r := &run{account: account, request: request, passphrase: passphrase}
	defer r.wipe()

	log := u.log.With(zap.String("user_id", account.UserID), zap.String("request_id", account.AccountRecoveryRequestID))

	for _, s := range steps {
		var err error
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", kerrors.ErrCancelled, ctxErr)
		} else {
			err = s.exec(u, r)
		}
		if err != nil {
			stepErr := &StepError{State: s.to, Err: err}
			log.Warn("account recovery failed", zap.Stringer("state", r.state), zap.Error(stepErr))
			u.metrics.RecordRecovery(r.state.String(), kerrors.KindOf(err).String())
			return nil, stepErr
		}
		r.state = s.to
		log.Debug("account recovery step done", zap.Stringer("state", r.state))
	}

	r.state = Done
	u.metrics.RecordRecovery(r.state.String(), "ok")
	log.Info("account recovered", zap.String("fingerprint", r.result.Fingerprint))
	return r.result, nil
}

func (u *Unwrapper) validateRequest(r *run) error {
	req := r.request
	switch {
	case req == nil:
		return fmt.Errorf("%w: no request", kerrors.ErrInvalidRequest)
	case req.ID != r.account.AccountRecoveryRequestID:
		return fmt.Errorf("%w: request id %q does not match the recovering account's request %q",
			kerrors.ErrInvalidRequest, req.ID, r.account.AccountRecoveryRequestID)
	case req.UserID != "" && req.UserID != r.account.UserID:
		return fmt.Errorf("%w: request belongs to another user", kerrors.ErrInvalidRequest)
	case req.PrivateKey == nil || req.PrivateKey.Data == "":
		return fmt.Errorf("%w: request has no private key", kerrors.ErrInvalidRequest)
	case len(req.Responses) != 1:
		return fmt.Errorf("%w: request has %d responses, want exactly one", kerrors.ErrInvalidRequest, len(req.Responses))
	}

	resp := req.Responses[0]
	switch {
	case resp.RequestID != "" && resp.RequestID != req.ID:
		return fmt.Errorf("%w: response belongs to request %q", kerrors.ErrInvalidRequest, resp.RequestID)
	case resp.Status == models.RecoveryRequestRejected:
		return fmt.Errorf("%w: request was rejected", kerrors.ErrInvalidRequest)
	case resp.Data == "":
		return fmt.Errorf("%w: response has no data", kerrors.ErrInvalidRequest)
	}
	return nil
}

func (u *Unwrapper) decryptTemporaryKey(r *run) error {
	key, err := u.pgp.DecryptPrivateKey(r.account.UserPrivateArmoredKey, r.passphrase)
	if err != nil {
		if errors.Is(err, kerrors.ErrWrongPassphrase) {
			return err
		}
		return fmt.Errorf("%w: temporary key: %w", kerrors.ErrCorruptRecoveryMaterial, err)
	}
	r.temporaryKey = key
	return nil
}

func (u *Unwrapper) decryptResponseData(r *run) error {
	plaintext, err := u.pgp.DecryptMessage(r.request.Responses[0].Data, r.temporaryKey, u.verifiers...)
	if err != nil {
		return fmt.Errorf("%w: response data: %w", kerrors.ErrCorruptRecoveryMaterial, err)
	}
	defer memguard.WipeBytes(plaintext)

	var data models.PrivateKeyPasswordDecryptedData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return fmt.Errorf("%w: response data: %w", kerrors.ErrCorruptRecoveryMaterial, err)
	}
	switch {
	case data.Type != models.PrivateKeyPasswordDecryptedDataType:
		return fmt.Errorf("%w: unexpected response data type %q", kerrors.ErrCorruptRecoveryMaterial, data.Type)
	case data.Version != models.PrivateKeyPasswordDecryptedDataVersion:
		return fmt.Errorf("%w: unsupported response data version %q", kerrors.ErrCorruptRecoveryMaterial, data.Version)
	case data.PrivateKeyUserID != r.account.UserID:
		return fmt.Errorf("%w: response data was issued for another user", kerrors.ErrCorruptRecoveryMaterial)
	case data.PrivateKeySecret == "":
		return fmt.Errorf("%w: response data has no private key secret", kerrors.ErrCorruptRecoveryMaterial)
	}

	r.privateKeySecret = []byte(data.PrivateKeySecret)
	data.PrivateKeySecret = ""
	r.responseData = &data
	return nil
}

func (u *Unwrapper) decryptPrivateKeyLayer(r *run) error {
	armored, err := u.pgp.DecryptSymmetric(r.request.PrivateKey.Data, r.privateKeySecret)
	if err != nil {
		return fmt.Errorf("%w: private key layer: %w", kerrors.ErrCorruptRecoveryMaterial, err)
	}
	r.recoveredArmored = armored
	return nil
}

func (u *Unwrapper) parseRecoveredKey(r *run) error {
	key, err := u.pgp.ReadPrivateKey(string(r.recoveredArmored))
	if err != nil {
		return fmt.Errorf("%w: recovered key: %w", kerrors.ErrCorruptRecoveryMaterial, err)
	}
	if key.PrivateKey.Encrypted {
		return fmt.Errorf("%w: recovered key is still passphrase protected", kerrors.ErrCorruptRecoveryMaterial)
	}

	fingerprint := crypto.Fingerprint(key)
	if want := r.responseData.PrivateKeyFingerprint; want != "" && !strings.EqualFold(want, fingerprint) {
		return fmt.Errorf("%w: recovered key fingerprint %s, response announced %s",
			kerrors.ErrCorruptRecoveryMaterial, fingerprint, want)
	}
	if r.account.KnownPublicArmoredKey != "" {
		known, err := u.pgp.ReadKey(r.account.KnownPublicArmoredKey)
		if err != nil {
			return fmt.Errorf("%w: known public key: %w", kerrors.ErrCorruptRecoveryMaterial, err)
		}
		if crypto.Fingerprint(known) != fingerprint {
			return fmt.Errorf("%w: recovered key does not match the user's known key", kerrors.ErrCorruptRecoveryMaterial)
		}
	}

	r.recoveredKey = key
	return nil
}

func (u *Unwrapper) reencryptRecoveredKey(r *run) error {
	// The public key is armored first; EncryptPrivateKey locks the key in place.
	public, err := u.pgp.ArmorPublicKey(r.recoveredKey)
	if err != nil {
		return fmt.Errorf("%w: %w", kerrors.ErrCorruptRecoveryMaterial, err)
	}
	private, err := u.pgp.EncryptPrivateKey(r.recoveredKey, r.passphrase)
	if err != nil {
		return fmt.Errorf("%w: %w", kerrors.ErrCorruptRecoveryMaterial, err)
	}

	r.result = &models.RecoveredPrivateKey{
		UserID:            r.account.UserID,
		PrivateArmoredKey: private,
		PublicArmoredKey:  public,
		Fingerprint:       crypto.Fingerprint(r.recoveredKey),
	}
	return nil
}
