package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
)

// OpenPGP implements the key and message primitives on top of go-crypto.
type OpenPGP struct {
	config *packet.Config
}

// New returns an OpenPGP adapter. A nil config selects the library defaults.
func New(config *packet.Config) *OpenPGP {
	return &OpenPGP{config: config}
}

// ReadKey parses a single armored public or private key.
func (o *OpenPGP) ReadKey(armored string) (*openpgp.Entity, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidKey, err)
	}
	if len(entities) != 1 {
		return nil, fmt.Errorf("%w: expected one key, got %d", kerrors.ErrInvalidKey, len(entities))
	}
	return entities[0], nil
}

// ReadPrivateKey parses an armored key and checks it carries private material.
func (o *OpenPGP) ReadPrivateKey(armored string) (*openpgp.Entity, error) {
	key, err := o.ReadKey(armored)
	if err != nil {
		return nil, err
	}
	if key.PrivateKey == nil {
		return nil, kerrors.ErrNotPrivateKey
	}
	return key, nil
}

// DecryptPrivateKey parses the armored private key and unlocks it with passphrase.
// The key must be passphrase protected.
func (o *OpenPGP) DecryptPrivateKey(armored string, passphrase []byte) (*openpgp.Entity, error) {
	key, err := o.ReadPrivateKey(armored)
	if err != nil {
		return nil, err
	}
	if !key.PrivateKey.Encrypted {
		return nil, fmt.Errorf("%w: private key is not passphrase protected", kerrors.ErrInvalidKey)
	}
	for _, pk := range privateKeys(key) {
		if err := pk.Decrypt(passphrase); err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrWrongPassphrase, err)
		}
	}
	return key, nil
}

// EncryptPrivateKey protects the unlocked key with passphrase and returns it armored.
// The key is encrypted in place.
func (o *OpenPGP) EncryptPrivateKey(key *openpgp.Entity, passphrase []byte) (string, error) {
	if key.PrivateKey == nil {
		return "", kerrors.ErrNotPrivateKey
	}
	if len(passphrase) == 0 {
		return "", fmt.Errorf("encrypt private key: empty passphrase")
	}
	for _, pk := range privateKeys(key) {
		if pk.Encrypted {
			return "", fmt.Errorf("%w: private key is still locked", kerrors.ErrInvalidKey)
		}
		if err := pk.EncryptWithConfig(passphrase, o.config); err != nil {
			return "", fmt.Errorf("encrypt private key: %w", err)
		}
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		return "", fmt.Errorf("armor private key: %w", err)
	}
	if err := key.SerializePrivateWithoutSigning(w, o.config); err != nil {
		return "", fmt.Errorf("serialize private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("armor private key: %w", err)
	}
	return buf.String(), nil
}

// ArmorPublicKey returns the armored public part of key.
func (o *OpenPGP) ArmorPublicKey(key *openpgp.Entity) (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", fmt.Errorf("armor public key: %w", err)
	}
	if err := key.Serialize(w); err != nil {
		return "", fmt.Errorf("serialize public key: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("armor public key: %w", err)
	}
	return buf.String(), nil
}

// Fingerprint returns the upper-case hex fingerprint of the primary key.
func Fingerprint(key *openpgp.Entity) string {
	return strings.ToUpper(hex.EncodeToString(key.PrimaryKey.Fingerprint))
}

// privateKeys lists the primary and subkey private packets, skipping dummy
// stubs that carry no secret material.
func privateKeys(key *openpgp.Entity) []*packet.PrivateKey {
	keys := make([]*packet.PrivateKey, 0, 1+len(key.Subkeys))
	if key.PrivateKey != nil && !key.PrivateKey.Dummy() {
		keys = append(keys, key.PrivateKey)
	}
	for _, sub := range key.Subkeys {
		if sub.PrivateKey != nil && !sub.PrivateKey.Dummy() {
			keys = append(keys, sub.PrivateKey)
		}
	}
	return keys
}
