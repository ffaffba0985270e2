// Package cryptotest generates OpenPGP fixtures for tests.
package cryptotest

import (
	"bytes"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/keywarden/internal/crypto"
)

// KeyPair is a freshly generated key with its armored forms.
type KeyPair struct {
	// Entity is the unlocked key.
	Entity *openpgp.Entity
	// PrivateArmored is the private key protected by Passphrase.
	PrivateArmored string
	// UnlockedArmored is the private key without passphrase protection.
	UnlockedArmored string
	// PublicArmored is the public key.
	PublicArmored string
	// Passphrase protects PrivateArmored.
	Passphrase []byte
	// Fingerprint is the upper-case hex fingerprint.
	Fingerprint string
}

// NewKeyPair generates an EdDSA key for email protected by passphrase.
func NewKeyPair(t testing.TB, email, passphrase string) *KeyPair {
	t.Helper()

	pgp := crypto.New(nil)
	entity, err := openpgp.NewEntity(email, "", email, &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	require.NoError(t, err)

	public, err := pgp.ArmorPublicKey(entity)
	require.NoError(t, err)

	// EncryptPrivateKey locks the entity in place; work on a parsed copy.
	unlocked := armorUnlocked(t, entity)
	clone, err := pgp.ReadKey(unlocked)
	require.NoError(t, err)
	private, err := pgp.EncryptPrivateKey(clone, []byte(passphrase))
	require.NoError(t, err)

	return &KeyPair{
		Entity:          entity,
		PrivateArmored:  private,
		UnlockedArmored: unlocked,
		PublicArmored:   public,
		Passphrase:      []byte(passphrase),
		Fingerprint:     crypto.Fingerprint(entity),
	}
}

func armorUnlocked(t testing.TB, entity *openpgp.Entity) string {
	t.Helper()

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivateWithoutSigning(w, nil))
	require.NoError(t, w.Close())
	return buf.String()
}
