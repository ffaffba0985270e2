package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
)

const messageType = "PGP MESSAGE"

var errSecretRejected = errors.New("symmetric secret rejected")

// EncryptMessage encrypts plaintext for recipient and returns the armored message.
// When signer is not nil the message is also signed; its private key must be unlocked.
func (o *OpenPGP) EncryptMessage(plaintext []byte, recipient, signer *openpgp.Entity) (string, error) {
	var buf bytes.Buffer
	aw, err := armor.Encode(&buf, messageType, nil)
	if err != nil {
		return "", fmt.Errorf("armor message: %w", err)
	}
	w, err := openpgp.Encrypt(aw, []*openpgp.Entity{recipient}, signer, nil, o.config)
	if err != nil {
		return "", fmt.Errorf("encrypt message: %w", err)
	}
	if err := writeAndClose(w, plaintext); err != nil {
		return "", fmt.Errorf("encrypt message: %w", err)
	}
	if err := aw.Close(); err != nil {
		return "", fmt.Errorf("armor message: %w", err)
	}
	return buf.String(), nil
}

// DecryptMessage decrypts an armored message with the unlocked key.
//
// When verifiers are given the message must carry a valid signature made by
// one of them, otherwise ErrSignatureInvalid is returned.
func (o *OpenPGP) DecryptMessage(armored string, key *openpgp.Entity, verifiers ...*openpgp.Entity) ([]byte, error) {
	body, err := decodeMessage(armored)
	if err != nil {
		return nil, err
	}

	keyring := make(openpgp.EntityList, 0, 1+len(verifiers))
	keyring = append(keyring, key)
	keyring = append(keyring, verifiers...)

	md, err := openpgp.ReadMessage(body, keyring, nil, o.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrDecryptionFailed, err)
	}
	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrDecryptionFailed, err)
	}

	if len(verifiers) == 0 {
		return plaintext, nil
	}
	if !md.IsSigned || md.SignedBy == nil {
		return nil, fmt.Errorf("%w: message is not signed by a trusted key", kerrors.ErrSignatureInvalid)
	}
	if md.SignatureError != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrSignatureInvalid, md.SignatureError)
	}
	if !signedByOneOf(md.SignedBy.Entity, verifiers) {
		return nil, fmt.Errorf("%w: message is not signed by a trusted key", kerrors.ErrSignatureInvalid)
	}
	return plaintext, nil
}

// EncryptSymmetric encrypts plaintext with a shared secret and returns the armored message.
func (o *OpenPGP) EncryptSymmetric(plaintext, secret []byte) (string, error) {
	var buf bytes.Buffer
	aw, err := armor.Encode(&buf, messageType, nil)
	if err != nil {
		return "", fmt.Errorf("armor message: %w", err)
	}
	w, err := openpgp.SymmetricallyEncrypt(aw, secret, nil, o.config)
	if err != nil {
		return "", fmt.Errorf("encrypt message: %w", err)
	}
	if err := writeAndClose(w, plaintext); err != nil {
		return "", fmt.Errorf("encrypt message: %w", err)
	}
	if err := aw.Close(); err != nil {
		return "", fmt.Errorf("armor message: %w", err)
	}
	return buf.String(), nil
}

// DecryptSymmetric decrypts an armored message encrypted with a shared secret.
func (o *OpenPGP) DecryptSymmetric(armored string, secret []byte) ([]byte, error) {
	body, err := decodeMessage(armored)
	if err != nil {
		return nil, err
	}

	// The library keeps prompting until a secret works; offer ours once.
	offered := false
	prompt := func(_ []openpgp.Key, symmetric bool) ([]byte, error) {
		if offered || !symmetric {
			return nil, errSecretRejected
		}
		offered = true
		return secret, nil
	}

	md, err := openpgp.ReadMessage(body, openpgp.EntityList{}, prompt, o.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrDecryptionFailed, err)
	}
	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// ClearSign signs text with the signer's unlocked primary key.
func (o *OpenPGP) ClearSign(text []byte, signer *openpgp.Entity) (string, error) {
	if signer.PrivateKey == nil {
		return "", kerrors.ErrNotPrivateKey
	}
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, signer.PrivateKey, o.config)
	if err != nil {
		return "", fmt.Errorf("clearsign: %w", err)
	}
	if err := writeAndClose(w, text); err != nil {
		return "", fmt.Errorf("clearsign: %w", err)
	}
	return buf.String(), nil
}

// VerifyClearSigned checks a clearsigned document against verifiers and
// returns the signed text.
func (o *OpenPGP) VerifyClearSigned(data []byte, verifiers ...*openpgp.Entity) ([]byte, error) {
	block, _ := clearsign.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no clearsigned block", kerrors.ErrInvalidMessage)
	}
	keyring := openpgp.EntityList(verifiers)
	if _, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, o.config); err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrSignatureInvalid, err)
	}
	return block.Plaintext, nil
}

func decodeMessage(armored string) (io.Reader, error) {
	block, err := armor.Decode(strings.NewReader(armored))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidMessage, err)
	}
	if block.Type != messageType {
		return nil, fmt.Errorf("%w: unexpected armor type %q", kerrors.ErrInvalidMessage, block.Type)
	}
	return block.Body, nil
}

func signedByOneOf(signer *openpgp.Entity, verifiers []*openpgp.Entity) bool {
	if signer == nil {
		return false
	}
	for _, v := range verifiers {
		if bytes.Equal(v.PrimaryKey.Fingerprint, signer.PrimaryKey.Fingerprint) {
			return true
		}
	}
	return false
}

func writeAndClose(w io.WriteCloser, data []byte) error {
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
