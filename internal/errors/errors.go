package errors

import "errors"

// User input errors are recoverable by asking the human again.
var (
	// ErrWrongPassphrase indicates the passphrase does not unlock the private key.
	ErrWrongPassphrase = errors.New("wrong passphrase")

	// ErrCancelled indicates the passphrase prompt was aborted before a valid passphrase arrived.
	ErrCancelled = errors.New("passphrase request cancelled")
)

// Exhaustion errors are terminal.
var (
	// ErrExhausted indicates every allowed passphrase attempt failed.
	ErrExhausted = errors.New("passphrase attempts exhausted")
)

// Validation errors indicate structural problems with the inputs and are never retried.
var (
	// ErrUnsupportedType indicates the resource type is not one of the supported shapes.
	ErrUnsupportedType = errors.New("unsupported resource type")

	// ErrMalformedPayload indicates the decrypted plaintext does not match its resource type.
	ErrMalformedPayload = errors.New("malformed secret payload")

	// ErrInvalidRequest indicates the account recovery request is corrupted or tampered with.
	ErrInvalidRequest = errors.New("invalid account recovery request")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Cryptographic errors indicate a wrong key or corrupted key/ciphertext material.
var (
	// ErrDecryptionFailed indicates the ciphertext could not be decrypted with the given key.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrCorruptRecoveryMaterial indicates the recovery material could not be unwrapped.
	ErrCorruptRecoveryMaterial = errors.New("corrupt account recovery material")

	// ErrInvalidKey indicates the input is not a valid armored OpenPGP key.
	ErrInvalidKey = errors.New("invalid armored key")

	// ErrNotPrivateKey indicates a valid key was given where a private key is required.
	ErrNotPrivateKey = errors.New("key is not a private key")

	// ErrInvalidMessage indicates the input is not a valid armored OpenPGP message.
	ErrInvalidMessage = errors.New("invalid armored message")

	// ErrSignatureInvalid indicates a signature is missing or does not verify.
	ErrSignatureInvalid = errors.New("invalid signature")
)

// Kind classifies an error by how a caller should react to it.
type Kind int

const (
	// KindUnknown covers errors that carry none of the sentinels, such as transport failures.
	KindUnknown Kind = iota
	KindUserInput
	KindValidation
	KindCryptographic
	KindExhaustion
)

func (k Kind) String() string {
	switch k {
	case KindUserInput:
		return "user_input"
	case KindValidation:
		return "validation"
	case KindCryptographic:
		return "cryptographic"
	case KindExhaustion:
		return "exhaustion"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrExhausted, KindExhaustion},
	{ErrWrongPassphrase, KindUserInput},
	{ErrCancelled, KindUserInput},
	{ErrInvalidRequest, KindValidation},
	{ErrUnsupportedType, KindValidation},
	{ErrMalformedPayload, KindValidation},
	{ErrNotFound, KindValidation},
	{ErrCorruptRecoveryMaterial, KindCryptographic},
	{ErrDecryptionFailed, KindCryptographic},
	{ErrInvalidKey, KindCryptographic},
	{ErrNotPrivateKey, KindCryptographic},
	{ErrInvalidMessage, KindCryptographic},
	{ErrSignatureInvalid, KindCryptographic},
}

// KindOf returns the category of the first sentinel found in err's chain.
// Sentinels are checked in a fixed order, so a wrong-passphrase error wrapped
// inside a recovery step error still reports KindUserInput.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
