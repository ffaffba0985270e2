// Package errors provides typed error values for keywarden.
//
// Callers branch on error kind rather than on message text: a wrong
// passphrase is handled by re-prompting, a malformed recovery request is
// surfaced as a precondition failure, and a corrupted ciphertext is reported
// as a cryptographic failure.
//
// # Error Categories
//
//   - User input: ErrWrongPassphrase, ErrCancelled
//   - Validation: ErrUnsupportedType, ErrMalformedPayload, ErrInvalidRequest
//   - Cryptographic: ErrDecryptionFailed, ErrCorruptRecoveryMaterial, ErrInvalidKey,
//     ErrNotPrivateKey, ErrInvalidMessage, ErrSignatureInvalid
//   - Exhaustion: ErrExhausted
//
// # Usage
//
//	plaintext, err := codec.Decrypt(ctx, envelope, resourceType, key)
//	if errors.Is(err, kerrors.ErrMalformedPayload) {
//	    // the key was right, the payload was not
//	}
//
// KindOf collapses any wrapped error into its category:
//
//	switch kerrors.KindOf(err) {
//	case kerrors.KindUserInput:
//	    // ask again
//	}
package errors
