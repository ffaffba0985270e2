// Package crypto provides the OpenPGP operations keywarden is built on.
//
// Secrets are OpenPGP messages encrypted for the user's public key. The
// user's private key is stored armored and protected by a passphrase; it is
// unlocked per operation and never cached by this package.
//
// # Error Reporting
//
// Every operation fails with a sentinel from internal/errors so that callers
// can branch on the failure kind:
//
//   - ErrInvalidKey / ErrNotPrivateKey when key material cannot be parsed
//   - ErrWrongPassphrase when a passphrase does not unlock a private key
//   - ErrInvalidMessage when a message is not armored OpenPGP data
//   - ErrDecryptionFailed when a message cannot be decrypted with the given key or secret
//   - ErrSignatureInvalid when a required signature is missing or wrong
//
// # Key Ownership
//
// DecryptPrivateKey parses a fresh copy of the armored key for every call, so
// the unlocked key belongs exclusively to the caller and the armored input is
// never modified.
package crypto
