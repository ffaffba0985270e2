package main

import (
	"errors"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
	"github.com/atinyakov/keywarden/internal/recovery"
)

// describe turns err into a message for the terminal.
func describe(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrExhausted):
		return "Too many wrong passphrases, giving up"
	case errors.Is(err, kerrors.ErrCancelled):
		return "Cancelled"
	case errors.Is(err, kerrors.ErrWrongPassphrase):
		return "Wrong passphrase"
	}

	var stepErr *recovery.StepError
	if errors.As(err, &stepErr) && kerrors.KindOf(err) == kerrors.KindCryptographic {
		return "The recovery material is corrupt, ask an administrator to review the request: " + err.Error()
	}

	switch kerrors.KindOf(err) {
	case kerrors.KindValidation:
		return "Invalid input: " + err.Error()
	case kerrors.KindCryptographic:
		return "Cryptographic failure: " + err.Error()
	default:
		return err.Error()
	}
}
