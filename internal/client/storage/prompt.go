package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/atinyakov/keywarden/internal/models"
)

var errMissingAnswer = errors.New("input ended before all fields were entered")

type lineReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (r *lineReader) ask(label string) (string, error) {
	fmt.Fprintf(r.out, "%s: ", label)
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", errMissingAnswer
	}
	return strings.TrimSpace(r.scanner.Text()), nil
}

// askKey reads a path and returns the armored key stored there.
func (r *lineReader) askKey(label string) (string, error) {
	path, err := r.ask(label)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (r *lineReader) askUUID(label string) (string, error) {
	v, err := r.ask(label)
	if err != nil {
		return "", err
	}
	if _, err := uuid.Parse(v); err != nil {
		return "", fmt.Errorf("%s: %w", label, err)
	}
	return v, nil
}

// PromptForAccount reads an account from in, asking on out. Keys are read
// from the files whose paths are entered.
func PromptForAccount(in io.Reader, out io.Writer) (models.Account, error) {
	r := &lineReader{scanner: bufio.NewScanner(in), out: out}
	return r.account("Private key file")
}

// PromptForRecoveryAccount reads the temporary account of a recovery request.
func PromptForRecoveryAccount(in io.Reader, out io.Writer) (models.RecoveryAccount, error) {
	r := &lineReader{scanner: bufio.NewScanner(in), out: out}

	account, err := r.account("Temporary private key file")
	if err != nil {
		return models.RecoveryAccount{}, err
	}
	ra := models.RecoveryAccount{Account: account}
	if ra.AccountRecoveryRequestID, err = r.askUUID("Recovery request id"); err != nil {
		return models.RecoveryAccount{}, err
	}
	if ra.AuthenticationToken, err = r.ask("Authentication token"); err != nil {
		return models.RecoveryAccount{}, err
	}

	path, err := r.ask("Previous public key file (leave empty if unknown)")
	if err != nil {
		return models.RecoveryAccount{}, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return models.RecoveryAccount{}, fmt.Errorf("read %s: %w", path, err)
		}
		ra.KnownPublicArmoredKey = string(data)
	}
	return ra, nil
}

func (r *lineReader) account(privateKeyLabel string) (models.Account, error) {
	var (
		a   models.Account
		err error
	)
	if a.UserID, err = r.askUUID("User id"); err != nil {
		return a, err
	}
	if a.Username, err = r.ask("Username"); err != nil {
		return a, err
	}
	if a.Domain, err = r.ask("Domain"); err != nil {
		return a, err
	}
	if a.UserPrivateArmoredKey, err = r.askKey(privateKeyLabel); err != nil {
		return a, err
	}
	if a.UserPublicArmoredKey, err = r.askKey("Public key file"); err != nil {
		return a, err
	}
	return a, nil
}
