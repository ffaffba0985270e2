// Package storage keeps the client's accounts and their key material on disk.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
	"github.com/atinyakov/keywarden/internal/models"
)

// DefaultFile is the account file used when none is configured.
const DefaultFile = "accounts.json"

// LocalStorage is a JSON file holding configured accounts and the temporary
// accounts of recoveries in progress.
type LocalStorage struct {
	Accounts         []models.Account         `json:"accounts"`
	RecoveryAccounts []models.RecoveryAccount `json:"recovery_accounts"`

	path string
	mu   sync.Mutex
}

// New returns a storage backed by path. Call Load before use.
func New(path string) *LocalStorage {
	if path == "" {
		path = DefaultFile
	}
	return &LocalStorage{path: path}
}

// Load reads the file. A missing file yields an empty storage.
func (ls *LocalStorage) Load() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	f, err := os.Open(ls.path)
	if err != nil {
		if os.IsNotExist(err) {
			ls.Accounts = []models.Account{}
			ls.RecoveryAccounts = []models.RecoveryAccount{}
			return nil
		}
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(ls); err != nil {
		return fmt.Errorf("decode %s: %w", ls.path, err)
	}
	return nil
}

// Save writes the file, readable by the owner only.
func (ls *LocalStorage) Save() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.save()
}

// rename replaces the account file with a fully written copy.
var rename = os.Rename

// save writes a temporary file next to the account file and renames it over
// the original. On failure the original is left untouched.
func (ls *LocalStorage) save() (err error) {
	f, err := os.CreateTemp(filepath.Dir(ls.path), "."+filepath.Base(ls.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = f.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(ls); err != nil {
		return fmt.Errorf("encode %s: %w", ls.path, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err = rename(tmp, ls.path); err != nil {
		return fmt.Errorf("replace %s: %w", ls.path, err)
	}
	return nil
}

// Account returns the account of userID. With an empty userID the only
// configured account is returned.
func (ls *LocalStorage) Account(userID string) (models.Account, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if userID == "" {
		if len(ls.Accounts) == 1 {
			return ls.Accounts[0], nil
		}
		return models.Account{}, fmt.Errorf("%w: %d accounts configured, select one by user id", kerrors.ErrNotFound, len(ls.Accounts))
	}
	for _, a := range ls.Accounts {
		if a.UserID == userID {
			return a, nil
		}
	}
	return models.Account{}, fmt.Errorf("%w: account %s", kerrors.ErrNotFound, userID)
}

// RecoveryAccount returns the temporary account of the recovery in progress
// for userID, or the only one when userID is empty.
func (ls *LocalStorage) RecoveryAccount(userID string) (models.RecoveryAccount, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if userID == "" {
		if len(ls.RecoveryAccounts) == 1 {
			return ls.RecoveryAccounts[0], nil
		}
		return models.RecoveryAccount{}, fmt.Errorf("%w: %d recoveries in progress, select one by user id", kerrors.ErrNotFound, len(ls.RecoveryAccounts))
	}
	for _, a := range ls.RecoveryAccounts {
		if a.UserID == userID {
			return a, nil
		}
	}
	return models.RecoveryAccount{}, fmt.Errorf("%w: recovery account %s", kerrors.ErrNotFound, userID)
}

// AddAccount stores a, replacing an account with the same user id, and saves.
func (ls *LocalStorage) AddAccount(a models.Account) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.putAccount(a)
	return ls.save()
}

// AddRecoveryAccount stores a, replacing a recovery in progress for the same
// user, and saves.
func (ls *LocalStorage) AddRecoveryAccount(a models.RecoveryAccount) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.removeRecoveryAccount(a.UserID)
	ls.RecoveryAccounts = append(ls.RecoveryAccounts, a)
	return ls.save()
}

// CompleteRecovery turns the recovery account into a regular account holding
// the recovered key and saves. The temporary account is removed.
func (ls *LocalStorage) CompleteRecovery(ra models.RecoveryAccount, key *models.RecoveredPrivateKey) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	account := ra.Account
	account.UserPrivateArmoredKey = key.PrivateArmoredKey
	account.UserPublicArmoredKey = key.PublicArmoredKey
	ls.putAccount(account)
	ls.removeRecoveryAccount(ra.UserID)
	return ls.save()
}

func (ls *LocalStorage) putAccount(a models.Account) {
	for i := range ls.Accounts {
		if ls.Accounts[i].UserID == a.UserID {
			ls.Accounts[i] = a
			return
		}
	}
	ls.Accounts = append(ls.Accounts, a)
}

func (ls *LocalStorage) removeRecoveryAccount(userID string) {
	kept := ls.RecoveryAccounts[:0]
	for _, a := range ls.RecoveryAccounts {
		if a.UserID != userID {
			kept = append(kept, a)
		}
	}
	ls.RecoveryAccounts = kept
}
