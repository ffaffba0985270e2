package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/atinyakov/keywarden/internal/client/storage"
	"github.com/atinyakov/keywarden/internal/crypto"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage the accounts configured on this client",
}

func init() {
	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountAddRecoveryCmd)
	accountCmd.AddCommand(accountListCmd)
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an account with its OpenPGP key pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadStore()
		if err != nil {
			return err
		}
		account, err := storage.PromptForAccount(os.Stdin, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		fingerprint, err := checkPrivateKey(account.UserPrivateArmoredKey)
		if err != nil {
			return err
		}
		if err := store.AddAccount(account); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Account %s added, key %s\n",
			color.GreenString("✓"), account.Username, color.YellowString(fingerprint))
		return nil
	},
}

var accountAddRecoveryCmd = &cobra.Command{
	Use:   "add-recovery",
	Short: "Add the temporary account of a pending account recovery",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadStore()
		if err != nil {
			return err
		}
		ra, err := storage.PromptForRecoveryAccount(os.Stdin, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if _, err := checkPrivateKey(ra.UserPrivateArmoredKey); err != nil {
			return err
		}
		if err := store.AddRecoveryAccount(ra); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Recovery of %s registered\n%s Run %s once an administrator approved it\n",
			color.GreenString("✓"), ra.Username, color.CyanString("→"), color.YellowString("keywarden recover"))
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts and recoveries in progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadStore()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, a := range store.Accounts {
			fmt.Fprintf(out, "%s\t%s@%s\n", a.UserID, a.Username, a.Domain)
		}
		for _, ra := range store.RecoveryAccounts {
			fmt.Fprintf(out, "%s\t%s@%s\t%s\n", ra.UserID, ra.Username, ra.Domain, color.YellowString("recovery %s", ra.AccountRecoveryRequestID))
		}
		return nil
	},
}

func loadStore() (*storage.LocalStorage, error) {
	store := storage.New(options.AccountFile)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return store, nil
}

// checkPrivateKey makes sure the armored key is a passphrase protected
// private key and returns its fingerprint.
func checkPrivateKey(armored string) (string, error) {
	key, err := crypto.New(nil).ReadPrivateKey(armored)
	if err != nil {
		return "", err
	}
	if !key.PrivateKey.Encrypted {
		return "", fmt.Errorf("the private key of %s must be protected by a passphrase", crypto.Fingerprint(key))
	}
	return crypto.Fingerprint(key), nil
}
