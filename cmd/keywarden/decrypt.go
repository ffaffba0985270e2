package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/atinyakov/keywarden/internal/repository"
	"github.com/atinyakov/keywarden/internal/secret"
	"github.com/atinyakov/keywarden/internal/service"
)

var (
	decryptUserID string
	decryptJSON   bool
)

func init() {
	decryptCmd.Flags().StringVarP(&decryptUserID, "user", "u", "", "user id of the account to decrypt with (default: the only account)")
	decryptCmd.Flags().BoolVar(&decryptJSON, "json", false, "print the decrypted secret as JSON")
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt <resource-id>",
	Short: "Decrypt the secret of a resource shared with you",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resourceID := args[0]
		if err := uuid.Validate(resourceID); err != nil {
			return fmt.Errorf("invalid resource id %q: %w", resourceID, err)
		}

		a, err := newApp(options, log.Log)
		if err != nil {
			return err
		}
		conn, err := a.openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		svc := service.NewSecretService(
			a.store,
			repository.NewPostgresSecretRepository(conn),
			a.gate,
			a.pgp,
			secret.NewCodec(a.pgp, a.log, a.metrics),
			a.log,
		)

		return a.run(cmd.Context(), func(ctx context.Context) error {
			s, err := svc.Decrypt(ctx, decryptUserID, resourceID)
			if err != nil {
				return err
			}
			if decryptJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s.Plaintext)
			}
			printSecret(cmd.OutOrStdout(), s)
			return nil
		})
	},
}

// printSecret writes the fields the resource type declares.
func printSecret(w io.Writer, s *service.Secret) {
	fmt.Fprintf(w, "%s %s (%s)\n", color.GreenString("✓"), s.ResourceID, s.Type.Slug)
	p := s.Plaintext
	if p.Password != nil {
		fmt.Fprintf(w, "%s %s\n", color.CyanString("Password:"), *p.Password)
	}
	if p.Description != nil {
		fmt.Fprintf(w, "%s %s\n", color.CyanString("Description:"), *p.Description)
	}
	if p.TOTP != nil {
		fmt.Fprintf(w, "%s %s, %d digits every %ds, secret %s\n",
			color.CyanString("TOTP:"), p.TOTP.Algorithm, p.TOTP.Digits, p.TOTP.Period, p.TOTP.SecretKey)
	}
}
