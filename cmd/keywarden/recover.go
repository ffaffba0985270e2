package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/atinyakov/keywarden/internal/recovery"
	"github.com/atinyakov/keywarden/internal/repository"
	"github.com/atinyakov/keywarden/internal/service"
)

var recoverUserID string

func init() {
	recoverCmd.Flags().StringVarP(&recoverUserID, "user", "u", "", "user id of the recovery to complete (default: the only one in progress)")
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Complete an approved account recovery",
	Long: `Fetches the approved recovery request of a temporary account, unwraps the
escrowed private key and stores it protected by the passphrase of the
temporary key. The temporary account is replaced by the recovered one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(options, log.Log)
		if err != nil {
			return err
		}
		verifiers, err := a.verifiers()
		if err != nil {
			return err
		}
		if len(verifiers) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("!")+" No verifier keys configured, recovery response signatures are not checked")
		}

		conn, err := a.openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		svc := service.NewRecoveryService(
			a.store,
			repository.NewPostgresRecoveryRepository(conn),
			a.gate,
			recovery.NewUnwrapper(a.pgp, verifiers, a.log, a.metrics),
			a.log,
		)

		return a.run(cmd.Context(), func(ctx context.Context) error {
			key, err := svc.Recover(ctx, recoverUserID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Account %s recovered, key %s\n",
				color.GreenString("✓"), key.UserID, color.YellowString(key.Fingerprint))
			return nil
		})
	},
}
