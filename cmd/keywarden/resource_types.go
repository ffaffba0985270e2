package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atinyakov/keywarden/internal/repository"
	"github.com/atinyakov/keywarden/internal/service"
)

var resourceTypesCmd = &cobra.Command{
	Use:   "resource-types",
	Short: "List the backend resource types this client can decrypt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(options, log.Log)
		if err != nil {
			return err
		}
		conn, err := a.openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		svc := service.NewSecretService(a.store, repository.NewPostgresSecretRepository(conn), a.gate, a.pgp, nil, a.log)
		types, err := svc.ResourceTypes(cmd.Context())
		if err != nil {
			return err
		}
		for _, rt := range types {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", rt.ID, rt.Slug, rt.Name)
		}
		return nil
	},
}
