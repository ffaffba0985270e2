// Package main is the keywarden command line: it decrypts shared secrets and
// completes account recoveries against the organization backend.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/keywarden/internal/config"
	"github.com/atinyakov/keywarden/internal/logger"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

var (
	loader  *config.Loader
	options *config.Options
	log     = logger.New()

	rootCmd = &cobra.Command{
		Use:   "keywarden",
		Short: "Decrypt shared secrets and recover lost accounts",
		Long: `keywarden reads secrets shared with you from the organization backend and
decrypts them with your OpenPGP key, asking for its passphrase on the terminal
or through a local HTTP bridge.

It also completes account recoveries approved by an organization administrator.`,
		Version:       fmt.Sprintf("%s (built %s)", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A")),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if options, err = loader.Load(); err != nil {
				return err
			}
			return log.Init(options.LogLevel)
		},
	}
)

func init() {
	loader = config.NewLoader(rootCmd.PersistentFlags())

	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(resourceTypesCmd)
	rootCmd.AddCommand(accountCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = log.Log.Sync()
	if err != nil {
		log.Log.Debug("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+describe(err))
		stop()
		os.Exit(1)
	}
}
