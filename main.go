package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/shandysiswandi/carepass/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// @title           CarePass API
// @version         1.0
// @description     CarePass signs operators and subjects in with one-time codes and lets operators read a subject's record after the subject consents.
// @server          http://localhost:8080
// @securityDefinitions.apikey  BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	serve := newServeCommand(&configPath)

	root := &cobra.Command{
		Use:           "carepass",
		Short:         "One-time code sign-in and consent-gated record access",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          serve.RunE,
	}
	addConfigFlag(root.PersistentFlags(), &configPath)

	root.AddCommand(serve, newKeygenCommand())
	return root
}

func addConfigFlag(fs *pflag.FlagSet, target *string) {
	fs.StringVarP(target, "config", "c", "", "path to config.yaml (defaults to CONFIG_PATH)")
}

func newServeCommand(configPath *string) *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application := app.New(*configPath) // Initialize the application
			wait := application.Start()         // Start the application and wait for the termination signal
			<-wait                              // Wait for the application to receive a termination signal
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			application.Stop(ctx) // Stop the application gracefully
			return nil
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight work on shutdown")
	return cmd
}

func newKeygenCommand() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a random base64 key for session.secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if size < 64 {
				return fmt.Errorf("keygen: HS512 needs at least 64 bytes, got %d", size)
			}
			key := make([]byte, size)
			if _, err := rand.Read(key); err != nil {
				return fmt.Errorf("keygen: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(key))
			return err
		},
	}
	cmd.Flags().IntVar(&size, "bytes", 64, "key size in bytes")
	return cmd
}
