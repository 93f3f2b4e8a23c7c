package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JGiraldo29/giralnet/tlsutil"
)

func newTLSSetupCmd() *cobra.Command {
	var certPath, keyPath string

	cmd := &cobra.Command{
		Use:   "tls-setup",
		Short: "Generate a self-signed certificate for the directory's TLS listener",
		// Runs standalone, ahead of config.toml existing (mirrors the
		// original setup wizard's cert.pem/key.pem bootstrap step).
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTLSSetup(certPath, keyPath)
		},
	}
	cmd.Flags().StringVar(&certPath, "cert", "cert.pem", "output path for the generated certificate")
	cmd.Flags().StringVar(&keyPath, "key", "key.pem", "output path for the generated private key")
	return cmd
}

func runTLSSetup(certPath, keyPath string) error {
	if err := tlsutil.GenerateSelfSigned(certPath, keyPath); err != nil {
		return fmt.Errorf("generate self-signed cert: %w", err)
	}
	fmt.Printf("Generated %s and %s\n", certPath, keyPath)
	return nil
}
