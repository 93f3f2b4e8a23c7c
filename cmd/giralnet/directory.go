package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JGiraldo29/giralnet/config"
	"github.com/JGiraldo29/giralnet/directory"
	"github.com/JGiraldo29/giralnet/logging"
	"github.com/JGiraldo29/giralnet/tlsutil"
)

func newDirectoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "directory",
		Short: "Run the relay registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirectory(configPath)
		},
	}
}

func runDirectory(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logFile, err := logging.Setup("directory-debug.log")
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()

	tlsConfig, err := tlsutil.LoadServerConfig(cfg.TLS.CertPath, cfg.TLS.KeyPath)
	if err != nil {
		return fmt.Errorf("load TLS server config: %w", err)
	}

	d := directory.NewDirectory(cfg.Directory.Secret, logger)
	return d.ListenAndServeTLS(cfg.Directory.ListenAddr, tlsConfig)
}
