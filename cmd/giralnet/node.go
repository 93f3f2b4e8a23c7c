package main

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/spf13/cobra"

	"github.com/JGiraldo29/giralnet/config"
	"github.com/JGiraldo29/giralnet/descriptor"
	"github.com/JGiraldo29/giralnet/directory"
	"github.com/JGiraldo29/giralnet/logging"
	"github.com/JGiraldo29/giralnet/node"
	"github.com/JGiraldo29/giralnet/tlsutil"
)

func newNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "node",
		Short: "Run a relay/exit node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath)
		},
	}
}

func runNode(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logFile, err := logging.Setup("node-debug.log")
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()

	n, err := node.New(logger)
	if err != nil {
		return fmt.Errorf("create node identity: %w", err)
	}
	if err := n.SavePublicKeyPEM(cfg.Node.KeyFile + ".pub"); err != nil {
		return fmt.Errorf("save public key: %w", err)
	}
	logger.Info("node public key saved", "path", cfg.Node.KeyFile+".pub")

	if cfg.Node.DirectoryAddr != "" {
		if err := registerWithDirectory(n, cfg, logger); err != nil {
			logger.Warn("directory registration failed, continuing unregistered", "error", err)
		}
	}

	return n.ListenAndServe(cfg.Node.ListenAddr)
}

// registerWithDirectory advertises this node's address and public key
// (§3, §6). The advertised address defaults to 127.0.0.1 plus the
// node's listening port when AdvertiseAddr is unset — see DESIGN.md's
// Open Question decision for why this is logged rather than silent.
func registerWithDirectory(n *node.Node, cfg *config.Config, logger *slog.Logger) error {
	advertise := cfg.Node.AdvertiseAddr
	if advertise == "" {
		_, port, err := net.SplitHostPort(cfg.Node.ListenAddr)
		if err != nil {
			return fmt.Errorf("derive advertise address: %w", err)
		}
		advertise = net.JoinHostPort("127.0.0.1", port)
		logger.Warn("node.advertise_addr unset, advertising loopback", "address", advertise)
	}

	tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS.CACertPath)
	if err != nil {
		return fmt.Errorf("load TLS client config: %w", err)
	}

	info := descriptor.NodeInfo{Address: advertise, PublicKey: &n.PrivateKey.PublicKey}
	if err := directory.Register(cfg.Node.DirectoryAddr, tlsConfig, info, cfg.Node.DirectorySecret); err != nil {
		return err
	}
	logger.Info("registered with directory", "directory", cfg.Node.DirectoryAddr, "advertised", advertise)
	return nil
}
