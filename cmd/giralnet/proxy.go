package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JGiraldo29/giralnet/circuit"
	"github.com/JGiraldo29/giralnet/config"
	"github.com/JGiraldo29/giralnet/descriptor"
	"github.com/JGiraldo29/giralnet/directory"
	"github.com/JGiraldo29/giralnet/errs"
	"github.com/JGiraldo29/giralnet/logging"
	"github.com/JGiraldo29/giralnet/pathselect"
	"github.com/JGiraldo29/giralnet/socks"
	"github.com/JGiraldo29/giralnet/tlsutil"
)

func newProxyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proxy",
		Short: "Run the SOCKS5 entry proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxy(configPath)
		},
	}
}

func runProxy(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logFile, err := logging.Setup("proxy-debug.log")
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()

	tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS.CACertPath)
	if err != nil {
		return fmt.Errorf("load TLS client config: %w", err)
	}

	nodes, err := directory.FetchNodes(cfg.Proxy.DirectoryAddr, tlsConfig, cfg.Proxy.DirectorySecret)
	if err != nil {
		return fmt.Errorf("fetch nodes from directory: %w", err)
	}
	logger.Info("fetched nodes from directory", "count", len(nodes))

	circ, err := buildCircuit(nodes, logger)
	if err != nil {
		return fmt.Errorf("build initial circuit: %w", err)
	}
	logger.Info("circuit established")

	var mu sync.Mutex
	srv := &socks.Server{
		Addr:   cfg.Proxy.ListenAddr,
		Logger: logger,
		GetCirc: func() (*circuit.Circuit, error) {
			mu.Lock()
			defer mu.Unlock()
			if circ == nil {
				return nil, fmt.Errorf("circuit destroyed")
			}
			return circ, nil
		},
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down proxy")
		srv.Close()
		mu.Lock()
		circ.Close()
		circ = nil
		mu.Unlock()
	}()

	return srv.ListenAndServe()
}

// buildCircuit selects a fresh random 3-hop path and dials it, retrying
// a few times since any single relay may be unreachable.
func buildCircuit(nodes []descriptor.NodeInfo, logger *slog.Logger) (*circuit.Circuit, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		path, err := pathselect.SelectPath(nodes)
		if err != nil {
			return nil, err
		}
		hops := circuit.NodesFromPath(path)
		circ, err := circuit.Dial(hops, logger)
		if err == nil {
			return circ, nil
		}
		lastErr = err
		logger.Warn("circuit build attempt failed", "attempt", attempt, "error", err)
	}
	return nil, &errs.CircuitError{Detail: "failed to build circuit after 3 attempts", Cause: lastErr}
}
