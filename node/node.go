// Package node implements the relay/exit role (§4.4): for each inbound
// circuit connection it peels exactly one onion layer and either
// byte-bridges to the next hop (Relay) or becomes the exit multiplexer
// (Exit).
package node

import (
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/JGiraldo29/giralnet/cryptobox"
	"github.com/JGiraldo29/giralnet/onion"
	"github.com/JGiraldo29/giralnet/wire"
)

// Node is a relay that may act as a middle or exit hop for any given
// circuit; its role is decided per-connection by the onion layer it
// peels, not by static configuration (§4.4).
type Node struct {
	PrivateKey *rsa.PrivateKey
	Logger     *slog.Logger
}

// New generates a fresh RSA-2048 identity for the node (§4.1, §6: the
// private key is ephemeral, never persisted).
func New(logger *slog.Logger) (*Node, error) {
	priv, err := cryptobox.GenerateRSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("new node: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{PrivateKey: priv, Logger: logger}, nil
}

// SavePublicKeyPEM writes the node's public key to path in PEM form
// (§6 "Persisted state": "<key_file>.pub").
func (n *Node) SavePublicKeyPEM(path string) error {
	pemBytes, err := cryptobox.PublicKeyToPEM(&n.PrivateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("save public key: %w", err)
	}
	if err := os.WriteFile(path, pemBytes, 0644); err != nil {
		return fmt.Errorf("save public key: %w", err)
	}
	return nil
}

// ListenAndServe binds addr and serves inbound circuit connections
// until the listener fails.
func (n *Node) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("node listen: %w", err)
	}
	defer ln.Close()
	n.Logger.Info("node listening", "addr", addr)
	return n.Serve(ln)
}

// Serve accepts connections from ln, one goroutine per connection.
func (n *Node) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("node accept: %w", err)
		}
		go n.handleConn(conn)
	}
}

// handleConn runs the ACCEPT → READ_HANDSHAKE → READ_ONION → DECRYPT →
// {RELAY|EXIT} state machine for one fresh inbound connection (§4.4).
func (n *Node) handleConn(conn net.Conn) {
	handshakeFrame, err := wire.ReadFrame(conn)
	if err != nil {
		n.Logger.Debug("node read handshake failed", "error", err)
		conn.Close()
		return
	}
	onionFrame, err := wire.ReadFrame(conn)
	if err != nil {
		n.Logger.Debug("node read onion failed", "error", err)
		conn.Close()
		return
	}

	layer, err := onion.Peel(n.PrivateKey, handshakeFrame, onionFrame)
	if err != nil {
		n.Logger.Debug("node peel failed, closing", "error", err)
		conn.Close()
		return
	}

	switch layer.Kind {
	case wire.OnionRelay:
		n.relay(conn, layer)
	case wire.OnionExit:
		n.Logger.Info("node entering exit mode")
		n.runExit(conn)
	default:
		n.Logger.Debug("node peeled unknown layer kind, closing")
		conn.Close()
	}
}

func (n *Node) relay(prevHop net.Conn, layer wire.OnionLayer) {
	defer prevHop.Close()

	nextConn, err := net.Dial("tcp", layer.NextHop)
	if err != nil {
		n.Logger.Debug("node relay dial failed", "next_hop", layer.NextHop, "error", err)
		return
	}
	defer nextConn.Close()

	if _, err := nextConn.Write(layer.Payload); err != nil {
		n.Logger.Debug("node relay forward failed", "error", err)
		return
	}

	n.Logger.Info("node relaying", "next_hop", layer.NextHop)
	bridge(prevHop, nextConn)
}

// bridge full-duplex copies between a and b until either side closes
// or errors, closing both ends when done (§4.4 byte-bridge).
func bridge(a, b net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(b, a)
		b.Close()
	}()
	go func() {
		defer wg.Done()
		io.Copy(a, b)
		a.Close()
	}()
	wg.Wait()
}
