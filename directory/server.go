package directory

import (
	"crypto/subtle"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/JGiraldo29/giralnet/descriptor"
	"github.com/JGiraldo29/giralnet/errs"
	"github.com/JGiraldo29/giralnet/wire"
)

// Directory is the authoritative in-memory relay registry. Nodes
// register their NodeInfo at startup; the Proxy fetches the current
// list before building a circuit (§3, §6).
type Directory struct {
	Secret string
	Logger *slog.Logger

	mu    sync.Mutex
	nodes map[string]descriptor.NodeInfo
}

// NewDirectory constructs an empty registry authenticated by secret.
func NewDirectory(secret string, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		Secret: secret,
		Logger: logger,
		nodes:  make(map[string]descriptor.NodeInfo),
	}
}

// ListenAndServeTLS accepts connections on addr under tlsConfig until
// the listener is closed or ln.Accept returns a permanent error.
func (d *Directory) ListenAndServeTLS(addr string, tlsConfig *tls.Config) error {
	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return &errs.DirectoryError{Detail: "listen", Cause: err}
	}
	defer ln.Close()
	d.Logger.Info("directory listening", "addr", addr)
	return d.Serve(ln)
}

// Serve accepts connections from ln, one goroutine per connection,
// until Accept returns an error (e.g. the listener was closed).
func (d *Directory) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("directory accept: %w", err)
		}
		go d.handleConn(conn)
	}
}

func (d *Directory) handleConn(conn net.Conn) {
	defer conn.Close()

	frame, err := wire.ReadFrame(conn)
	if err != nil {
		d.Logger.Debug("directory read request failed", "error", err)
		return
	}
	req, err := decodeRequest(frame)
	if err != nil {
		d.Logger.Debug("directory decode request failed", "error", err)
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(d.Secret)) != 1 {
		d.Logger.Warn("directory rejected bad secret", "kind", req.Kind)
		return // close without response (§6)
	}

	switch req.Kind {
	case RequestRegister:
		d.register(req)
		d.respond(conn, Response{Kind: ResponseAck})
	case RequestGetNodes:
		d.respond(conn, Response{Kind: ResponseNodeList, Nodes: d.snapshot()})
	default:
		d.Logger.Debug("directory unknown request kind", "kind", req.Kind)
	}
}

func (d *Directory) register(req Request) {
	if req.Info == nil {
		d.Logger.Debug("directory register with no NodeInfo")
		return
	}
	d.mu.Lock()
	d.nodes[req.Info.Address] = *req.Info
	d.mu.Unlock()
	d.Logger.Info("directory registered node", "address", req.Info.Address)
}

func (d *Directory) snapshot() []descriptor.NodeInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := make([]descriptor.NodeInfo, 0, len(d.nodes))
	for _, n := range d.nodes {
		nodes = append(nodes, n)
	}
	return nodes
}

func (d *Directory) respond(conn net.Conn, resp Response) {
	data, err := encodeResponse(resp)
	if err != nil {
		d.Logger.Debug("directory encode response failed", "error", err)
		return
	}
	if err := wire.WriteFrame(conn, data); err != nil {
		d.Logger.Debug("directory write response failed", "error", err)
	}
}
