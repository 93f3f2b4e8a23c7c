// Package socks implements the proxy's SOCKS5 front end (§6): version
// 5, no authentication, CONNECT only, IPv4 and domain-name address
// types. Target resolution happens here, on the proxy, via local DNS —
// an acknowledged leak (§9).
package socks

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/JGiraldo29/giralnet/circuit"
	"github.com/JGiraldo29/giralnet/stream"
	"github.com/JGiraldo29/giralnet/wire"
)

const maxConns = 256

// Server is a SOCKS5 proxy server that routes traffic through circuits.
type Server struct {
	Addr    string
	GetCirc func() (*circuit.Circuit, error) // called once per accepted connection
	Logger  *slog.Logger
	ln      net.Listener
	sem     chan struct{}
}

// ListenAndServe starts the SOCKS5 server, refusing to bind anywhere
// but loopback (§6: "Bind loopback 127.0.0.1:9050").
func (s *Server) ListenAndServe() error {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}

	host, _, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return fmt.Errorf("parse listen address: %w", err)
	}
	ip := net.ParseIP(host)
	if host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("SOCKS5 server must bind to loopback address, got %s", host)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on an already-created listener.
func (s *Server) Serve(ln net.Listener) error {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok && !tcpAddr.IP.IsLoopback() {
		return fmt.Errorf("SOCKS5 server must bind to loopback address, got %s", tcpAddr.IP)
	}
	s.ln = ln
	s.sem = make(chan struct{}, maxConns)
	s.Logger.Info("SOCKS5 server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		s.sem <- struct{}{}
		go func() {
			defer func() { <-s.sem }()
			s.handleConn(conn)
		}()
	}
}

// Close stops the SOCKS5 server.
func (s *Server) Close() error {
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(2 * time.Minute))

	if err := s.doHandshake(conn); err != nil {
		s.Logger.Debug("SOCKS5 handshake failed", "error", err)
		return
	}

	target, err := s.readConnect(conn)
	if err != nil {
		s.Logger.Debug("SOCKS5 connect request failed", "error", err)
		return
	}

	s.Logger.Info("SOCKS5 CONNECT", "target", target)

	circ, err := s.GetCirc()
	if err != nil {
		s.Logger.Error("get circuit failed", "error", err)
		sendReply(conn, 0x01) // General failure
		return
	}

	dest, err := resolveSockAddr(target)
	if err != nil {
		s.Logger.Debug("SOCKS5 target resolution failed", "error", err)
		sendReply(conn, 0x04) // Host unreachable
		return
	}

	circStream, err := stream.Begin(circ, dest)
	if err != nil {
		s.Logger.Error("stream begin failed", "error", err)
		sendReply(conn, 0x04) // Host unreachable
		return
	}
	defer func() { _ = circStream.Close() }()

	sendReply(conn, 0x00)
	_ = conn.SetDeadline(time.Time{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(circStream, conn)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(conn, circStream)
	}()
	wg.Wait()
}

// resolveSockAddr resolves host:port to a wire.SockAddr via local DNS
// (§6 SOCKS5 acceptor); this is the one place hostnames still exist
// once past the SOCKS front end.
func resolveSockAddr(target string) (wire.SockAddr, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return wire.SockAddr{}, fmt.Errorf("split host:port: %w", err)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return wire.SockAddr{}, err
	}

	ip := net.ParseIP(host)
	if ip == nil {
		addrs, err := net.LookupHost(host)
		if err != nil {
			return wire.SockAddr{}, fmt.Errorf("resolve %s: %w", host, err)
		}
		for _, a := range addrs {
			if parsed := net.ParseIP(a).To4(); parsed != nil {
				ip = parsed
				break
			}
		}
		if ip == nil {
			return wire.SockAddr{}, fmt.Errorf("resolve %s: no IPv4 address found", host)
		}
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return wire.SockAddr{}, fmt.Errorf("resolve %s: not an IPv4 address", host)
	}
	return wire.SockAddr{IP: ip4, Port: port}, nil
}

func parsePort(s string) (uint16, error) {
	var port uint16
	if _, err := fmt.Sscanf(s, "%d", &port); err != nil {
		return 0, fmt.Errorf("parse port %q: %w", s, err)
	}
	return port, nil
}

func (s *Server) doHandshake(conn net.Conn) error {
	var buf [258]byte
	if _, err := io.ReadFull(conn, buf[:2]); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if buf[0] != 0x05 {
		return fmt.Errorf("unsupported SOCKS version: %d", buf[0])
	}
	nMethods := int(buf[1])
	if nMethods == 0 {
		return fmt.Errorf("no methods offered")
	}
	if _, err := io.ReadFull(conn, buf[:nMethods]); err != nil {
		return fmt.Errorf("read methods: %w", err)
	}

	found := false
	for i := 0; i < nMethods; i++ {
		if buf[i] == 0x00 {
			found = true
			break
		}
	}
	if !found {
		_, _ = conn.Write([]byte{0x05, 0xFF})
		return fmt.Errorf("client does not offer no-auth method")
	}

	_, err := conn.Write([]byte{0x05, 0x00})
	return err
}

func (s *Server) readConnect(conn net.Conn) (string, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return "", fmt.Errorf("read request header: %w", err)
	}
	if hdr[0] != 0x05 {
		return "", fmt.Errorf("bad version: %d", hdr[0])
	}
	if hdr[1] != 0x01 { // CONNECT
		sendReply(conn, 0x07) // Command not supported
		return "", fmt.Errorf("unsupported command: %d", hdr[1])
	}

	var host string
	switch hdr[3] {
	case 0x01: // IPv4
		var addr [4]byte
		if _, err := io.ReadFull(conn, addr[:]); err != nil {
			return "", err
		}
		host = net.IP(addr[:]).String()
	case 0x03: // Domain name
		var lenBuf [1]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return "", err
		}
		domain := make([]byte, lenBuf[0])
		if _, err := io.ReadFull(conn, domain); err != nil {
			return "", err
		}
		host = string(domain)
		if host == "" {
			return "", fmt.Errorf("empty domain name")
		}
	case 0x04: // IPv6
		sendReply(conn, 0x08) // Address type not supported
		return "", fmt.Errorf("IPv6 not supported")
	default:
		return "", fmt.Errorf("unknown address type: %d", hdr[3])
	}

	var portBuf [2]byte
	if _, err := io.ReadFull(conn, portBuf[:]); err != nil {
		return "", err
	}
	port := binary.BigEndian.Uint16(portBuf[:])

	return fmt.Sprintf("%s:%d", host, port), nil
}

func sendReply(conn net.Conn, rep byte) {
	reply := []byte{0x05, rep, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	_, _ = conn.Write(reply)
}
