package tlsutil

import (
	"crypto/tls"
	"io"
	"path/filepath"
	"testing"
)

func TestGenerateSelfSignedAndRoundTripTLS(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	if err := GenerateSelfSigned(certPath, keyPath); err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}

	serverConfig, err := LoadServerConfig(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	clientConfig, err := LoadClientConfig(certPath)
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	clientConfig.ServerName = "localhost"

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverConfig)
	if err != nil {
		t.Fatalf("tls.Listen: %v", err)
	}
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	conn, err := tls.Dial("tcp", ln.Addr().String(), clientConfig)
	if err != nil {
		t.Fatalf("tls.Dial: %v", err)
	}
	defer conn.Close()

	msg := []byte("hello over tls")
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != string(msg) {
		t.Fatalf("echo mismatch: got %q want %q", buf, msg)
	}
	conn.Close()
	<-done
}

func TestLoadClientConfigRejectsMissingFile(t *testing.T) {
	if _, err := LoadClientConfig("/nonexistent/cert.pem"); err == nil {
		t.Fatalf("expected error loading missing CA file")
	}
}

func TestLoadServerConfigRejectsMismatchedKey(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	otherKeyPath := filepath.Join(dir, "other_key.pem")

	if err := GenerateSelfSigned(certPath, keyPath); err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	if err := GenerateSelfSigned(filepath.Join(dir, "other_cert.pem"), otherKeyPath); err != nil {
		t.Fatalf("GenerateSelfSigned (2): %v", err)
	}

	if _, err := LoadServerConfig(certPath, otherKeyPath); err == nil {
		t.Fatalf("expected error loading mismatched cert/key pair")
	}
}
