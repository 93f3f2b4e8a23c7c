package directory

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/JGiraldo29/giralnet/cryptobox"
	"github.com/JGiraldo29/giralnet/descriptor"
	"github.com/JGiraldo29/giralnet/tlsutil"
)

func startTestDirectory(t *testing.T, secret string) (addr string, clientConfig *tls.Config) {
	t.Helper()
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	if err := tlsutil.GenerateSelfSigned(certPath, keyPath); err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	serverConfig, err := tlsutil.LoadServerConfig(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	clientConfig, err = tlsutil.LoadClientConfig(certPath)
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	clientConfig.ServerName = "localhost"

	d := NewDirectory(secret, nil)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverConfig)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go d.Serve(ln)

	return ln.Addr().String(), clientConfig
}

func TestDirectoryRegisterAndFetchNodes(t *testing.T) {
	addr, clientConfig := startTestDirectory(t, "s3cr3t")

	priv, err := cryptobox.GenerateRSAKeyPair()
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair: %v", err)
	}
	info := descriptor.NodeInfo{Address: "127.0.0.1:9001", PublicKey: &priv.PublicKey}

	if err := Register(addr, clientConfig, info, "s3cr3t"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	nodes, err := FetchNodes(addr, clientConfig, "s3cr3t")
	if err != nil {
		t.Fatalf("FetchNodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	if nodes[0].Address != info.Address {
		t.Fatalf("address mismatch: got %s want %s", nodes[0].Address, info.Address)
	}
}

func TestDirectoryRejectsBadSecretWithoutResponse(t *testing.T) {
	addr, clientConfig := startTestDirectory(t, "s3cr3t")

	priv, _ := cryptobox.GenerateRSAKeyPair()
	info := descriptor.NodeInfo{Address: "127.0.0.1:9001", PublicKey: &priv.PublicKey}

	if err := Register(addr, clientConfig, info, "wrong-secret"); err == nil {
		t.Fatalf("expected error registering with wrong secret")
	}

	nodes, err := FetchNodes(addr, clientConfig, "s3cr3t")
	if err != nil {
		t.Fatalf("FetchNodes: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected bad-secret registration to be absent, got %d nodes", len(nodes))
	}
}

func TestDirectoryFetchNodesEmptyRegistry(t *testing.T) {
	addr, clientConfig := startTestDirectory(t, "s3cr3t")
	nodes, err := FetchNodes(addr, clientConfig, "s3cr3t")
	if err != nil {
		t.Fatalf("FetchNodes: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected empty registry, got %d nodes", len(nodes))
	}
}
