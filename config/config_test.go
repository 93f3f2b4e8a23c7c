package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDirectoryMode(t *testing.T) {
	path := writeConfig(t, `
mode = "directory"

[directory]
listen_addr = "127.0.0.1:9051"
secret = "s3cret"

[tls]
cert_path = "cert.pem"
key_path = "key.pem"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeDirectory {
		t.Fatalf("got mode %q, want directory", cfg.Mode)
	}
	if cfg.Directory.Secret != "s3cret" {
		t.Fatalf("got secret %q", cfg.Directory.Secret)
	}
	if cfg.TLS.CertPath != "cert.pem" {
		t.Fatalf("got cert path %q", cfg.TLS.CertPath)
	}
}

func TestLoadDirectoryModeRequiresSecret(t *testing.T) {
	path := writeConfig(t, `
mode = "directory"

[directory]
listen_addr = "127.0.0.1:9051"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing directory secret")
	}
}

func TestLoadNodeModeAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "node"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.ListenAddr != "127.0.0.1:9052" {
		t.Fatalf("got listen addr %q, want default", cfg.Node.ListenAddr)
	}
	if cfg.Node.KeyFile != "node.key" {
		t.Fatalf("got key file %q, want default", cfg.Node.KeyFile)
	}
	if cfg.Node.AdvertiseAddr != "" {
		t.Fatalf("expected empty advertise addr by default, got %q", cfg.Node.AdvertiseAddr)
	}
}

func TestLoadProxyMode(t *testing.T) {
	path := writeConfig(t, `
mode = "proxy"

[proxy]
listen_addr = "127.0.0.1:9050"
directory_addr = "127.0.0.1:9051"
directory_secret = "s3cret"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Proxy.DirectoryAddr != "127.0.0.1:9051" {
		t.Fatalf("got directory addr %q", cfg.Proxy.DirectoryAddr)
	}
}

func TestLoadUnknownMode(t *testing.T) {
	path := writeConfig(t, `mode = "bogus"`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
