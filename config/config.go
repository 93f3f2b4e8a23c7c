// Package config loads giralnet's TOML configuration file (§6): which
// role to run (directory, node, or proxy) and the settings each role
// needs, mirroring the shape of the original implementation's
// config.rs but loaded through viper instead of serde/toml.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/JGiraldo29/giralnet/errs"
)

// Mode selects which role a giralnet process runs as.
type Mode string

const (
	ModeDirectory Mode = "directory"
	ModeNode      Mode = "node"
	ModeProxy     Mode = "proxy"
)

// Config is the full on-disk configuration. Only the sections relevant
// to Mode are required to be populated; the others are ignored.
type Config struct {
	Mode      Mode
	Directory DirectoryConfig
	Node      NodeConfig
	Proxy     ProxyConfig
	TLS       TLSConfig
}

// DirectoryConfig configures the relay registry (§6).
type DirectoryConfig struct {
	ListenAddr string
	Secret     string
}

// NodeConfig configures a relay/exit node (§4.4, §6).
type NodeConfig struct {
	ListenAddr string
	KeyFile    string

	// AdvertiseAddr is the address the node registers with the
	// directory. Falls back to 127.0.0.1 with a logged warning if
	// unset — see DESIGN.md's Open Question decision on this field.
	AdvertiseAddr string

	// DirectoryAddr and DirectorySecret are optional: a node that
	// omits them serves circuits without registering itself (§7).
	DirectoryAddr   string
	DirectorySecret string
}

// ProxyConfig configures the SOCKS5 front end (§6).
type ProxyConfig struct {
	ListenAddr      string
	DirectoryAddr   string
	DirectorySecret string
}

// TLSConfig configures the directory's TLS listener and its clients'
// trust root (§6).
type TLSConfig struct {
	CACertPath string
	CertPath   string
	KeyPath    string
}

// Load reads configuration from path (TOML) via viper, applying the
// same defaults a freshly generated config.toml would carry.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("directory.listen_addr", "127.0.0.1:9051")
	v.SetDefault("node.listen_addr", "127.0.0.1:9052")
	v.SetDefault("node.key_file", "node.key")
	v.SetDefault("proxy.listen_addr", "127.0.0.1:9050")
	v.SetDefault("tls.ca_cert_path", "ca.pem")
	v.SetDefault("tls.cert_path", "cert.pem")
	v.SetDefault("tls.key_path", "key.pem")

	if err := v.ReadInConfig(); err != nil {
		return nil, &errs.ConfigError{Detail: fmt.Sprintf("read %s", path), Cause: err}
	}

	mode := Mode(strings.ToLower(v.GetString("mode")))
	switch mode {
	case ModeDirectory, ModeNode, ModeProxy:
	default:
		return nil, &errs.ConfigError{Detail: fmt.Sprintf("unknown mode %q (want directory, node, or proxy)", mode)}
	}

	cfg := &Config{
		Mode: mode,
		Directory: DirectoryConfig{
			ListenAddr: v.GetString("directory.listen_addr"),
			Secret:     v.GetString("directory.secret"),
		},
		Node: NodeConfig{
			ListenAddr:      v.GetString("node.listen_addr"),
			KeyFile:         v.GetString("node.key_file"),
			AdvertiseAddr:   v.GetString("node.advertise_addr"),
			DirectoryAddr:   v.GetString("node.directory_addr"),
			DirectorySecret: v.GetString("node.directory_secret"),
		},
		Proxy: ProxyConfig{
			ListenAddr:      v.GetString("proxy.listen_addr"),
			DirectoryAddr:   v.GetString("proxy.directory_addr"),
			DirectorySecret: v.GetString("proxy.directory_secret"),
		},
		TLS: TLSConfig{
			CACertPath: v.GetString("tls.ca_cert_path"),
			CertPath:   v.GetString("tls.cert_path"),
			KeyPath:    v.GetString("tls.key_path"),
		},
	}

	if cfg.Mode == ModeDirectory && cfg.Directory.Secret == "" {
		return nil, &errs.ConfigError{Detail: "directory.secret must be set"}
	}

	return cfg, nil
}
