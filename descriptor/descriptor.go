// Package descriptor defines the relay advertisement exchanged with
// the directory: a socket address plus an RSA-2048 public key (§3
// NodeInfo).
package descriptor

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/JGiraldo29/giralnet/cryptobox"
)

// NodeInfo is a relay advertisement. Its uniqueness key is Address;
// the directory keys its registry by it (§3, §6).
type NodeInfo struct {
	Address   string
	PublicKey *rsa.PublicKey
}

// wireNodeInfo is the JSON shape of NodeInfo sent over the directory's
// TLS channel: the public key travels PEM-encoded (§4.1, §6).
type wireNodeInfo struct {
	Address      string `json:"address"`
	PublicKeyPEM string `json:"public_key_pem"`
}

// MarshalJSON encodes the public key as PEM per §6's serialization
// convention for NodeInfo.
func (n NodeInfo) MarshalJSON() ([]byte, error) {
	pemBytes, err := cryptobox.PublicKeyToPEM(n.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal node info: %w", err)
	}
	return json.Marshal(wireNodeInfo{Address: n.Address, PublicKeyPEM: string(pemBytes)})
}

// UnmarshalJSON decodes a NodeInfo previously produced by MarshalJSON.
func (n *NodeInfo) UnmarshalJSON(data []byte) error {
	var w wireNodeInfo
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal node info: %w", err)
	}
	pub, err := cryptobox.PublicKeyFromPEM([]byte(w.PublicKeyPEM))
	if err != nil {
		return fmt.Errorf("unmarshal node info: %w", err)
	}
	n.Address = w.Address
	n.PublicKey = pub
	return nil
}
