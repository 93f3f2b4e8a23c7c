// Package onion implements the nested encryption construction used to
// route a circuit through its three hops (§4.3): innermost-first
// layering of OnionLayer values, each sealed with a fresh AES-256-GCM
// session key itself sealed to the hop's RSA public key.
package onion

import (
	"crypto/rsa"
	"fmt"

	"github.com/JGiraldo29/giralnet/cryptobox"
	"github.com/JGiraldo29/giralnet/wire"
)

// Hop is one selected relay: its advertised address and RSA public key.
type Hop struct {
	Address   string
	PublicKey *rsa.PublicKey
}

// EntryFrame is what the onion builder sends to hop₀ to establish a
// circuit: a length-prefixed HandshakeMessage followed by a
// length-prefixed encrypted onion blob (§4.2, §4.3 step 3).
type EntryFrame struct {
	Handshake []byte
	Onion     []byte
}

// Build constructs the nested onion for an ordered hop list
// [n0, n1, n2] per §4.3's construction order (innermost first). The
// returned EntryFrame is addressed to hops[0].
func Build(hops []Hop) (EntryFrame, error) {
	if len(hops) == 0 {
		return EntryFrame{}, fmt.Errorf("build onion: no hops given")
	}

	// Step 1: innermost layer is always Exit.
	payload := wire.OnionLayer{Kind: wire.OnionExit}.Encode()

	// Step 2: for each hop from the last down to hop 1, seal payload
	// with a fresh session key for that hop and wrap it in a Relay layer
	// naming that hop's address, for the hop before it to forward.
	for i := len(hops) - 1; i >= 1; i-- {
		hop := hops[i]
		key, err := cryptobox.NewAESKey()
		if err != nil {
			return EntryFrame{}, fmt.Errorf("build onion: hop %d: %w", i, err)
		}
		ct, nonce, err := cryptobox.AESSeal(key, payload)
		if err != nil {
			return EntryFrame{}, fmt.Errorf("build onion: hop %d: %w", i, err)
		}
		enc := append(append([]byte{}, ct...), nonce[:]...)

		sealedKey, err := cryptobox.RSASeal(hop.PublicKey, key[:])
		if err != nil {
			return EntryFrame{}, fmt.Errorf("build onion: hop %d: %w", i, err)
		}
		hs := wire.HandshakeMessage{EncryptedAESKey: sealedKey}.Encode()

		inner := frameBytes(hs, enc)

		nextHop := hops[i].Address
		payload = wire.OnionLayer{Kind: wire.OnionRelay, NextHop: nextHop, Payload: inner}.Encode()
	}

	// Step 3: the entry hop (hop 0) is sealed but not itself wrapped in
	// a Relay layer — its HandshakeMessage and onion blob are sent
	// directly over the freshly opened TCP socket.
	entry := hops[0]
	key0, err := cryptobox.NewAESKey()
	if err != nil {
		return EntryFrame{}, fmt.Errorf("build onion: entry hop: %w", err)
	}
	sealedKey0, err := cryptobox.RSASeal(entry.PublicKey, key0[:])
	if err != nil {
		return EntryFrame{}, fmt.Errorf("build onion: entry hop: %w", err)
	}
	hs0 := wire.HandshakeMessage{EncryptedAESKey: sealedKey0}.Encode()

	ct0, nonce0, err := cryptobox.AESSeal(key0, payload)
	if err != nil {
		return EntryFrame{}, fmt.Errorf("build onion: entry hop: %w", err)
	}
	enc0 := append(append([]byte{}, ct0...), nonce0[:]...)

	return EntryFrame{Handshake: hs0, Onion: enc0}, nil
}

// frameBytes produces the "inner" blob §4.3 step 2 describes:
// length-prefixed HandshakeMessage followed by length-prefixed
// encrypted onion blob, ready to ship verbatim to the next hop once
// that hop peels its own layer.
func frameBytes(handshake, encOnion []byte) []byte {
	out := make([]byte, 0, 8+len(handshake)+len(encOnion))
	out = wire.AppendFrame(out, handshake)
	out = wire.AppendFrame(out, encOnion)
	return out
}
