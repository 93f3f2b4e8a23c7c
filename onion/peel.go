package onion

import (
	"crypto/rsa"
	"fmt"

	"github.com/JGiraldo29/giralnet/cryptobox"
	"github.com/JGiraldo29/giralnet/errs"
	"github.com/JGiraldo29/giralnet/wire"
)

// Peel recovers the AES session key from a HandshakeMessage frame and
// decrypts an onion frame with it, returning the OnionLayer it
// contains (§4.4 READ_HANDSHAKE / READ_ONION / DECRYPT). The caller
// supplies the raw frame payloads as read off the wire; onionFrame's
// last cryptobox.GCMNonceSize bytes are the GCM nonce (§4.2).
func Peel(priv *rsa.PrivateKey, handshakeFrame, onionFrame []byte) (wire.OnionLayer, error) {
	hs, err := wire.DecodeHandshakeMessage(handshakeFrame)
	if err != nil {
		return wire.OnionLayer{}, &errs.ProtocolError{Detail: "bad handshake", Cause: err}
	}

	keyBytes, err := cryptobox.RSAOpen(priv, hs.EncryptedAESKey)
	if err != nil {
		return wire.OnionLayer{}, &errs.ProtocolError{Detail: "bad handshake", Cause: err}
	}
	if len(keyBytes) != cryptobox.AESKeySize {
		return wire.OnionLayer{}, &errs.ProtocolError{Detail: fmt.Sprintf("bad handshake: wrong key length %d", len(keyBytes))}
	}
	var key [cryptobox.AESKeySize]byte
	copy(key[:], keyBytes)

	if len(onionFrame) < cryptobox.GCMNonceSize {
		return wire.OnionLayer{}, &errs.ProtocolError{Detail: "bad layer: frame too short for nonce"}
	}
	split := len(onionFrame) - cryptobox.GCMNonceSize
	ciphertext := onionFrame[:split]
	var nonce [cryptobox.GCMNonceSize]byte
	copy(nonce[:], onionFrame[split:])

	plaintext, err := cryptobox.AESOpen(key, nonce, ciphertext)
	if err != nil {
		return wire.OnionLayer{}, &errs.ProtocolError{Detail: "bad layer", Cause: err}
	}

	layer, err := wire.DecodeOnionLayer(plaintext)
	if err != nil {
		return wire.OnionLayer{}, &errs.ProtocolError{Detail: "bad layer", Cause: err}
	}
	return layer, nil
}

// SplitInnerFrames parses the "inner" blob produced by Build's Relay
// step (§4.3 step 2): a length-prefixed HandshakeMessage followed by a
// length-prefixed encrypted onion blob, both already framed for the
// next hop to read directly off a byte slice rather than a socket.
func SplitInnerFrames(inner []byte) (handshakeFrame, onionFrame []byte, err error) {
	handshakeFrame, rest, err := wire.SplitFrame(inner)
	if err != nil {
		return nil, nil, fmt.Errorf("split inner frames: %w", err)
	}
	onionFrame, rest, err = wire.SplitFrame(rest)
	if err != nil {
		return nil, nil, fmt.Errorf("split inner frames: %w", err)
	}
	if len(rest) != 0 {
		return nil, nil, fmt.Errorf("split inner frames: %d trailing bytes", len(rest))
	}
	return handshakeFrame, onionFrame, nil
}
