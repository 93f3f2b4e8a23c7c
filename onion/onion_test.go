package onion

import (
	"bytes"
	"crypto/rsa"
	"testing"

	"github.com/JGiraldo29/giralnet/cryptobox"
	"github.com/JGiraldo29/giralnet/wire"
)

// TestOnionRoundTrip exercises the §8 "Onion round-trip" property: the
// nested construction peeled sequentially by three relays yields Exit
// at the innermost layer, and each relay observes exactly one
// Relay{next_hop, payload} naming the next hop.
func TestOnionRoundTrip(t *testing.T) {
	privs := make([]*rsa.PrivateKey, 3)
	hops := make([]Hop, 3)
	addrs := []string{"127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003"}
	for i := range hops {
		priv, err := cryptobox.GenerateRSAKeyPair()
		if err != nil {
			t.Fatalf("GenerateRSAKeyPair: %v", err)
		}
		privs[i] = priv
		hops[i] = Hop{Address: addrs[i], PublicKey: &priv.PublicKey}
	}

	frame, err := Build(hops)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Hop 0: peel directly off the entry frame.
	layer0, err := Peel(privs[0], frame.Handshake, frame.Onion)
	if err != nil {
		t.Fatalf("hop0 Peel: %v", err)
	}
	if layer0.Kind != wire.OnionRelay {
		t.Fatalf("hop0: expected Relay, got %v", layer0.Kind)
	}
	if layer0.NextHop != addrs[1] {
		t.Fatalf("hop0: next hop = %q, want %q", layer0.NextHop, addrs[1])
	}

	// Hop 1: the inner payload names hop 1's next hop and carries its
	// own handshake+onion frames.
	hsFrame1, onionFrame1, err := SplitInnerFrames(layer0.Payload)
	if err != nil {
		t.Fatalf("hop0 split: %v", err)
	}
	layer1, err := Peel(privs[1], hsFrame1, onionFrame1)
	if err != nil {
		t.Fatalf("hop1 Peel: %v", err)
	}
	if layer1.Kind != wire.OnionRelay {
		t.Fatalf("hop1: expected Relay, got %v", layer1.Kind)
	}
	if layer1.NextHop != addrs[2] {
		t.Fatalf("hop1: next hop = %q, want %q", layer1.NextHop, addrs[2])
	}

	// Hop 2 (exit): innermost layer is Exit.
	hsFrame2, onionFrame2, err := SplitInnerFrames(layer1.Payload)
	if err != nil {
		t.Fatalf("hop1 split: %v", err)
	}
	layer2, err := Peel(privs[2], hsFrame2, onionFrame2)
	if err != nil {
		t.Fatalf("hop2 Peel: %v", err)
	}
	if layer2.Kind != wire.OnionExit {
		t.Fatalf("hop2: expected Exit, got %v", layer2.Kind)
	}
}

func TestPeelWrongKeyFails(t *testing.T) {
	priv0, _ := cryptobox.GenerateRSAKeyPair()
	wrongPriv, _ := cryptobox.GenerateRSAKeyPair()
	hops := []Hop{
		{Address: "127.0.0.1:9001", PublicKey: &priv0.PublicKey},
	}
	frame, err := Build(hops)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := Peel(wrongPriv, frame.Handshake, frame.Onion); err == nil {
		t.Fatalf("expected Peel to fail with the wrong private key")
	}
}

// TestPeelDetectsBitFlip exercises the §8 "AEAD integrity" property: a
// single-bit flip in the onion frame must cause decryption to fail.
func TestPeelDetectsBitFlip(t *testing.T) {
	priv0, _ := cryptobox.GenerateRSAKeyPair()
	hops := []Hop{
		{Address: "127.0.0.1:9001", PublicKey: &priv0.PublicKey},
	}
	frame, err := Build(hops)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	corrupted := bytes.Clone(frame.Onion)
	corrupted[0] ^= 0x01

	if _, err := Peel(priv0, frame.Handshake, corrupted); err == nil {
		t.Fatalf("expected Peel to fail on corrupted onion frame")
	}
}

func TestBuildRejectsEmptyHopList(t *testing.T) {
	if _, err := Build(nil); err == nil {
		t.Fatalf("expected error building onion with no hops")
	}
}
