package wire

import (
	"fmt"
	"net"

	"github.com/JGiraldo29/giralnet/errs"
)

// SockAddr is the wire representation of a socket address: an
// address-family tag, the address bytes, and a port (§4.2). Only IPv4
// is produced by this implementation (no IPv6 literal handling, §1
// Non-goals), but the family tag leaves room for it.
type SockAddr struct {
	IP   net.IP
	Port uint16
}

const (
	familyIPv4 = 1
	familyIPv6 = 2
)

func (a SockAddr) encode(e *encoder) error {
	ip4 := a.IP.To4()
	if ip4 != nil {
		e.putByte(familyIPv4)
		e.putBytes(ip4)
		e.putUint16(a.Port)
		return nil
	}
	ip16 := a.IP.To16()
	if ip16 != nil {
		e.putByte(familyIPv6)
		e.putBytes(ip16)
		e.putUint16(a.Port)
		return nil
	}
	return fmt.Errorf("sockaddr: invalid IP %v", a.IP)
}

func decodeSockAddr(d *decoder) (SockAddr, error) {
	family, err := d.getByte()
	if err != nil {
		return SockAddr{}, err
	}
	addrBytes, err := d.getBytes()
	if err != nil {
		return SockAddr{}, err
	}
	port, err := d.getUint16()
	if err != nil {
		return SockAddr{}, err
	}
	switch family {
	case familyIPv4, familyIPv6:
		return SockAddr{IP: net.IP(addrBytes), Port: port}, nil
	default:
		return SockAddr{}, &errs.ProtocolError{Detail: fmt.Sprintf("unknown address family %d", family)}
	}
}

func (a SockAddr) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprintf("%d", a.Port))
}

// HandshakeMessage carries the AES session key, sealed to a hop's RSA
// public key, for exactly one hop (§3).
type HandshakeMessage struct {
	EncryptedAESKey []byte
}

func (h HandshakeMessage) Encode() []byte {
	e := &encoder{}
	e.putBytes(h.EncryptedAESKey)
	return e.bytes()
}

func DecodeHandshakeMessage(buf []byte) (HandshakeMessage, error) {
	d := newDecoder(buf)
	key, err := d.getBytes()
	if err != nil {
		return HandshakeMessage{}, fmt.Errorf("decode handshake: %w", err)
	}
	if err := d.requireExhausted(); err != nil {
		return HandshakeMessage{}, fmt.Errorf("decode handshake: %w", err)
	}
	return HandshakeMessage{EncryptedAESKey: key}, nil
}

// OnionLayerKind tags the two shapes of OnionLayer (§3).
type OnionLayerKind uint32

const (
	OnionRelay OnionLayerKind = 0
	OnionExit  OnionLayerKind = 1
)

// OnionLayer is the tagged variant peeled by each hop. Only NextHop and
// Payload are meaningful when Kind is OnionRelay.
type OnionLayer struct {
	Kind    OnionLayerKind
	NextHop string
	Payload []byte
}

func (o OnionLayer) Encode() []byte {
	e := &encoder{}
	e.putUint32(uint32(o.Kind))
	switch o.Kind {
	case OnionRelay:
		e.putString(o.NextHop)
		e.putBytes(o.Payload)
	case OnionExit:
		// no fields
	}
	return e.bytes()
}

func DecodeOnionLayer(buf []byte) (OnionLayer, error) {
	d := newDecoder(buf)
	tag, err := d.getUint32()
	if err != nil {
		return OnionLayer{}, fmt.Errorf("decode onion layer: %w", err)
	}
	switch OnionLayerKind(tag) {
	case OnionRelay:
		nextHop, err := d.getString()
		if err != nil {
			return OnionLayer{}, fmt.Errorf("decode onion layer: %w", err)
		}
		payload, err := d.getBytes()
		if err != nil {
			return OnionLayer{}, fmt.Errorf("decode onion layer: %w", err)
		}
		if err := d.requireExhausted(); err != nil {
			return OnionLayer{}, fmt.Errorf("decode onion layer: %w", err)
		}
		return OnionLayer{Kind: OnionRelay, NextHop: nextHop, Payload: payload}, nil
	case OnionExit:
		if err := d.requireExhausted(); err != nil {
			return OnionLayer{}, fmt.Errorf("decode onion layer: %w", err)
		}
		return OnionLayer{Kind: OnionExit}, nil
	default:
		return OnionLayer{}, &errs.ProtocolError{Detail: fmt.Sprintf("unknown onion layer tag %d", tag)}
	}
}

// CircuitMessageKind tags the three post-circuit message shapes (§3).
type CircuitMessageKind uint32

const (
	MsgBeginStream CircuitMessageKind = 0
	MsgStreamData  CircuitMessageKind = 1
	MsgEndStream   CircuitMessageKind = 2
)

// CircuitMessage is spoken end-to-end between Proxy and Exit once the
// circuit is established. Field relevance depends on Kind:
// BeginStream uses ID+Destination, StreamData uses ID+Data, EndStream
// uses only ID.
type CircuitMessage struct {
	Kind        CircuitMessageKind
	ID          uint32
	Destination SockAddr
	Data        []byte
}

func (m CircuitMessage) Encode() ([]byte, error) {
	e := &encoder{}
	e.putUint32(uint32(m.Kind))
	e.putUint32(m.ID)
	switch m.Kind {
	case MsgBeginStream:
		if err := m.Destination.encode(e); err != nil {
			return nil, fmt.Errorf("encode circuit message: %w", err)
		}
	case MsgStreamData:
		e.putBytes(m.Data)
	case MsgEndStream:
		// no further fields
	default:
		return nil, fmt.Errorf("encode circuit message: unknown kind %d", m.Kind)
	}
	return e.bytes(), nil
}

func DecodeCircuitMessage(buf []byte) (CircuitMessage, error) {
	d := newDecoder(buf)
	tag, err := d.getUint32()
	if err != nil {
		return CircuitMessage{}, fmt.Errorf("decode circuit message: %w", err)
	}
	id, err := d.getUint32()
	if err != nil {
		return CircuitMessage{}, fmt.Errorf("decode circuit message: %w", err)
	}
	switch CircuitMessageKind(tag) {
	case MsgBeginStream:
		dest, err := decodeSockAddr(d)
		if err != nil {
			return CircuitMessage{}, fmt.Errorf("decode circuit message: %w", err)
		}
		if err := d.requireExhausted(); err != nil {
			return CircuitMessage{}, fmt.Errorf("decode circuit message: %w", err)
		}
		return CircuitMessage{Kind: MsgBeginStream, ID: id, Destination: dest}, nil
	case MsgStreamData:
		data, err := d.getBytes()
		if err != nil {
			return CircuitMessage{}, fmt.Errorf("decode circuit message: %w", err)
		}
		if err := d.requireExhausted(); err != nil {
			return CircuitMessage{}, fmt.Errorf("decode circuit message: %w", err)
		}
		return CircuitMessage{Kind: MsgStreamData, ID: id, Data: data}, nil
	case MsgEndStream:
		if err := d.requireExhausted(); err != nil {
			return CircuitMessage{}, fmt.Errorf("decode circuit message: %w", err)
		}
		return CircuitMessage{Kind: MsgEndStream, ID: id}, nil
	default:
		return CircuitMessage{}, &errs.ProtocolError{Detail: fmt.Sprintf("unknown circuit message tag %d", tag)}
	}
}
