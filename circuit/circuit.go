// Package circuit implements the proxy-side view of an established
// circuit (§4.5): a persistent connection to hop 0 carrying
// CircuitMessages for every open stream, demultiplexed by stream ID.
package circuit

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/JGiraldo29/giralnet/descriptor"
	"github.com/JGiraldo29/giralnet/errs"
	"github.com/JGiraldo29/giralnet/onion"
	"github.com/JGiraldo29/giralnet/wire"
)

// streamBufSize is the capacity of each per-stream inbound channel,
// bounding how far a slow stream reader can fall behind (§4.5).
const streamBufSize = 128

// Circuit is a single open path through three relays, dialed to hop 0.
// One dispatch goroutine is the sole mutator of the stream map — both
// inbound EndStream and locally-initiated EndStream (via endReq) close
// a stream's channel only from that goroutine, so a close can never
// race an in-flight StreamData delivery for the same id. Writes to the
// connection are serialized under wmu.
type Circuit struct {
	conn   net.Conn
	logger *slog.Logger

	wmu sync.Mutex

	mu      sync.Mutex
	streams map[uint32]chan []byte
	closed  bool

	endReq chan uint32
	done   chan struct{}

	nextID atomic.Uint32
}

// Dial selects nothing itself — callers pass an already-chosen ordered
// hop list (entry, middle, exit) — builds the nested onion addressed
// to hops[0], and opens the circuit (§4.3 step 3, §4.4 ACCEPT).
func Dial(hops []onion.Hop, logger *slog.Logger) (*Circuit, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(hops) == 0 {
		return nil, &errs.CircuitError{Detail: "no hops given"}
	}

	entry, err := onion.Build(hops)
	if err != nil {
		return nil, &errs.CircuitError{Detail: "build onion", Cause: err}
	}

	conn, err := net.Dial("tcp", hops[0].Address)
	if err != nil {
		return nil, &errs.CircuitError{Detail: fmt.Sprintf("dial entry hop %s", hops[0].Address), Cause: err}
	}

	if err := wire.WriteFrame(conn, entry.Handshake); err != nil {
		conn.Close()
		return nil, &errs.CircuitError{Detail: "send handshake", Cause: err}
	}
	if err := wire.WriteFrame(conn, entry.Onion); err != nil {
		conn.Close()
		return nil, &errs.CircuitError{Detail: "send onion", Cause: err}
	}

	c := &Circuit{
		conn:    conn,
		logger:  logger,
		streams: make(map[uint32]chan []byte),
		endReq:  make(chan uint32),
		done:    make(chan struct{}),
	}
	c.nextID.Store(1)
	go c.readLoop()
	return c, nil
}

// NodesFromPath converts a selected path of descriptor.NodeInfo into
// the ordered onion.Hop list Dial expects.
func NodesFromPath(path []descriptor.NodeInfo) []onion.Hop {
	hops := make([]onion.Hop, len(path))
	for i, node := range path {
		hops[i] = onion.Hop{Address: node.Address, PublicKey: node.PublicKey}
	}
	return hops
}

// readLoop runs a small frame-reading goroutine feeding inbound, then
// dispatches from inbound and endReq one at a time. It is the circuit's
// single dispatch goroutine: the only one that ever deletes from
// streams or closes a stream's channel, whether the close was
// requested by the wire (MsgEndStream) or locally (EndStream). Because
// both paths funnel through here, dispatch's send below can never race
// a concurrent close of the same channel.
func (c *Circuit) readLoop() {
	inbound := make(chan wire.CircuitMessage)
	readErr := make(chan error, 1)
	go func() {
		for {
			frame, err := wire.ReadFrame(c.conn)
			if err != nil {
				readErr <- err
				return
			}
			msg, err := wire.DecodeCircuitMessage(frame)
			if err != nil {
				readErr <- err
				return
			}
			inbound <- msg
		}
	}()

	for {
		select {
		case msg := <-inbound:
			c.dispatch(msg)
		case id := <-c.endReq:
			c.closeStream(id)
		case err := <-readErr:
			c.logger.Debug("circuit read failed, tearing down", "error", err)
			c.teardown()
			return
		}
	}
}

// dispatch applies one inbound CircuitMessage.
func (c *Circuit) dispatch(msg wire.CircuitMessage) {
	switch msg.Kind {
	case wire.MsgStreamData:
		c.mu.Lock()
		dataCh, ok := c.streams[msg.ID]
		c.mu.Unlock()
		if ok {
			dataCh <- msg.Data
		}
	case wire.MsgEndStream:
		c.closeStream(msg.ID)
	}
}

// closeStream deletes and closes id's channel, if still present. Only
// readLoop calls this.
func (c *Circuit) closeStream(id uint32) {
	c.mu.Lock()
	dataCh, ok := c.streams[id]
	if ok {
		delete(c.streams, id)
	}
	c.mu.Unlock()
	if ok {
		close(dataCh)
	}
}

// teardown closes every still-open stream channel and the underlying
// connection, run once the circuit's connection has failed.
func (c *Circuit) teardown() {
	c.mu.Lock()
	c.closed = true
	remaining := c.streams
	c.streams = nil
	c.mu.Unlock()

	for _, dataCh := range remaining {
		close(dataCh)
	}
	c.conn.Close()
	close(c.done)
}

// OpenStream allocates a fresh stream ID, registers its inbound
// channel, and sends BeginStream for destination. The returned channel
// receives StreamData payloads and is closed when EndStream arrives or
// the circuit tears down.
func (c *Circuit) OpenStream(destination wire.SockAddr) (id uint32, dataCh chan []byte, err error) {
	id = c.nextID.Add(1) - 1

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, nil, &errs.CircuitError{Detail: "circuit closed"}
	}
	dataCh = make(chan []byte, streamBufSize)
	c.streams[id] = dataCh
	c.mu.Unlock()

	if err := c.sendMessage(wire.CircuitMessage{Kind: wire.MsgBeginStream, ID: id, Destination: destination}); err != nil {
		c.mu.Lock()
		delete(c.streams, id)
		c.mu.Unlock()
		return 0, nil, err
	}
	return id, dataCh, nil
}

// SendData sends StreamData for an open stream.
func (c *Circuit) SendData(id uint32, data []byte) error {
	return c.sendMessage(wire.CircuitMessage{Kind: wire.MsgStreamData, ID: id, Data: data})
}

// EndStream asks readLoop to drop the local bookkeeping for id, then
// sends EndStream on the wire. The request goes through endReq rather
// than closing the channel here directly, so this can never race
// readLoop's dispatch of an in-flight StreamData for the same id.
func (c *Circuit) EndStream(id uint32) error {
	select {
	case c.endReq <- id:
	case <-c.done:
	}
	return c.sendMessage(wire.CircuitMessage{Kind: wire.MsgEndStream, ID: id})
}

func (c *Circuit) sendMessage(msg wire.CircuitMessage) error {
	encoded, err := msg.Encode()
	if err != nil {
		return &errs.CircuitError{Detail: "encode circuit message", Cause: err}
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := wire.WriteFrame(c.conn, encoded); err != nil {
		return &errs.CircuitError{Detail: "write circuit message", Cause: err}
	}
	return nil
}

// Close tears down the circuit's underlying connection.
func (c *Circuit) Close() error {
	return c.conn.Close()
}
