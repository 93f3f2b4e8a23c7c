package node

import (
	"net"
	"sync"

	"github.com/JGiraldo29/giralnet/wire"
)

// streamBufSize is the capacity of each per-stream channel (§4.5).
const streamBufSize = 128

// targetReadChunk is the read buffer size used when pumping bytes from
// a dialed target back up the circuit (§4.5).
const targetReadChunk = 4096

// runExit implements the exit multiplexer (§4.4/§4.5): a small
// frame-reading goroutine feeds decoded CircuitMessages to a dispatch
// loop, which is the sole owner of the active-stream map — it applies
// both inbound CircuitMessages and locally-reported stream endings
// (localEnd); one writer goroutine serializes outbound CircuitMessages
// onto conn; one target task per open stream dials out and pumps bytes
// in both directions.
func (n *Node) runExit(conn net.Conn) {
	defer conn.Close()

	upTx := make(chan wire.CircuitMessage, streamBufSize)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeFailed := false
		for msg := range upTx {
			if writeFailed {
				// conn is already dead: keep draining upTx instead of
				// returning, or a target task blocked sending into a
				// full buffer would never unblock and targets.Wait()
				// in runExit would hang forever.
				continue
			}
			encoded, err := msg.Encode()
			if err != nil {
				n.Logger.Debug("exit encode failed", "error", err)
				continue
			}
			if err := wire.WriteFrame(conn, encoded); err != nil {
				n.Logger.Debug("exit write failed, draining remaining sends", "error", err)
				writeFailed = true
			}
		}
	}()

	active := make(map[uint32]chan []byte)
	var targets sync.WaitGroup

	// localEnd lets a target task that finished on its own (its dial
	// failed, or the target connection closed) ask the dispatch loop to
	// drop active[id] and close downTx — the same cleanup an inbound
	// MsgEndStream does. Without this, a target that ends locally while
	// the proxy keeps streaming leaves downTx undrained: once its
	// buffer fills, both the dispatch loop (blocked sending into it)
	// and runTarget (blocked waiting for its writer to observe downTx
	// close) would hang forever.
	localEnd := make(chan uint32)
	done := make(chan struct{})

	inbound := make(chan wire.CircuitMessage)
	readErr := make(chan error, 1)
	go func() {
		for {
			frame, err := wire.ReadFrame(conn)
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

dispatchLoop:
	for {
		select {
		case msg := <-inbound:
			switch msg.Kind {
			case wire.MsgBeginStream:
				if _, exists := active[msg.ID]; exists {
					n.Logger.Debug("exit duplicate stream id, ignoring", "id", msg.ID)
					continue
				}
				downTx := make(chan []byte, streamBufSize)
				active[msg.ID] = downTx
				targets.Add(1)
				go func(id uint32, dest wire.SockAddr, downTx chan []byte) {
					defer targets.Done()
					n.runTarget(id, dest, downTx, upTx, localEnd, done)
				}(msg.ID, msg.Destination, downTx)
			case wire.MsgStreamData:
				if downTx, ok := active[msg.ID]; ok {
					downTx <- msg.Data
				}
			case wire.MsgEndStream:
				if downTx, ok := active[msg.ID]; ok {
					delete(active, msg.ID)
					close(downTx)
				}
			}
		case id := <-localEnd:
			if downTx, ok := active[id]; ok {
				delete(active, id)
				close(downTx)
			}
		case err := <-readErr:
			n.Logger.Debug("exit read failed, tearing down", "error", err)
			break dispatchLoop
		}
	}
	close(done)

	for id, downTx := range active {
		delete(active, id)
		close(downTx)
	}
	// Every target task must observe its downTx close (or finish on its
	// own) and return before upTx is closed, or a late send would panic.
	targets.Wait()
	close(upTx)
	<-writerDone
}

// runTarget dials destination, pumps downTx into it, and pumps its
// responses upstream as StreamData/EndStream messages. It tolerates
// downTx being closed out from under it (proxy-initiated EndStream),
// and when it ends on its own (dial failure, or the target connection
// closing), it reports itself via localEnd so the dispatch loop drops
// active[id] and closes downTx in turn. done is closed once the
// dispatch loop has already exited, so this never blocks forever
// trying to reach it during shutdown.
func (n *Node) runTarget(id uint32, destination wire.SockAddr, downTx chan []byte, upTx chan<- wire.CircuitMessage, localEnd chan<- uint32, done <-chan struct{}) {
	targetConn, err := net.Dial("tcp", destination.String())
	if err != nil {
		n.Logger.Debug("exit target dial failed", "id", id, "destination", destination.String(), "error", err)
		sendEndStream(upTx, id)
		reportLocalEnd(localEnd, done, id)
		drain(downTx)
		return
	}
	defer targetConn.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for data := range downTx {
			if _, err := targetConn.Write(data); err != nil {
				break
			}
		}
		targetConn.Close()
	}()

	buf := make([]byte, targetReadChunk)
	for {
		readN, readErr := targetConn.Read(buf)
		if readN > 0 {
			data := make([]byte, readN)
			copy(data, buf[:readN])
			upTx <- wire.CircuitMessage{Kind: wire.MsgStreamData, ID: id, Data: data}
		}
		if readErr != nil {
			break
		}
	}
	sendEndStream(upTx, id)
	targetConn.Close()
	// Ask the dispatch loop to close downTx so the writer goroutine
	// above observes the close and returns, even if the proxy never
	// sends its own EndStream for this id.
	reportLocalEnd(localEnd, done, id)
	<-writerDone
}

func sendEndStream(upTx chan<- wire.CircuitMessage, id uint32) {
	upTx <- wire.CircuitMessage{Kind: wire.MsgEndStream, ID: id}
}

// reportLocalEnd notifies the dispatch loop that a target task ended on
// its own, unless the dispatch loop has already exited.
func reportLocalEnd(localEnd chan<- uint32, done <-chan struct{}, id uint32) {
	select {
	case localEnd <- id:
	case <-done:
	}
}

// drain discards, in a background goroutine, any data queued on downTx
// for a stream whose target never connected, until downTx is closed.
func drain(downTx <-chan []byte) {
	go func() {
		for range downTx {
		}
	}()
}
