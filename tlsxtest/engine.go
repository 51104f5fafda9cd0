// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsxtest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/tlsx"
)

// LoopbackEngine is a deliberately small blocking-style engine
// implementing the full tlsx.Engine contract over a framed cleartext
// protocol. It exists so the bridging layer can be exercised end to end
// without a real TLS stack: records span multiple frames, handshakes take
// multiple round trips, close notifications are explicit, and every
// failure class of the engine error taxonomy is reachable.
//
// Frame format: 1-byte type, 4-byte big-endian payload length, payload of
// at most MaxRecord bytes.
//
// Like any engine driven through a tlsx bridge, it must survive
// would-block at any byte position: partially read frames stay staged in
// the record reader, partially written frames stay staged in the outbound
// buffer, and every primitive can be re-invoked to continue where the
// abandoned attempt stopped.
type LoopbackEngine struct {
	conn   tlsx.EngineConn
	client bool
	id     Identity

	helloSent   bool
	helloRead   bool
	done        bool
	peer        string
	earlyOver   bool
	closeQueued bool
	closeRecv   bool

	wbuf []byte
	rr   recordReader
}

// MaxRecord is the largest payload carried by a single frame. Payloads
// beyond it span multiple frames.
const MaxRecord = 16384

const (
	recHello byte = 1 + iota
	recData
	recEarly
	recClose
)

const headerLen = 5

// Identity is the loopback stand-in for certificate and key material: a
// bare name exchanged during the hello round trip.
type Identity struct {
	Name string
}

// Client returns an engine factory for the client side of the loopback
// protocol.
func Client(id Identity) tlsx.EngineFactory {
	return tlsx.EngineFactoryFunc(func(conn tlsx.EngineConn) (tlsx.Engine, error) {
		return &LoopbackEngine{conn: conn, client: true, id: id}, nil
	})
}

// Server returns an engine factory for the server side of the loopback
// protocol.
func Server(id Identity) tlsx.EngineFactory {
	return tlsx.EngineFactoryFunc(func(conn tlsx.EngineConn) (tlsx.Engine, error) {
		return &LoopbackEngine{conn: conn, client: false, id: id}, nil
	})
}

// PeerName returns the identity name received in the peer's hello, empty
// before the handshake completes.
func (e *LoopbackEngine) PeerName() string { return e.peer }

// HandshakeDone reports whether the hello exchange has completed.
func (e *LoopbackEngine) HandshakeDone() bool { return e.done }

// internal read-path sentinels, mapped to the two error surfaces by Read
// and RawRead.
var (
	errPeerClosed   = errors.New("tlsxtest: close notification received")
	errBareEOF      = errors.New("tlsxtest: transport ended at record boundary")
	errMidRecordEOF = errors.New("tlsxtest: transport ended mid record")
)

func header(typ byte, n int) [headerLen]byte {
	var hdr [headerLen]byte
	hdr[0] = typ
	binary.BigEndian.PutUint32(hdr[1:], uint32(n))
	return hdr
}

// stageRecord frames one record. When nothing is pending it attempts a
// vectored write immediately; whatever the transport does not take stays
// staged in the outbound buffer for later flushes. Staged bytes are
// committed: the record will reach the wire, so staging never needs to be
// unwound on retry.
func (e *LoopbackEngine) stageRecord(typ byte, payload []byte) error {
	hdr := header(typ, len(payload))
	if len(e.wbuf) > 0 {
		e.wbuf = append(e.wbuf, hdr[:]...)
		e.wbuf = append(e.wbuf, payload...)
		return nil
	}
	n, err := e.conn.Writev([][]byte{hdr[:], payload})
	if rest := headerLen + len(payload) - n; rest > 0 {
		if n < headerLen {
			e.wbuf = append(e.wbuf, hdr[n:]...)
			e.wbuf = append(e.wbuf, payload...)
		} else {
			e.wbuf = append(e.wbuf, payload[n-headerLen:]...)
		}
	}
	if err != nil && !iox.IsWouldBlock(err) {
		return err
	}
	return nil
}

// flushOut pushes staged outbound bytes. A would-block result from the
// transport propagates with the remaining bytes still staged.
func (e *LoopbackEngine) flushOut() error {
	for len(e.wbuf) > 0 {
		n, err := e.conn.Write(e.wbuf)
		e.wbuf = e.wbuf[:copy(e.wbuf, e.wbuf[n:])]
		if err != nil {
			return err
		}
	}
	return nil
}

// Connect runs the client hello exchange.
func (e *LoopbackEngine) Connect() error {
	if e.done {
		return nil
	}
	if !e.client {
		return &tlsx.Error{Code: tlsx.CodeProtocol, Reason: "connect on server engine"}
	}
	return e.handshake()
}

// Accept runs the server hello exchange.
func (e *LoopbackEngine) Accept() error {
	if e.done {
		return nil
	}
	if e.client {
		return &tlsx.Error{Code: tlsx.CodeProtocol, Reason: "accept on client engine"}
	}
	return e.handshake()
}

// Handshake runs the hello exchange in the engine's configured role.
func (e *LoopbackEngine) Handshake() error {
	if e.done {
		return nil
	}
	return e.handshake()
}

// handshake: the client speaks first; each side sends one hello carrying
// its identity name and reads the peer's. Early-data records arriving
// before the peer hello are left staged for ReadEarlyData.
func (e *LoopbackEngine) handshake() error {
	if e.client {
		if err := e.sendHello(); err != nil {
			return err
		}
		return e.readHello()
	}
	if err := e.readHello(); err != nil {
		return err
	}
	return e.sendHello()
}

func (e *LoopbackEngine) sendHello() error {
	if !e.helloSent {
		if err := e.stageRecord(recHello, []byte(e.id.Name)); err != nil {
			return &tlsx.Error{Code: tlsx.CodeSyscall, IO: err, Reason: "send hello"}
		}
		e.helloSent = true
	}
	if err := e.flushOut(); err != nil {
		return wantWrite(err)
	}
	if err := e.conn.Flush(); err != nil {
		return wantWrite(err)
	}
	e.maybeDone()
	return nil
}

func (e *LoopbackEngine) readHello() error {
	if e.helloRead {
		return nil
	}
	if err := e.rr.fill(e.conn); err != nil {
		return rawReadError(err)
	}
	if e.rr.typ != recHello {
		return &tlsx.Error{Code: tlsx.CodeProtocol, Reason: fmt.Sprintf("expected hello, got record type %d", e.rr.typ)}
	}
	e.peer = string(e.rr.rest())
	e.rr.consumeAll()
	e.helloRead = true
	e.maybeDone()
	return nil
}

func (e *LoopbackEngine) maybeDone() {
	if e.helloSent && e.helloRead && len(e.wbuf) == 0 {
		e.done = true
	}
}

// Read reads application data with io.Reader conventions: both a close
// notification and a bare transport end at a record boundary surface as
// io.EOF.
func (e *LoopbackEngine) Read(p []byte) (int, error) {
	if !e.done {
		if err := e.Handshake(); err != nil {
			return 0, err
		}
	}
	n, err := e.readPayload(p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, errPeerClosed), errors.Is(err, errBareEOF):
		return 0, io.EOF
	case errors.Is(err, errMidRecordEOF):
		return 0, io.ErrUnexpectedEOF
	default:
		return 0, err
	}
}

// RawRead is Read with the engine's structured error surface.
func (e *LoopbackEngine) RawRead(p []byte) (int, error) {
	if !e.done {
		if err := e.Handshake(); err != nil {
			return 0, err
		}
	}
	n, err := e.readPayload(p)
	if err == nil {
		return n, nil
	}
	return 0, rawReadError(err)
}

// readPayload delivers bytes from the current data record, filling the
// next record when none is staged.
func (e *LoopbackEngine) readPayload(p []byte) (int, error) {
	if e.closeRecv {
		return 0, errPeerClosed
	}
	for {
		if err := e.rr.fill(e.conn); err != nil {
			return 0, err
		}
		switch e.rr.typ {
		case recData, recEarly:
			if len(e.rr.rest()) == 0 && len(p) > 0 {
				// empty record; skip to the next one
				e.rr.consumeAll()
				continue
			}
			return e.rr.consume(p), nil
		case recClose:
			e.closeRecv = true
			e.rr.consumeAll()
			return 0, errPeerClosed
		default:
			e.rr.consumeAll()
			return 0, &tlsx.Error{Code: tlsx.CodeProtocol, Reason: fmt.Sprintf("unexpected record type %d", e.rr.typ)}
		}
	}
}

// Write frames p into data records and stages them. Backpressure
// surfaces when a previous call's staging is still unflushed: the write
// reports would-block until the pending bytes drain.
func (e *LoopbackEngine) Write(p []byte) (int, error) {
	if !e.done {
		if err := e.Handshake(); err != nil {
			return 0, err
		}
	}
	if err := e.flushOut(); err != nil {
		return 0, err
	}
	for off := 0; off < len(p); off += MaxRecord {
		end := off + MaxRecord
		if end > len(p) {
			end = len(p)
		}
		if err := e.stageRecord(recData, p[off:end]); err != nil {
			return 0, err
		}
	}
	if len(p) == 0 {
		if err := e.stageRecord(recData, nil); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Writev writes the buffers in order. Buffers are framed individually;
// the count reports total payload bytes accepted.
func (e *LoopbackEngine) Writev(bufs [][]byte) (int, error) {
	total := 0
	for _, b := range bufs {
		n, err := e.Write(b)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Flush drains staged records into the transport and flushes it.
func (e *LoopbackEngine) Flush() error {
	if err := e.flushOut(); err != nil {
		return err
	}
	return e.conn.Flush()
}

// WriteEarlyData stages early application data ahead of the handshake
// completing. The client hello is staged first if it has not gone out, so
// early records always trail it on the wire.
func (e *LoopbackEngine) WriteEarlyData(p []byte) (int, error) {
	if !e.client {
		return 0, &tlsx.Error{Code: tlsx.CodeProtocol, Reason: "write early data on server engine"}
	}
	if e.done {
		return 0, &tlsx.Error{Code: tlsx.CodeProtocol, Reason: "early data after handshake"}
	}
	if !e.helloSent {
		if err := e.stageRecord(recHello, []byte(e.id.Name)); err != nil {
			return 0, &tlsx.Error{Code: tlsx.CodeSyscall, IO: err, Reason: "send hello"}
		}
		e.helloSent = true
	}
	if err := e.flushOut(); err != nil {
		return 0, wantWrite(err)
	}
	for off := 0; off < len(p); off += MaxRecord {
		end := off + MaxRecord
		if end > len(p) {
			end = len(p)
		}
		if err := e.stageRecord(recEarly, p[off:end]); err != nil {
			return 0, &tlsx.Error{Code: tlsx.CodeSyscall, IO: err, Reason: "send early data"}
		}
	}
	return len(p), nil
}

// ReadEarlyData reads early application data sent ahead of handshake
// completion. (0, nil) reports the end of the early-data phase; the
// record that ended it stays staged for regular reads.
func (e *LoopbackEngine) ReadEarlyData(p []byte) (int, error) {
	if e.client {
		return 0, &tlsx.Error{Code: tlsx.CodeProtocol, Reason: "read early data on client engine"}
	}
	if e.earlyOver {
		return 0, nil
	}
	if !e.done {
		if err := e.Handshake(); err != nil {
			return 0, err
		}
	}
	for {
		if err := e.rr.fill(e.conn); err != nil {
			return 0, rawReadError(err)
		}
		if e.rr.typ != recEarly {
			e.earlyOver = true
			return 0, nil
		}
		if len(e.rr.rest()) == 0 {
			e.rr.consumeAll()
			continue
		}
		return e.rr.consume(p), nil
	}
}

// Shutdown queues the close notification on first use, pushes staged
// output, and reports whether the peer's close notification has been
// observed. Safe to re-invoke; the engine-level flags make repeats
// idempotent.
func (e *LoopbackEngine) Shutdown() (tlsx.ShutdownResult, error) {
	if !e.done {
		return 0, &tlsx.Error{Code: tlsx.CodeProtocol, Reason: "shutdown before handshake"}
	}
	if !e.closeQueued {
		if err := e.stageRecord(recClose, nil); err != nil {
			return 0, &tlsx.Error{Code: tlsx.CodeSyscall, IO: err, Reason: "send close notification"}
		}
		e.closeQueued = true
	}
	if err := e.flushOut(); err != nil {
		return 0, wantWrite(err)
	}
	if err := e.conn.Flush(); err != nil {
		return 0, wantWrite(err)
	}
	if e.closeRecv {
		return tlsx.ShutdownReceived, nil
	}
	return tlsx.ShutdownSent, nil
}

// wantWrite wraps a transport result from the output path: would-block
// becomes the engine's want-write suspension, anything else a transport
// failure with the I/O error attached.
func wantWrite(err error) error {
	if iox.IsWouldBlock(err) {
		return &tlsx.Error{Code: tlsx.CodeWantWrite, IO: err}
	}
	return &tlsx.Error{Code: tlsx.CodeSyscall, IO: err}
}

// rawReadError maps read-path conditions onto the engine error taxonomy.
// A bare transport end at a record boundary carries no attached I/O
// error; that distinction is what shutdown draining keys on.
func rawReadError(err error) error {
	var e *tlsx.Error
	switch {
	case errors.As(err, &e):
		return err
	case iox.IsWouldBlock(err):
		return &tlsx.Error{Code: tlsx.CodeWantRead, IO: err}
	case errors.Is(err, errPeerClosed):
		return &tlsx.Error{Code: tlsx.CodeZeroReturn}
	case errors.Is(err, errBareEOF):
		return &tlsx.Error{Code: tlsx.CodeSyscall}
	case errors.Is(err, errMidRecordEOF):
		return &tlsx.Error{Code: tlsx.CodeSyscall, IO: io.ErrUnexpectedEOF}
	default:
		return &tlsx.Error{Code: tlsx.CodeSyscall, IO: err}
	}
}

// recordReader reassembles one frame at a time, preserving partial
// header and payload progress across would-block results.
type recordReader struct {
	hdr  [headerLen]byte
	hdrN int
	typ  byte
	pay  []byte
	payN int
	off  int
	have bool
}

// fill ensures a complete record is staged. On would-block the partial
// state is kept and the error propagates untouched.
func (r *recordReader) fill(conn io.Reader) error {
	if r.have {
		return nil
	}
	for r.hdrN < headerLen {
		n, err := conn.Read(r.hdr[r.hdrN:])
		r.hdrN += n
		if n > 0 {
			// progress; a trailing error will resurface on the next read
			continue
		}
		if err == nil {
			err = iox.ErrWouldBlock
		}
		if errors.Is(err, io.EOF) {
			if r.hdrN == 0 {
				return errBareEOF
			}
			return errMidRecordEOF
		}
		return err
	}
	size := int(binary.BigEndian.Uint32(r.hdr[1:]))
	if size > MaxRecord {
		return &tlsx.Error{Code: tlsx.CodeProtocol, Reason: fmt.Sprintf("oversized record: %d bytes", size)}
	}
	if cap(r.pay) < size {
		r.pay = make([]byte, size)
	}
	r.pay = r.pay[:size]
	for r.payN < size {
		n, err := conn.Read(r.pay[r.payN:])
		r.payN += n
		if n > 0 {
			continue
		}
		if err == nil {
			err = iox.ErrWouldBlock
		}
		if errors.Is(err, io.EOF) {
			return errMidRecordEOF
		}
		return err
	}
	r.typ = r.hdr[0]
	r.off = 0
	r.have = true
	return nil
}

// rest returns the unconsumed payload of the staged record.
func (r *recordReader) rest() []byte { return r.pay[r.off:] }

// consume copies staged payload into p, releasing the record once fully
// consumed.
func (r *recordReader) consume(p []byte) int {
	n := copy(p, r.pay[r.off:])
	r.off += n
	if r.off == len(r.pay) {
		r.release()
	}
	return n
}

func (r *recordReader) consumeAll() { r.release() }

func (r *recordReader) release() {
	r.hdrN = 0
	r.payN = 0
	r.off = 0
	r.have = false
}
