// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx

import (
	"fmt"

	"code.hybscloud.com/iox"
)

// EngineConn is the blocking-shaped duplex byte channel a Stream hands to
// its engine. Reads and writes perform one poll against the owning
// Stream's transport and report iox.ErrWouldBlock instead of blocking.
//
// Engines must treat a would-block result like any blocking I/O layer
// treats EAGAIN: abandon the current step, preserve internal buffering,
// and surface a want-read/want-write condition to their caller.
type EngineConn interface {
	iox.ReadWriter

	// Flush pushes engine output staged in the transport towards the peer.
	Flush() error

	// Writev writes the buffers in order in a single poll.
	// It returns the total byte count consumed.
	Writev(bufs [][]byte) (int, error)
}

// Engine is the blocking-style TLS engine contract consumed by Stream.
//
// The handshake primitives (Connect, Accept, Handshake) and RawRead and
// Shutdown report failures as *Error so the caller can classify them;
// Read, Write, Flush and Writev follow plain io conventions, with
// would-block surfacing as (wrapped) iox.ErrWouldBlock either way.
//
// Every primitive must be restartable after a would-block result: the
// engine's own buffering, not the caller, preserves any transport bytes
// already consumed by the abandoned attempt.
type Engine interface {
	// Connect runs the client side of the handshake.
	Connect() error

	// Accept runs the server side of the handshake.
	Accept() error

	// Handshake runs the handshake in the engine's configured role.
	Handshake() error

	// Read reads decrypted application data into p. At end of session it
	// follows io.Reader conventions and returns (0, io.EOF); this covers
	// both a received close notification and a bare transport end.
	Read(p []byte) (int, error)

	// Write encrypts and stages application data from p.
	Write(p []byte) (int, error)

	// Flush pushes staged records towards the transport.
	Flush() error

	// Writev writes the buffers in order, returning total bytes consumed.
	Writev(bufs [][]byte) (int, error)

	// RawRead is Read with the engine's structured error surface: end of
	// session conditions arrive as *Error (CodeZeroReturn, CodeSyscall)
	// instead of being folded into io.EOF. The shutdown drain depends on
	// this distinction.
	RawRead(p []byte) (int, error)

	// Shutdown sends the close notification if not yet sent and reports
	// whether the peer's close notification has been observed.
	Shutdown() (ShutdownResult, error)
}

// EarlyDataEngine is implemented by engines that support exchanging
// application data before the handshake completes.
type EarlyDataEngine interface {
	// ReadEarlyData reads early application data into p. (0, nil) means
	// the early-data phase is over.
	ReadEarlyData(p []byte) (int, error)

	// WriteEarlyData stages early application data from p.
	WriteEarlyData(p []byte) (int, error)
}

// EngineFactory builds an engine bound to the duplex channel a Stream
// provides. Identity and certificate material live behind the factory;
// tlsx treats them as opaque.
type EngineFactory interface {
	NewEngine(conn EngineConn) (Engine, error)
}

// EngineFactoryFunc adapts a function to the EngineFactory interface.
type EngineFactoryFunc func(conn EngineConn) (Engine, error)

func (f EngineFactoryFunc) NewEngine(conn EngineConn) (Engine, error) { return f(conn) }

// ShutdownResult reports how far the close-notification exchange has
// progressed after a successful Engine.Shutdown call.
type ShutdownResult uint8

const (
	// ShutdownSent: our close notification is out, the peer's has not
	// been observed yet.
	ShutdownSent ShutdownResult = iota

	// ShutdownReceived: close notifications have gone both ways.
	ShutdownReceived
)

func (r ShutdownResult) String() string {
	switch r {
	case ShutdownSent:
		return "Sent"
	case ShutdownReceived:
		return "Received"
	default:
		return fmt.Sprintf("ShutdownResult(%d)", uint8(r))
	}
}

// Code classifies an engine failure.
type Code uint8

const (
	// CodeWantRead: the engine needs more transport input to proceed.
	CodeWantRead Code = iota + 1

	// CodeWantWrite: the engine has output it could not push to the
	// transport.
	CodeWantWrite

	// CodeZeroReturn: the peer ended the session cleanly.
	CodeZeroReturn

	// CodeSyscall: a transport-level failure. When the attached IO error
	// is nil, the peer closed the raw connection without a close
	// notification.
	CodeSyscall

	// CodeProtocol: the engine rejected the peer's behavior.
	CodeProtocol
)

func (c Code) String() string {
	switch c {
	case CodeWantRead:
		return "WantRead"
	case CodeWantWrite:
		return "WantWrite"
	case CodeZeroReturn:
		return "ZeroReturn"
	case CodeSyscall:
		return "Syscall"
	case CodeProtocol:
		return "Protocol"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// Error is the structured failure an engine reports from its
// handshake, raw-read and shutdown primitives.
type Error struct {
	// Code is the engine's classification of the failure.
	Code Code

	// IO is the low-level I/O error attached to the failure, if any.
	IO error

	// Reason is optional human-readable detail.
	Reason string
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.IO != nil:
		return fmt.Sprintf("tlsx: %s: %s: %v", e.Code, e.Reason, e.IO)
	case e.Reason != "":
		return fmt.Sprintf("tlsx: %s: %s", e.Code, e.Reason)
	case e.IO != nil:
		return fmt.Sprintf("tlsx: %s: %v", e.Code, e.IO)
	default:
		return fmt.Sprintf("tlsx: %s", e.Code)
	}
}

// Unwrap exposes the attached low-level I/O error to errors.Is/As chains.
func (e *Error) Unwrap() error { return e.IO }

// Is reports want-read and want-write failures as iox.ErrWouldBlock so
// the iox predicates (IsWouldBlock, IsNonFailure, Classify) treat engine
// suspensions exactly like transport suspensions.
func (e *Error) Is(target error) bool {
	return target == iox.ErrWouldBlock && (e.Code == CodeWantRead || e.Code == CodeWantWrite)
}

// IOError returns the attached low-level I/O error, or nil.
func (e *Error) IOError() error { return e.IO }
