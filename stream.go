// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx

import (
	"context"

	"code.hybscloud.com/iox"
)

// Stream is an asynchronous TLS session over a poll-based transport.
//
// Every Poll* method performs one engine step: it installs ctx into the
// bridge, invokes the corresponding engine primitive exactly once,
// classifies the result, and clears the bridge slot on every exit path.
// A result matching iox.ErrWouldBlock means the step made no progress;
// retry the same call when the transport is ready again. The abandoned
// attempt loses no data: the engine's buffering keeps any transport bytes
// it already consumed.
//
// The awaitable counterparts (Connect, Read, Shutdown, ...) drive the
// poll form to completion, suspending between attempts.
//
// Dropping a Stream is always safe and releases the transport; graceful
// session close is Shutdown, not a destructor concern.
type Stream struct {
	engine Engine
	conn   *streamConn
}

// New builds a Stream from an engine factory and a transport. The factory
// receives the Stream's bridge as the engine's duplex channel; the
// transport is owned by the Stream from this point on.
func New(factory EngineFactory, t Transport) (*Stream, error) {
	conn := &streamConn{transport: t}
	engine, err := factory.NewEngine(conn)
	if err != nil {
		return nil, err
	}
	return &Stream{engine: engine, conn: conn}, nil
}

// Engine returns the engine instance owned by this stream.
func (s *Stream) Engine() Engine { return s.engine }

// Transport returns the transport handle owned by this stream.
func (s *Stream) Transport() Transport { return s.conn.transport }

// withContext installs ctx into the bridge slot for the dynamic extent of
// f. The deferred clear guarantees the slot is empty again on every exit
// path, so no reference to ctx survives the call.
func (s *Stream) withContext(ctx context.Context, f func() error) error {
	s.conn.install(ctx)
	defer s.conn.clear()
	return f()
}

// PollConnect performs one client-handshake step.
func (s *Stream) PollConnect(ctx context.Context) error {
	return s.withContext(ctx, s.engine.Connect)
}

// PollAccept performs one server-handshake step.
func (s *Stream) PollAccept(ctx context.Context) error {
	return s.withContext(ctx, s.engine.Accept)
}

// PollHandshake performs one handshake step in the engine's configured
// role.
func (s *Stream) PollHandshake(ctx context.Context) error {
	return s.withContext(ctx, s.engine.Handshake)
}

// PollRead reads decrypted application data into p.
//
// Only p[:n] is meaningful on return; the rest of p is left untouched, so
// callers need not pre-zero the buffer.
func (s *Stream) PollRead(ctx context.Context, p []byte) (n int, err error) {
	err = s.withContext(ctx, func() (err error) {
		n, err = s.engine.Read(p)
		return err
	})
	return n, err
}

// PollWrite encrypts and writes application data from p.
func (s *Stream) PollWrite(ctx context.Context, p []byte) (n int, err error) {
	err = s.withContext(ctx, func() (err error) {
		n, err = s.engine.Write(p)
		return err
	})
	return n, err
}

// PollFlush pushes staged records towards the peer.
func (s *Stream) PollFlush(ctx context.Context) error {
	return s.withContext(ctx, s.engine.Flush)
}

// PollWritev writes the buffers in order, returning total bytes consumed.
func (s *Stream) PollWritev(ctx context.Context, bufs [][]byte) (n int, err error) {
	err = s.withContext(ctx, func() (err error) {
		n, err = s.engine.Writev(bufs)
		return err
	})
	return n, err
}

// PollRawRead is PollRead with the engine's structured error surface:
// session-end conditions arrive as *Error instead of io.EOF. The shutdown
// drain is built on it; general callers may use it when they need to tell
// a clean close notification from a bare transport end.
func (s *Stream) PollRawRead(ctx context.Context, p []byte) (n int, err error) {
	err = s.withContext(ctx, func() (err error) {
		n, err = s.engine.RawRead(p)
		return err
	})
	return n, err
}

// PollReadEarlyData reads early application data into p. It returns
// ErrEarlyDataUnsupported when the engine has no early-data primitives.
func (s *Stream) PollReadEarlyData(ctx context.Context, p []byte) (n int, err error) {
	ed, ok := s.engine.(EarlyDataEngine)
	if !ok {
		return 0, ErrEarlyDataUnsupported
	}
	err = s.withContext(ctx, func() (err error) {
		n, err = ed.ReadEarlyData(p)
		return err
	})
	return n, err
}

// PollWriteEarlyData writes early application data from p. It returns
// ErrEarlyDataUnsupported when the engine has no early-data primitives.
func (s *Stream) PollWriteEarlyData(ctx context.Context, p []byte) (n int, err error) {
	ed, ok := s.engine.(EarlyDataEngine)
	if !ok {
		return 0, ErrEarlyDataUnsupported
	}
	err = s.withContext(ctx, func() (err error) {
		n, err = ed.WriteEarlyData(p)
		return err
	})
	return n, err
}

// Connect drives PollConnect to completion.
func (s *Stream) Connect(ctx context.Context) error {
	return s.await(ctx, s.PollConnect)
}

// Accept drives PollAccept to completion.
func (s *Stream) Accept(ctx context.Context) error {
	return s.await(ctx, s.PollAccept)
}

// Handshake drives PollHandshake to completion.
func (s *Stream) Handshake(ctx context.Context) error {
	return s.await(ctx, s.PollHandshake)
}

// Read drives PollRead until it delivers data, end of stream, or failure.
func (s *Stream) Read(ctx context.Context, p []byte) (int, error) {
	return s.awaitN(ctx, func(ctx context.Context) (int, error) {
		return s.PollRead(ctx, p)
	})
}

// Write drives PollWrite until it consumes a prefix of p or fails.
func (s *Stream) Write(ctx context.Context, p []byte) (int, error) {
	return s.awaitN(ctx, func(ctx context.Context) (int, error) {
		return s.PollWrite(ctx, p)
	})
}

// Flush drives PollFlush to completion.
func (s *Stream) Flush(ctx context.Context) error {
	return s.await(ctx, s.PollFlush)
}

// Writev drives PollWritev until it consumes bytes or fails.
func (s *Stream) Writev(ctx context.Context, bufs [][]byte) (int, error) {
	return s.awaitN(ctx, func(ctx context.Context) (int, error) {
		return s.PollWritev(ctx, bufs)
	})
}

// RawRead drives PollRawRead until it delivers data or a final result.
func (s *Stream) RawRead(ctx context.Context, p []byte) (int, error) {
	return s.awaitN(ctx, func(ctx context.Context) (int, error) {
		return s.PollRawRead(ctx, p)
	})
}

// ReadEarlyData drives PollReadEarlyData to completion.
func (s *Stream) ReadEarlyData(ctx context.Context, p []byte) (int, error) {
	return s.awaitN(ctx, func(ctx context.Context) (int, error) {
		return s.PollReadEarlyData(ctx, p)
	})
}

// WriteEarlyData drives PollWriteEarlyData to completion.
func (s *Stream) WriteEarlyData(ctx context.Context, p []byte) (int, error) {
	return s.awaitN(ctx, func(ctx context.Context) (int, error) {
		return s.PollWriteEarlyData(ctx, p)
	})
}

// Shutdown drives PollShutdown to completion.
func (s *Stream) Shutdown(ctx context.Context) error {
	return s.await(ctx, s.PollShutdown)
}

// await retries poll until it yields a result other than would-block.
// Between attempts it suspends on the transport's Awaiter when there is
// one and backs off in the iox "Adapt" style otherwise. Cancellation is
// observed between polls; an in-flight poll never blocks, so ctx
// expiring makes the whole awaited operation return promptly.
func (s *Stream) await(ctx context.Context, poll func(context.Context) error) error {
	var backoff iox.Backoff
	for {
		err := poll(ctx)
		if !iox.IsWouldBlock(err) {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if a, ok := s.conn.transport.(Awaiter); ok {
			if werr := a.AwaitReady(ctx); werr != nil {
				return werr
			}
			continue
		}
		backoff.Wait()
	}
}

// awaitN is await for polls that carry a byte count. A would-block result
// that still consumed bytes counts as completion: progress was delivered
// and the caller decides whether to continue.
func (s *Stream) awaitN(ctx context.Context, poll func(context.Context) (int, error)) (int, error) {
	var backoff iox.Backoff
	for {
		n, err := poll(ctx)
		if n > 0 && iox.IsWouldBlock(err) {
			return n, nil
		}
		if n > 0 || !iox.IsWouldBlock(err) {
			return n, err
		}
		if cerr := ctx.Err(); cerr != nil {
			return 0, cerr
		}
		if a, ok := s.conn.transport.(Awaiter); ok {
			if werr := a.AwaitReady(ctx); werr != nil {
				return 0, werr
			}
			continue
		}
		backoff.Wait()
	}
}
