// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx_test

import (
	"context"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/tlsx"
)

// stubTransport scripts transport behavior through function fields.
// Nil fields report would-block, the least-ready transport there is.
type stubTransport struct {
	readFn   func(ctx context.Context, p []byte) (int, error)
	writeFn  func(ctx context.Context, p []byte) (int, error)
	flushFn  func(ctx context.Context) error
	writevFn func(ctx context.Context, bufs [][]byte) (int, error)

	reads, writes, flushes, writevs int
}

func (t *stubTransport) PollRead(ctx context.Context, p []byte) (int, error) {
	t.reads++
	if t.readFn == nil {
		return 0, iox.ErrWouldBlock
	}
	return t.readFn(ctx, p)
}

func (t *stubTransport) PollWrite(ctx context.Context, p []byte) (int, error) {
	t.writes++
	if t.writeFn == nil {
		return 0, iox.ErrWouldBlock
	}
	return t.writeFn(ctx, p)
}

func (t *stubTransport) PollFlush(ctx context.Context) error {
	t.flushes++
	if t.flushFn == nil {
		return iox.ErrWouldBlock
	}
	return t.flushFn(ctx)
}

func (t *stubTransport) PollWritev(ctx context.Context, bufs [][]byte) (int, error) {
	t.writevs++
	if t.writevFn == nil {
		return 0, iox.ErrWouldBlock
	}
	return t.writevFn(ctx, bufs)
}

// stubEngine scripts engine behavior through function fields. Nil fields
// succeed with zero progress. The factory hands each stubEngine its
// bridge so tests can drive bridge calls from inside engine primitives.
type stubEngine struct {
	conn tlsx.EngineConn

	connectFn   func() error
	acceptFn    func() error
	handshakeFn func() error
	readFn      func(p []byte) (int, error)
	writeFn     func(p []byte) (int, error)
	flushFn     func() error
	writevFn    func(bufs [][]byte) (int, error)
	rawReadFn   func(p []byte) (int, error)
	shutdownFn  func() (tlsx.ShutdownResult, error)
}

func (e *stubEngine) Connect() error {
	if e.connectFn == nil {
		return nil
	}
	return e.connectFn()
}

func (e *stubEngine) Accept() error {
	if e.acceptFn == nil {
		return nil
	}
	return e.acceptFn()
}

func (e *stubEngine) Handshake() error {
	if e.handshakeFn == nil {
		return nil
	}
	return e.handshakeFn()
}

func (e *stubEngine) Read(p []byte) (int, error) {
	if e.readFn == nil {
		return 0, nil
	}
	return e.readFn(p)
}

func (e *stubEngine) Write(p []byte) (int, error) {
	if e.writeFn == nil {
		return len(p), nil
	}
	return e.writeFn(p)
}

func (e *stubEngine) Flush() error {
	if e.flushFn == nil {
		return nil
	}
	return e.flushFn()
}

func (e *stubEngine) Writev(bufs [][]byte) (int, error) {
	if e.writevFn == nil {
		n := 0
		for _, b := range bufs {
			n += len(b)
		}
		return n, nil
	}
	return e.writevFn(bufs)
}

func (e *stubEngine) RawRead(p []byte) (int, error) {
	if e.rawReadFn == nil {
		return 0, nil
	}
	return e.rawReadFn(p)
}

func (e *stubEngine) Shutdown() (tlsx.ShutdownResult, error) {
	if e.shutdownFn == nil {
		return tlsx.ShutdownReceived, nil
	}
	return e.shutdownFn()
}

// stubStream builds a Stream around a stubEngine and returns both.
func stubStream(t *stubTransport) (*tlsx.Stream, *stubEngine) {
	eng := &stubEngine{}
	s, err := tlsx.New(tlsx.EngineFactoryFunc(func(conn tlsx.EngineConn) (tlsx.Engine, error) {
		eng.conn = conn
		return eng, nil
	}), t)
	if err != nil {
		panic(err)
	}
	return s, eng
}
