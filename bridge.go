// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx

import "context"

// streamConn is the blocking-shaped face a Stream presents to its engine.
//
// It owns the transport exclusively and holds a context slot that is
// populated only for the dynamic extent of one poll call on the owning
// Stream: install before the engine call, clear unconditionally after,
// never overlapping. A populated slot is what lets blocking-shaped engine
// code observe the caller's cancellation and wakeup context without being
// restructured around it.
//
// Each method performs exactly one poll against the transport. Would-block
// passes through untranslated; the engine sees it as an ordinary error
// where a blocking channel would have parked the thread.
type streamConn struct {
	transport Transport
	ctx       context.Context
}

func (c *streamConn) install(ctx context.Context) { c.ctx = ctx }

func (c *streamConn) clear() { c.ctx = nil }

func (c *streamConn) Read(p []byte) (int, error) {
	if c.ctx == nil {
		return 0, ErrNoPollContext
	}
	return c.transport.PollRead(c.ctx, p)
}

func (c *streamConn) Write(p []byte) (int, error) {
	if c.ctx == nil {
		return 0, ErrNoPollContext
	}
	return c.transport.PollWrite(c.ctx, p)
}

func (c *streamConn) Flush() error {
	if c.ctx == nil {
		return ErrNoPollContext
	}
	return c.transport.PollFlush(c.ctx)
}

func (c *streamConn) Writev(bufs [][]byte) (int, error) {
	if c.ctx == nil {
		return 0, ErrNoPollContext
	}
	return c.transport.PollWritev(c.ctx, bufs)
}
