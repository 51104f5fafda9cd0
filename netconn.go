// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"code.hybscloud.com/iox"
)

// netPollInterval bounds how long a single NetConn poll may wait for
// readiness. It cannot be zero: an already-expired deadline makes the
// runtime fail reads and writes before attempting any I/O, so buffered
// data would never be delivered.
const netPollInterval = time.Millisecond

// connTransport adapts a net.Conn to the Transport contract by issuing
// each poll with a near-immediate deadline: ready data completes at once,
// and a call that would otherwise have parked the goroutine times out
// within netPollInterval and is reported as iox.ErrWouldBlock.
//
// The adapter implements no Awaiter, so awaitable Stream methods over it
// suspend with iox.Backoff. Latency-sensitive callers should prefer a
// transport integrated with their readiness notification instead.
type connTransport struct {
	conn net.Conn
}

// NetConn wraps a net.Conn as a poll-based Transport. The Stream takes
// exclusive ownership of the connection; closing it remains the caller's
// job after the stream is dropped.
func NetConn(conn net.Conn) Transport {
	return &connTransport{conn: conn}
}

func (t *connTransport) PollRead(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(netPollInterval)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	return n, wouldBlockFromTimeout(err)
}

func (t *connTransport) PollWrite(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(netPollInterval)); err != nil {
		return 0, err
	}
	n, err := t.conn.Write(p)
	return n, wouldBlockFromTimeout(err)
}

// PollFlush is a no-op: a net.Conn write hands bytes to the kernel, which
// keeps pushing without further involvement from this layer.
func (t *connTransport) PollFlush(ctx context.Context) error {
	return ctx.Err()
}

func (t *connTransport) PollWritev(ctx context.Context, bufs [][]byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(netPollInterval)); err != nil {
		return 0, err
	}
	nb := make(net.Buffers, len(bufs))
	for i, b := range bufs {
		nb[i] = b
	}
	n, err := nb.WriteTo(t.conn)
	return int(n), wouldBlockFromTimeout(err)
}

// wouldBlockFromTimeout rewrites a deadline-exceeded failure as the iox
// would-block signal. Partial progress keeps its count; only the error
// value is translated.
func wouldBlockFromTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("tlsx: net conn not ready: %w", iox.ErrWouldBlock)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("tlsx: net conn not ready: %w", iox.ErrWouldBlock)
	}
	return err
}
