// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx

import "context"

// Transport is the non-blocking duplex byte channel a Stream drives.
//
// Each method performs at most one attempt: it either makes progress,
// fails, or returns an error matching iox.ErrWouldBlock to report that no
// progress is possible until the transport becomes ready again. Methods
// must never park the calling goroutine waiting for readiness.
//
// ctx is the per-poll context installed by the Stream for the duration of
// the enclosing poll call. Implementations should observe its
// cancellation and may use it to register wakeups.
//
// A Transport is exclusively owned by one Stream.
type Transport interface {
	// PollRead reads into p. (0, io.EOF) reports end of stream.
	PollRead(ctx context.Context, p []byte) (int, error)

	// PollWrite writes from p. It may consume a prefix of p and must
	// report the consumed count even alongside a would-block error.
	PollWrite(ctx context.Context, p []byte) (int, error)

	// PollFlush pushes buffered output towards the peer.
	PollFlush(ctx context.Context) error

	// PollWritev writes the buffers in order, returning total bytes
	// consumed across all of them.
	PollWritev(ctx context.Context, bufs [][]byte) (int, error)
}

// Awaiter is optionally implemented by transports that can wait for
// readiness. The awaitable Stream methods use it to suspend between
// polls; transports without it are driven with iox.Backoff instead.
//
// AwaitReady may wake spuriously; callers must re-poll to observe actual
// progress.
type Awaiter interface {
	AwaitReady(ctx context.Context) error
}
