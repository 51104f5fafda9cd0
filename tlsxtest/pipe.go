// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsxtest

import (
	"context"
	"io"
	"sync"

	"code.hybscloud.com/iox"
)

// DefaultPipeCapacity bounds each direction of a Pipe when the caller
// passes a non-positive capacity. Small enough that multi-record payloads
// exercise backpressure, large enough that a handshake never needs it.
const DefaultPipeCapacity = 64 << 10

// halfPipe is one direction of a pipe: a capacity-bounded byte queue with
// a change-notification channel. The channel is closed and replaced on
// every mutation, so a waiter holding the previous channel always wakes.
type halfPipe struct {
	mu     sync.Mutex
	buf    []byte
	cap    int
	closed bool
	change chan struct{}
}

func newHalfPipe(capacity int) *halfPipe {
	return &halfPipe{cap: capacity, change: make(chan struct{})}
}

func (h *halfPipe) bumpLocked() {
	close(h.change)
	h.change = make(chan struct{})
}

func (h *halfPipe) changeCh() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.change
}

func (h *halfPipe) read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buf) == 0 {
		if h.closed {
			return 0, io.EOF
		}
		return 0, iox.ErrWouldBlock
	}
	n := copy(p, h.buf)
	h.buf = h.buf[:copy(h.buf, h.buf[n:])]
	h.bumpLocked()
	return n, nil
}

func (h *halfPipe) write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, io.ErrClosedPipe
	}
	free := h.cap - len(h.buf)
	if free <= 0 {
		return 0, iox.ErrWouldBlock
	}
	n := len(p)
	if n > free {
		n = free
	}
	h.buf = append(h.buf, p[:n]...)
	h.bumpLocked()
	if n < len(p) {
		return n, iox.ErrWouldBlock
	}
	return n, nil
}

func (h *halfPipe) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		h.bumpLocked()
	}
}

func (h *halfPipe) readable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buf) > 0 || h.closed
}

func (h *halfPipe) writable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buf) < h.cap || h.closed
}

// pend records which side of the transport the last would-block poll was
// waiting on, so AwaitReady can suspend on the right half.
type pend uint8

const (
	pendNone pend = iota
	pendRead
	pendWrite
)

// PipeTransport is one endpoint of an in-memory, non-blocking duplex
// pipe. It implements tlsx.Transport and tlsx.Awaiter and is the
// workhorse transport for tests and examples.
//
// Each endpoint is single-threaded, matching the Stream ownership model;
// the two endpoints of a pair may be driven from different goroutines.
type PipeTransport struct {
	in, out *halfPipe
	waiting pend
}

// Pipe returns a connected pair of in-memory transports. Each direction
// buffers at most capacity bytes (DefaultPipeCapacity when capacity <= 0)
// before writes report would-block.
func Pipe(capacity int) (*PipeTransport, *PipeTransport) {
	if capacity <= 0 {
		capacity = DefaultPipeCapacity
	}
	ab := newHalfPipe(capacity)
	ba := newHalfPipe(capacity)
	a := &PipeTransport{in: ba, out: ab}
	b := &PipeTransport{in: ab, out: ba}
	return a, b
}

func (t *PipeTransport) PollRead(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := t.in.read(p)
	if iox.IsWouldBlock(err) {
		t.waiting = pendRead
	}
	return n, err
}

func (t *PipeTransport) PollWrite(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := t.out.write(p)
	if iox.IsWouldBlock(err) {
		t.waiting = pendWrite
	}
	return n, err
}

// PollFlush is a no-op: writes land in the peer-visible buffer directly.
func (t *PipeTransport) PollFlush(ctx context.Context) error {
	return ctx.Err()
}

func (t *PipeTransport) PollWritev(ctx context.Context, bufs [][]byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	total := 0
	for _, b := range bufs {
		for len(b) > 0 {
			n, err := t.out.write(b)
			total += n
			b = b[n:]
			if err != nil {
				if iox.IsWouldBlock(err) {
					t.waiting = pendWrite
				}
				return total, err
			}
		}
	}
	return total, nil
}

// AwaitReady suspends until the half the last would-block poll was
// waiting on changes state. Wakeups may be spurious; callers re-poll.
func (t *PipeTransport) AwaitReady(ctx context.Context) error {
	// Capture the channel before the readiness check: a mutation in
	// between closes the captured channel, so the wait below cannot miss
	// it.
	var ch <-chan struct{}
	switch t.waiting {
	case pendWrite:
		ch = t.out.changeCh()
		if t.out.writable() {
			return ctx.Err()
		}
	default:
		ch = t.in.changeCh()
		if t.in.readable() {
			return ctx.Err()
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// Close ends the outbound direction: the peer drains buffered bytes and
// then reads end-of-stream. The inbound direction is left alone, so a
// peer that keeps writing into a closed endpoint fails only once its
// buffer fills.
func (t *PipeTransport) Close() error {
	t.out.close()
	return nil
}
