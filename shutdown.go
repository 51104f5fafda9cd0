// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx

import (
	"context"
	"errors"
)

// Shutdown close sequence.
//
// Sending our close notification is one engine call; observing the peer's
// can take arbitrarily many reads. After Shutdown reports Sent, the
// recommended continuation is to keep reading at the raw layer until the
// peer's close notification (ZeroReturn) arrives. Two transport-level
// conditions end the drain benignly rather than as failures:
//
//   - ZeroReturn: the peer ended the session cleanly.
//   - Syscall with no attached I/O error: the peer closed the raw
//     connection without a close notification. Treating this as an
//     acceptable close is a compatibility heuristic, not a protocol
//     guarantee; peers that skip the close notification are common
//     enough that tightening it would break them.
//
// A would-block at any point abandons the whole attempt: the next
// PollShutdown starts again with the engine Shutdown call, which is
// idempotent at the engine level.

// drainState is the progress marker for one shutdown attempt. It never
// outlives the PollShutdown call that produced it.
type drainState uint8

const (
	// drainNotStarted: the close notification has been sent but raw-read
	// draining has not begun. drainStep never produces this value;
	// observing it mid-drain is a classification defect.
	drainNotStarted drainState = iota

	// drainReads: keep reading, the peer's close notification is still
	// outstanding.
	drainReads

	// drainDone: the drain is complete.
	drainDone
)

// PollShutdown performs one attempt of the graceful close sequence: one
// engine Shutdown call, then, if our close notification is out but the
// peer's has not been observed, a raw-read drain loop. Returns nil on
// completion, a would-block error when the attempt must be retried, and
// the underlying failure otherwise (attached low-level I/O error
// preserved when present).
func (s *Stream) PollShutdown(ctx context.Context) error {
	var res ShutdownResult
	err := s.withContext(ctx, func() (err error) {
		res, err = s.engine.Shutdown()
		return err
	})
	if err != nil {
		c, ok := CodeOf(err)
		if !ok {
			return err
		}
		switch c {
		case CodeWantRead, CodeWantWrite:
			return err
		case CodeZeroReturn:
			// peer already ended the session; nothing left to wait for
			return nil
		case CodeSyscall:
			if ioErr := ioErrorOf(err); ioErr == nil {
				return nil
			}
			return fatal(err)
		default:
			return fatal(err)
		}
	}
	if res == ShutdownReceived {
		return nil
	}

	// res == ShutdownSent: drain raw reads until the peer's close
	// notification, or a benign transport end, shows up.
	var buf [1024]byte
	for {
		_, rerr := s.PollRawRead(ctx, buf[:])
		state, serr := drainStep(rerr)
		if serr != nil {
			return serr
		}
		switch state {
		case drainReads:
			// there may be more buffered application data to discard
		case drainDone:
			return nil
		default:
			return errDrainRestart
		}
	}
}

// drainStep maps one raw-read result onto the drain progress marker.
// A non-nil error is either the propagated would-block suspension or the
// final failure of the shutdown attempt; drainNotStarted is never
// produced.
func drainStep(err error) (drainState, error) {
	if err == nil {
		return drainReads, nil
	}
	c, ok := CodeOf(err)
	if !ok {
		return drainNotStarted, err
	}
	switch c {
	case CodeWantRead, CodeWantWrite:
		return drainNotStarted, err
	case CodeZeroReturn:
		return drainDone, nil
	case CodeSyscall:
		if ioErrorOf(err) == nil {
			return drainDone, nil
		}
		return drainNotStarted, fatal(err)
	default:
		return drainNotStarted, fatal(err)
	}
}

// fatal unwraps the attached low-level I/O error when the engine recorded
// one, and otherwise returns the engine error itself.
func fatal(err error) error {
	if ioErr := ioErrorOf(err); ioErr != nil {
		return ioErr
	}
	return err
}

// ioErrorOf extracts the attached low-level I/O error from an engine
// error, or nil.
func ioErrorOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.IO
	}
	return nil
}
