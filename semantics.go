// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx

import (
	"errors"

	"code.hybscloud.com/iox"
)

// Two total classification functions translate the two failure
// vocabularies this package straddles into iox poll outcomes:
//
//   - transport results use iox semantics natively; classify them with
//     iox.Classify (would-block is the only non-failure error there).
//   - engine results carry a *Error code; ClassifyEngine recognizes the
//     engine's own suspension signals (want-read, want-write) instead of
//     the generic would-block marker.
//
// Every possible input maps to exactly one Outcome; neither function has
// side effects.

// CodeOf extracts the engine classification from err. It returns (code,
// true) when err is or wraps a *Error, and (0, false) otherwise.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// IsWantRead reports whether err is an engine suspension waiting on
// transport input.
func IsWantRead(err error) bool {
	c, ok := CodeOf(err)
	return ok && c == CodeWantRead
}

// IsWantWrite reports whether err is an engine suspension waiting on
// transport output capacity.
func IsWantWrite(err error) bool {
	c, ok := CodeOf(err)
	return ok && c == CodeWantWrite
}

// ClassifyEngine maps an engine result onto an iox Outcome.
//
// nil is OutcomeOK. A *Error with CodeWantRead or CodeWantWrite is
// OutcomeWouldBlock: the engine suspended and the same call must be
// retried after transport readiness. Everything else, including non-Error
// values, is OutcomeFailure.
func ClassifyEngine(err error) iox.Outcome {
	if err == nil {
		return iox.OutcomeOK
	}
	if c, ok := CodeOf(err); ok && (c == CodeWantRead || c == CodeWantWrite) {
		return iox.OutcomeWouldBlock
	}
	return iox.OutcomeFailure
}
