// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx

import "errors"

// tlsx adds two sentinel errors on top of the iox semantic set.
//
// Mental model:
//   - ErrNoPollContext: a bridge method ran outside a poll call. This is a
//     misuse of the Stream (or an engine calling back after the poll
//     returned), not a transport condition; there is nothing to retry.
//   - ErrEarlyDataUnsupported: the configured engine has no early-data
//     primitives. Feature detection, not failure of an attempted exchange.

// ErrNoPollContext means a blocking-shaped bridge call found no installed
// poll context. The context slot is only populated for the dynamic extent
// of a single Poll* call on the owning Stream.
var ErrNoPollContext = errors.New("tlsx: no poll context installed")

// ErrEarlyDataUnsupported means the engine does not implement
// EarlyDataEngine. Returned by the early-data poll and awaitable methods.
var ErrEarlyDataUnsupported = errors.New("tlsx: engine does not support early data")

// errDrainRestart reports an impossible shutdown drain transition: the
// drain classifier produced the "not started" marker while draining was
// already in progress. Indicates a classification defect, never a peer
// condition.
var errDrainRestart = errors.New("tlsx: shutdown drain restarted")
