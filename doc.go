// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsx

// Package tlsx drives a blocking-style TLS engine over a poll-based,
// non-blocking transport using iox's extended I/O semantics.
//
// A TLS engine is code compiled against a blocking duplex byte channel:
// it calls Read and Write and expects them to make progress. tlsx bridges
// that shape onto a Transport whose polls never block and instead report
// iox.ErrWouldBlock when no progress is possible. The bridge installs the
// caller's context for exactly the duration of one engine call, performs
// single-shot polls on the engine's behalf, and hands would-block back to
// the engine as an ordinary error.
//
// Extended result semantics (shared with iox)
//   - nil error: the operation completed; counts report progress.
//   - iox.ErrWouldBlock: no progress is possible now. Return to the
//     scheduler; retry the same poll later.
//   - any other error: the operation failed; see Error for the engine's
//     structured classification.
//
// Poll methods (PollConnect, PollRead, PollShutdown, ...) perform one
// engine step and never block. Awaitable methods (Connect, Read,
// Shutdown, ...) loop over the poll form, suspending via the transport's
// Awaiter when available and iox.Backoff otherwise.
//
// A Stream is single-threaded: one in-flight poll at a time; concurrent
// use requires external synchronization.
