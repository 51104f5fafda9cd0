// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlsxtest

// Package tlsxtest provides in-memory collaborators for exercising tlsx
// streams: Pipe, a capacity-bounded non-blocking duplex transport pair,
// and LoopbackEngine, a framed cleartext engine implementing the full
// engine contract including early data and close notifications.
//
// Neither is a TLS implementation. The loopback engine exists to make
// every classification path of the bridging layer reachable in tests:
// multi-frame payloads, handshake suspensions on both sides, clean close
// notifications, and bare transport ends with no attached I/O error.
