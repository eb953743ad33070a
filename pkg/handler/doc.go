// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the hook interface that links client sessions to
// application policy.
//
// # Architecture Overview
//
// The Handler interface sits between the line protocol and the shared graph.
// Both serving modes (reactor and proactor) drive a protocol session per
// connection, and the session calls the Handler at fixed points:
//
//	accept → AuthConnect → welcome → OnConnect
//	line   → AuthCommand → graph   → OnCommand
//	close  → OnDisconnect
//
// # Handler Methods
//
// Authorization methods (Auth*) are called before acting:
//   - AuthConnect: Accepts or refuses a new connection
//   - AuthCommand: Accepts or refuses a single command (rate limiting lives here)
//
// Notification methods (On*) are called after acting:
//   - OnConnect: Notifies a greeted connection
//   - OnCommand: Notifies an executed command and its outcome
//   - OnDisconnect: Notifies the end of the session
//
// # Context
//
// The Context struct carries session metadata across all handler calls:
//   - SessionID: Unique identifier for this connection
//   - RemoteAddr: Client's network address
//   - Mode: Serving mode (reactor, proactor)
//   - ConnectedAt: Accept time
//
// # Implementation
//
// Handlers compose by wrapping: a rate limiting handler rejects commands
// before delegating, an instrumented handler records metrics around its
// delegate. The NoopHandler accepts everything.
//
// # Example
//
//	type QuotaHandler struct {
//		handler.NoopHandler
//		quota map[string]int
//	}
//
//	func (h *QuotaHandler) AuthCommand(ctx context.Context, hctx *handler.Context, command string) error {
//		if command == "Newpoint" && h.quota[hctx.SessionID] == 0 {
//			return errors.ErrRateLimited
//		}
//		return nil
//	}
package handler
