// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"time"
)

// Context contains connection metadata for a single client session.
// It is passed to Handler methods for the lifetime of the connection.
type Context struct {
	// SessionID is a unique identifier for this connection/session
	SessionID string

	// RemoteAddr is the client's network address
	RemoteAddr string

	// Mode is the serving strategy that owns the connection (reactor, proactor)
	Mode string

	// ConnectedAt is the time the connection was accepted
	ConnectedAt time.Time
}

// Handler defines authorization and notification callbacks for session events.
// The protocol session calls these methods at fixed points of a connection's
// lifecycle, regardless of the serving mode.
//
// Authorization methods (AuthConnect, AuthCommand) are called BEFORE the
// connection is greeted or the command is applied to the graph. Returning an
// error rejects the action.
//
// Notification methods (OnConnect, OnCommand, OnDisconnect) are called AFTER
// the fact for audit logging, metrics, or post-processing. Errors from these
// methods are logged but don't undo the action.
type Handler interface {
	// AuthConnect authorizes a newly accepted connection.
	// Return an error to close the connection without a greeting.
	AuthConnect(ctx context.Context, hctx *Context) error

	// AuthCommand authorizes a parsed command before it is executed.
	// command is the canonical verb (Newgraph, Newpoint, Removepoint, CH).
	// Return an error to reject the command; the connection stays open.
	AuthCommand(ctx context.Context, hctx *Context, command string) error

	// OnConnect is called after the greeting was produced.
	OnConnect(ctx context.Context, hctx *Context) error

	// OnCommand is called after a command was executed.
	// err is the protocol-level outcome (nil, ErrInvalidInput, ErrPointNotFound, ...).
	OnCommand(ctx context.Context, hctx *Context, command string, err error) error

	// OnDisconnect is called exactly once when the session ends
	// (EOF, I/O error, EXIT or server shutdown).
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler implementation that allows all operations.
// Useful for testing or when no authorization is needed.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) AuthConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) AuthCommand(ctx context.Context, hctx *Context, command string) error {
	return nil
}

func (h *NoopHandler) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnCommand(ctx context.Context, hctx *Context, command string, err error) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
