// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for the hull server.
package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrInvalidInput indicates a command with malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownCommand indicates an unrecognised command verb.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrPointNotFound indicates a removal of a point that is not in the graph.
	ErrPointNotFound = errors.New("point not found")

	// ErrInsufficientPoints indicates a hull request on a degenerate point set.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrLineTooLong indicates a command line longer than the session accepts.
	ErrLineTooLong = errors.New("line too long")

	// ErrConnectionClosed indicates the connection was closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrRateLimited indicates rate limit exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrServerBusy indicates the server refused a connection over capacity.
	ErrServerBusy = errors.New("server busy")

	// ErrTimeout indicates an operation timeout.
	ErrTimeout = errors.New("timeout")
)

// ConnError wraps an error with the connection it happened on.
type ConnError struct {
	Op         string // Operation that failed
	Mode       string // Server mode (reactor, proactor)
	SessionID  string // Session identifier
	RemoteAddr string // Client address
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *ConnError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s %s [%s] %s: %v", e.Mode, e.Op, e.SessionID, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Mode, e.Op, e.RemoteAddr, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// New creates a new ConnError. It returns nil when err is nil.
func New(op, mode, sessionID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnError{
		Op:         op,
		Mode:       mode,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
