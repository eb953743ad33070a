// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package reactor implements single-goroutine, readiness-driven serving.
//
// # Overview
//
// A Reactor owns a table of descriptors and their handlers. One goroutine
// repeatedly snapshots the table, waits in poll(2) and calls the handler of
// every descriptor reported readable:
//
//	┌──────────────┐  snapshot  ┌─────────┐  ready fds  ┌──────────────┐
//	│ handler table│ ─────────→ │ poll(2) │ ──────────→ │ Handler(fd)  │
//	└──────────────┘            └─────────┘             └──────────────┘
//	       ↑  AddFd/RemoveFd         ↑ wake pipe
//	       └──────── any goroutine ──┘
//
// The table lock is never held while waiting. AddFd and Stop write to an
// internal wake pipe so the wait returns at once; PollTimeout (default
// 100ms) is only the upper bound.
//
// # Handlers
//
// Handlers run on the loop goroutine, so a slow handler stalls every other
// descriptor. Handler errors and panics are logged and the loop continues. A
// descriptor removed by an earlier handler of the same round is skipped.
//
// # Server
//
// Server serves the hull protocol with a single Reactor. The listener is a
// descriptor whose handler accepts one connection per readiness event; each
// connection is a descriptor whose handler performs one non-blocking read,
// feeds the bytes to its protocol session and writes the response with a
// bounded deadline. Read errors and EOF close only the affected connection.
//
//	srv := reactor.NewServer(reactor.ServerConfig{Address: ":9000"}, interp, h)
//	if err := srv.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The package relies on golang.org/x/sys/unix and is available on Unix
// systems only.
package reactor
