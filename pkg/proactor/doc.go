// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package proactor implements goroutine-per-connection serving.
//
// # Acceptor
//
// An Acceptor runs one accept goroutine. Every accepted connection gets its
// own worker goroutine, registered by id together with a cancel func:
//
//	┌──────────┐  Accept  ┌──────────┐  spawn  ┌────────────────────┐
//	│ listener │ ───────→ │ acceptor │ ──────→ │ worker (ServeConn) │ × N
//	└──────────┘          └──────────┘         └────────────────────┘
//
// When MaxWorkers is set, a weighted semaphore bounds the number of live
// workers. A connection arriving while the limit is reached receives the
// busy message and is closed; it is counted in Rejected. Transient accept
// errors back off from 5ms up to one second and accepting continues.
//
// # Shutdown
//
// Stop closes the listener and waits for the accept goroutine, cancels every
// worker context, closes every connection so blocked reads return, and waits
// up to ShutdownTimeout for the workers to exit. ErrShutdownTimeout is
// returned if any worker is still running at the deadline.
//
// # Server
//
// Server serves the hull protocol on top of an Acceptor. Each worker greets
// its client, then reads, feeds its protocol session and writes responses
// until EOF, EXIT, an I/O error or shutdown.
//
//	srv := proactor.NewServer(proactor.ServerConfig{
//		Address:    ":9000",
//		MaxWorkers: 1024,
//	}, interp, h)
//	if err := srv.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package proactor
