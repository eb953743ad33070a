// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the line-oriented text protocol of the hull
// server.
//
// # Commands
//
//	Newgraph          reset the point set
//	Newpoint x y      add a point unless an equal one exists
//	Removepoint x y   remove the matching point
//	CH                compute and print the convex hull and its area
//	EXIT              end the session
//
// Verbs are case-insensitive. Bytes outside printable ASCII are stripped
// before matching, so CRLF line endings and stray control bytes are accepted.
// Malformed arguments and unknown verbs yield a single error line and leave
// the graph untouched; the connection stays open.
//
// # Layers
//
// Parse turns a line into a Request. Interpreter applies requests to a Graph
// and renders responses; it has no per-client state. Session adds the
// per-connection concerns: line buffering across reads, the handler hooks and
// EXIT. Both serving modes use Session so the wire behaviour is identical.
package protocol
