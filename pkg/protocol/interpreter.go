// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"strings"

	hullerrors "github.com/absmach/hullserver/pkg/errors"
	"github.com/absmach/hullserver/pkg/geometry"
	"github.com/absmach/hullserver/pkg/graph"
)

const (
	// Welcome is sent unsolicited on every new connection.
	Welcome = "Connected to Convex Hull Server\nCommands: Newgraph, Newpoint x y, Removepoint x y, CH\n"

	unknownText      = "Unknown command. Available: Newgraph, Newpoint x y, Removepoint x y, CH\n"
	insufficientText = "Need at least 3 points to compute convex hull\n"
	rateLimitedText  = "Rate limit exceeded\n"

	// BusyText is written to connections refused for capacity.
	BusyText = "Server busy, try again later\n"
)

// Graph is the shared state a command is applied to. *graph.State
// implements it.
type Graph interface {
	Reset()
	AddPoint(p geometry.Point) bool
	RemovePoint(p geometry.Point) error
	ComputeHull() graph.Hull
}

var _ Graph = (*graph.State)(nil)

// Response is the text answer to one request. Close asks the server to end
// the connection after writing Text. Err is the protocol-level outcome,
// reported to handlers; it never means the connection failed.
type Response struct {
	Text  string
	Close bool
	Err   error
}

// Interpreter applies requests to a Graph. It holds no per-client state and
// is safe for concurrent use as long as the Graph is.
type Interpreter struct {
	graph Graph
}

// NewInterpreter returns an interpreter over g.
func NewInterpreter(g Graph) *Interpreter {
	return &Interpreter{graph: g}
}

// Handle parses and executes one line.
func (i *Interpreter) Handle(line string) Response {
	req, err := Parse(line)
	if err != nil {
		return ErrorResponse(req, err)
	}
	return i.Execute(req)
}

// Execute applies a parsed request.
func (i *Interpreter) Execute(req Request) Response {
	switch req.Command {
	case Empty:
		return Response{}
	case Exit:
		return Response{Close: true}
	case NewGraph:
		i.graph.Reset()
		return Response{Text: "New graph created\n"}
	case NewPoint:
		if !i.graph.AddPoint(req.Point) {
			return Response{Text: fmt.Sprintf("Point %s already exists\n", req.Point)}
		}
		return Response{Text: fmt.Sprintf("Point %s added\n", req.Point)}
	case RemovePoint:
		if err := i.graph.RemovePoint(req.Point); err != nil {
			return Response{Text: fmt.Sprintf("Point %s not found\n", req.Point), Err: err}
		}
		return Response{Text: fmt.Sprintf("Point %s removed\n", req.Point)}
	case ConvexHull:
		return hullResponse(i.graph.ComputeHull())
	default:
		return ErrorResponse(req, hullerrors.ErrUnknownCommand)
	}
}

// ErrorResponse renders err as the line a client sees for req.
func ErrorResponse(req Request, err error) Response {
	var text string
	switch {
	case errors.Is(err, hullerrors.ErrUnknownCommand):
		text = unknownText
	case errors.Is(err, hullerrors.ErrInvalidInput):
		text = fmt.Sprintf("Invalid format. Use: %s x y\n", req.Command)
	case errors.Is(err, hullerrors.ErrRateLimited):
		text = rateLimitedText
	case errors.Is(err, hullerrors.ErrLineTooLong):
		text = fmt.Sprintf("Line too long (max %d bytes)\n", MaxLineLength)
	case errors.Is(err, hullerrors.ErrInsufficientPoints):
		text = insufficientText
	case errors.Is(err, hullerrors.ErrServerBusy):
		text = BusyText
	default:
		text = fmt.Sprintf("Error: %v\n", err)
	}
	return Response{Text: text, Err: err}
}

func hullResponse(h graph.Hull) Response {
	if h.Empty() {
		return Response{Text: insufficientText, Err: hullerrors.ErrInsufficientPoints}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Convex Hull (%d points):\n", len(h.Points))
	for _, p := range h.Points {
		b.WriteString(p.String())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Area: %.2f\n", h.Area)
	return Response{Text: b.String()}
}
