// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"math"
	"strconv"
	"strings"

	"github.com/absmach/hullserver/pkg/errors"
	"github.com/absmach/hullserver/pkg/geometry"
)

// Command identifies a protocol verb.
type Command int

const (
	Empty Command = iota
	NewGraph
	NewPoint
	RemovePoint
	ConvexHull
	Exit
)

var names = map[Command]string{
	Empty:       "",
	NewGraph:    "Newgraph",
	NewPoint:    "Newpoint",
	RemovePoint: "Removepoint",
	ConvexHull:  "CH",
	Exit:        "EXIT",
}

var verbs = map[string]Command{
	"newgraph":    NewGraph,
	"newpoint":    NewPoint,
	"removepoint": RemovePoint,
	"ch":          ConvexHull,
	"exit":        Exit,
}

// String returns the canonical spelling of the verb.
func (c Command) String() string {
	return names[c]
}

// Request is a parsed command line.
type Request struct {
	Command Command
	Point   geometry.Point
}

// Parse turns one line into a Request. Bytes outside printable ASCII are
// dropped and the verb is matched case-insensitively. Newpoint and
// Removepoint take exactly two finite numbers; on a malformed argument list
// the returned Request still carries the command so callers can print usage.
func Parse(line string) (Request, error) {
	fields := strings.Fields(Sanitize(line))
	if len(fields) == 0 {
		return Request{Command: Empty}, nil
	}

	cmd, ok := verbs[strings.ToLower(fields[0])]
	if !ok {
		return Request{}, errors.ErrUnknownCommand
	}

	req := Request{Command: cmd}
	args := fields[1:]
	switch cmd {
	case NewPoint, RemovePoint:
		p, err := parsePoint(args)
		if err != nil {
			return req, err
		}
		req.Point = p
	default:
		// Argument-less verbs only match exactly.
		if len(args) != 0 {
			return Request{}, errors.ErrUnknownCommand
		}
	}
	return req, nil
}

// Sanitize removes every byte outside the printable ASCII range 32..126.
func Sanitize(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); i++ {
		if c := line[i]; c >= 32 && c <= 126 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func parsePoint(args []string) (geometry.Point, error) {
	if len(args) != 2 {
		return geometry.Point{}, errors.ErrInvalidInput
	}
	x, err := parseCoord(args[0])
	if err != nil {
		return geometry.Point{}, err
	}
	y, err := parseCoord(args[1])
	if err != nil {
		return geometry.Point{}, err
	}
	return geometry.Point{X: x, Y: y}, nil
}

func parseCoord(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.ErrInvalidInput
	}
	return v, nil
}
