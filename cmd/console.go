// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/absmach/hullserver/pkg/alerts"
	"github.com/absmach/hullserver/pkg/graph"
	"github.com/absmach/hullserver/pkg/threshold"
)

// console is the operator prompt on the server's stdin.
type console struct {
	in      io.Reader
	out     io.Writer
	state   *graph.State
	monitor *threshold.Monitor
	alerts  *alerts.Hub
	conns   func() int
	quit    context.CancelFunc
}

// Run reads commands until quit, EOF or ctx is done. A read blocked on the
// input is left behind when ctx ends.
func (c *console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, styleDim.Render("Server console: status, quit"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if c.exec(strings.TrimSpace(line)) {
				c.quit()
				return nil
			}
		}
	}
}

// exec runs one console command and reports whether the server must stop.
func (c *console) exec(cmd string) bool {
	switch strings.ToLower(cmd) {
	case "":
	case "quit", "exit":
		fmt.Fprintln(c.out, styleWarning.Render("Shutting down server..."))
		return true
	case "status":
		c.status()
	default:
		fmt.Fprintln(c.out, styleError.Render("Unknown console command. Available: status, quit"))
	}
	return false
}

func (c *console) status() {
	points := c.state.Snapshot()
	stats := c.state.Stats()

	fmt.Fprintf(c.out, "%s %s points (%s)\n",
		styleTitle.Render("Graph:"),
		styleNumber.Render(fmt.Sprint(len(points))),
		c.state.Algorithm())
	for _, p := range points {
		fmt.Fprintf(c.out, "  %s\n", p)
	}

	hull := fmt.Sprintf("%d vertices, area %.2f", stats.HullPoints, stats.Area)
	if stats.Stale {
		hull += styleDim.Render(" (stale)")
	}
	fmt.Fprintf(c.out, "%s %s\n", styleTitle.Render("Hull:"), hull)

	if c.monitor != nil {
		flags := c.monitor.Flags()
		fmt.Fprintf(c.out, "%s %.2f above=%t below=%t\n",
			styleTitle.Render("Threshold:"), c.monitor.Threshold(),
			flags.AboveThreshold, flags.BelowThreshold)
	}
	if c.alerts != nil {
		fmt.Fprintf(c.out, "%s %s published, %s subscribers\n",
			styleTitle.Render("Alerts:"),
			styleNumber.Render(fmt.Sprint(c.alerts.Published())),
			styleNumber.Render(fmt.Sprint(c.alerts.Subscribers())))
	}
	if c.conns != nil {
		fmt.Fprintf(c.out, "%s %s\n",
			styleTitle.Render("Connections:"),
			styleNumber.Render(fmt.Sprint(c.conns())))
	}
}
