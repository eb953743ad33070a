// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/absmach/hullserver/pkg/protocol"
	"github.com/spf13/cobra"
)

func newClientCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Interactive line client for a running server",
		Long:  "Connects to a hull server and forwards typed commands. EXIT closes the connection.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), addr, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9034", "server address (host:port)")
	return cmd
}

// lockedWriter serializes writes from the server reader and the prompt loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) println(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func runClient(ctx context.Context, addr string, in io.Reader, out io.Writer) error {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	w := &lockedWriter{w: out}
	w.println(styleSuccess.Render("Connected to " + addr))

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				w.println(styleLine(strings.TrimRight(line, "\r\n")))
			}
			if err != nil {
				return
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-serverDone:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-serverDone:
			w.println(styleWarning.Render("Server closed connection"))
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.EqualFold(line, protocol.Exit.String()) {
				w.println(styleDim.Render("Disconnecting..."))
				return nil
			}
			if _, err := conn.Write([]byte(line + "\n")); err != nil {
				return fmt.Errorf("failed to send command: %w", err)
			}
		}
	}
}

func styleLine(line string) string {
	switch {
	case strings.HasPrefix(line, "Unknown command"),
		strings.HasPrefix(line, "Invalid format"),
		strings.HasPrefix(line, "Line too long"):
		return styleError.Render(line)
	case strings.HasPrefix(line, "Rate limit"),
		strings.HasPrefix(line, "Server busy"),
		strings.HasPrefix(line, "Need at least"),
		strings.HasSuffix(line, "not found"),
		strings.HasSuffix(line, "already exists"):
		return styleWarning.Render(line)
	case strings.HasPrefix(line, "Convex Hull"),
		strings.HasPrefix(line, "Area:"):
		return styleTitle.Render(line)
	case strings.HasSuffix(line, "added"),
		strings.HasSuffix(line, "removed"),
		strings.HasPrefix(line, "New graph"):
		return styleSuccess.Render(line)
	default:
		return line
	}
}
