// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proactor

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/absmach/hullserver/pkg/geometry"
	"github.com/absmach/hullserver/pkg/graph"
	"github.com/absmach/hullserver/pkg/handler"
	"github.com/absmach/hullserver/pkg/protocol"
)

type countingHandler struct {
	handler.NoopHandler
	mu          sync.Mutex
	connects    int
	disconnects int
}

func (h *countingHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connects++
	return nil
}

func (h *countingHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects++
	return nil
}

func (h *countingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects, h.disconnects
}

func startServer(t *testing.T, cfg ServerConfig, h handler.Handler) (*Server, *graph.State, func()) {
	t.Helper()
	cfg.Address = "127.0.0.1:0"
	cfg.Logger = quietLogger()
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}

	g := graph.New(nil, geometry.Jarvis)
	srv := NewServer(cfg, protocol.NewInterpreter(g), h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Listen(ctx) }()

	eventually(t, func() bool { return srv.Addr() != nil }, "server did not start")

	stop := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Listen returned error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	}
	return srv, g, stop
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr net.Addr) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	c := &testClient{conn: conn, r: bufio.NewReader(conn)}
	if got := c.lines(t, 2); got != protocol.Welcome {
		t.Fatalf("unexpected welcome %q", got)
	}
	return c
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (c *testClient) lines(t *testing.T, n int) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var b strings.Builder
	for i := 0; i < n; i++ {
		line, err := c.r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, b.String())
		}
		b.WriteString(line)
	}
	return b.String()
}

func TestServerCommands(t *testing.T) {
	srv, _, stop := startServer(t, ServerConfig{}, nil)
	defer stop()

	c := dial(t, srv.Addr())

	for _, p := range []string{"0 0", "4 0", "4 4", "0 4", "2 2"} {
		c.send(t, "Newpoint "+p)
		c.lines(t, 1)
	}

	c.send(t, "CH")
	want := "Convex Hull (4 points):\n(0.00, 0.00)\n(4.00, 0.00)\n(4.00, 4.00)\n(0.00, 4.00)\nArea: 16.00\n"
	if got := c.lines(t, 6); got != want {
		t.Errorf("unexpected hull response %q", got)
	}

	c.send(t, "Removepoint 9 9")
	if got := c.lines(t, 1); got != "Point (9.00, 9.00) not found\n" {
		t.Errorf("unexpected response %q", got)
	}

	c.send(t, "Newpoint 1")
	if got := c.lines(t, 1); got != "Invalid format. Use: Newpoint x y\n" {
		t.Errorf("unexpected response %q", got)
	}
}

func TestServerWorkerLimit(t *testing.T) {
	srv, _, stop := startServer(t, ServerConfig{MaxWorkers: 1}, nil)
	defer stop()

	first := dial(t, srv.Addr())

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != protocol.BusyText {
		t.Errorf("expected busy text, got %q", got)
	}
	if n := srv.Rejected(); n != 1 {
		t.Errorf("expected 1 rejected connection, got %d", n)
	}

	// The admitted client is unaffected.
	first.send(t, "Newgraph")
	if got := first.lines(t, 1); got != "New graph created\n" {
		t.Errorf("unexpected response %q", got)
	}
}

func TestServerExit(t *testing.T) {
	h := &countingHandler{}
	srv, _, stop := startServer(t, ServerConfig{}, h)
	defer stop()

	a := dial(t, srv.Addr())
	b := dial(t, srv.Addr())

	a.send(t, "exit")
	a.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := a.r.ReadByte(); err == nil {
		t.Error("expected connection to be closed after EXIT")
	}

	eventually(t, func() bool { return srv.ActiveConnections() == 1 }, "exited worker still registered")

	b.send(t, "Newpoint 5 5")
	if got := b.lines(t, 1); got != "Point (5.00, 5.00) added\n" {
		t.Errorf("unexpected response %q", got)
	}
}

func TestServerShutdownClosesConnections(t *testing.T) {
	h := &countingHandler{}
	srv, _, stop := startServer(t, ServerConfig{}, h)

	a := dial(t, srv.Addr())
	b := dial(t, srv.Addr())
	b.send(t, "Newpoint 1 2")
	b.lines(t, 1)

	stop()

	a.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := a.r.ReadByte(); err == nil {
		t.Error("expected connection to be closed on shutdown")
	}

	connects, disconnects := h.counts()
	if connects != 2 || disconnects != 2 {
		t.Errorf("expected 2 connects and 2 disconnects, got %d and %d", connects, disconnects)
	}
	if srv.ActiveConnections() != 0 {
		t.Error("expected no active connections after shutdown")
	}
	if srv.Addr() != nil {
		t.Error("expected no address after shutdown")
	}
}
