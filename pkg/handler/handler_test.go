// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopHandler(t *testing.T) {
	handler := &NoopHandler{}
	ctx := context.Background()
	hctx := &Context{
		SessionID:   "test-session",
		RemoteAddr:  "127.0.0.1:1234",
		Mode:        "reactor",
		ConnectedAt: time.Now(),
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{
			name: "AuthConnect",
			fn:   func() error { return handler.AuthConnect(ctx, hctx) },
		},
		{
			name: "AuthCommand",
			fn:   func() error { return handler.AuthCommand(ctx, hctx, "Newpoint") },
		},
		{
			name: "OnConnect",
			fn:   func() error { return handler.OnConnect(ctx, hctx) },
		},
		{
			name: "OnCommand",
			fn:   func() error { return handler.OnCommand(ctx, hctx, "CH", nil) },
		},
		{
			name: "OnDisconnect",
			fn:   func() error { return handler.OnDisconnect(ctx, hctx) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Errorf("%s() returned error: %v", tt.name, err)
			}
		})
	}
}

// MockHandler is a mock implementation for testing.
type MockHandler struct {
	ConnectErr   error
	CommandErr   error
	OnConnectErr error

	ConnectCalled      bool
	CommandCalled      bool
	OnConnectCalled    bool
	OnCommandCalled    bool
	OnDisconnectCalled bool

	LastCommand string
	LastResult  error
}

func (m *MockHandler) AuthConnect(ctx context.Context, hctx *Context) error {
	m.ConnectCalled = true
	return m.ConnectErr
}

func (m *MockHandler) AuthCommand(ctx context.Context, hctx *Context, command string) error {
	m.CommandCalled = true
	m.LastCommand = command
	return m.CommandErr
}

func (m *MockHandler) OnConnect(ctx context.Context, hctx *Context) error {
	m.OnConnectCalled = true
	return m.OnConnectErr
}

func (m *MockHandler) OnCommand(ctx context.Context, hctx *Context, command string, err error) error {
	m.OnCommandCalled = true
	m.LastResult = err
	return nil
}

func (m *MockHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	m.OnDisconnectCalled = true
	return nil
}

func TestMockHandler(t *testing.T) {
	mock := &MockHandler{
		ConnectErr: errors.New("connection error"),
	}

	ctx := context.Background()
	hctx := &Context{
		SessionID: "test",
		Mode:      "proactor",
	}

	// Test AuthConnect with error
	err := mock.AuthConnect(ctx, hctx)
	if err == nil {
		t.Error("Expected error from AuthConnect")
	}
	if !mock.ConnectCalled {
		t.Error("Expected ConnectCalled to be true")
	}

	// Test AuthCommand
	err = mock.AuthCommand(ctx, hctx, "Removepoint")
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !mock.CommandCalled {
		t.Error("Expected CommandCalled to be true")
	}
	if mock.LastCommand != "Removepoint" {
		t.Errorf("Expected command Removepoint, got %s", mock.LastCommand)
	}

	// Test notification methods
	notFound := errors.New("point not found")
	err = mock.OnCommand(ctx, hctx, "Removepoint", notFound)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if mock.LastResult != notFound {
		t.Errorf("Expected result %v, got %v", notFound, mock.LastResult)
	}

	err = mock.OnConnect(ctx, hctx)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !mock.OnConnectCalled {
		t.Error("Expected OnConnectCalled to be true")
	}

	err = mock.OnDisconnect(ctx, hctx)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !mock.OnDisconnectCalled {
		t.Error("Expected OnDisconnectCalled to be true")
	}
}
