// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	hullerrors "github.com/absmach/hullserver/pkg/errors"
	"github.com/absmach/hullserver/pkg/handler"
)

// MaxLineLength is the longest command line a session buffers.
const MaxLineLength = 4096

// Session is the per-connection side of the protocol: it splits the byte
// stream into lines and runs each line through the handler hooks and the
// interpreter. A Session is driven by a single goroutine at a time.
type Session struct {
	interp  *Interpreter
	handler handler.Handler
	hctx    *handler.Context
	logger  *slog.Logger

	buf        []byte
	discarding bool
	closed     bool
	closeOnce  sync.Once
}

// NewSession creates a session for one connection.
func NewSession(interp *Interpreter, h handler.Handler, hctx *handler.Context, logger *slog.Logger) *Session {
	if h == nil {
		h = &handler.NoopHandler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		interp:  interp,
		handler: h,
		hctx:    hctx,
		logger:  logger,
	}
}

// Context returns the handler context of the session.
func (s *Session) Context() *handler.Context {
	return s.hctx
}

// Open authorizes the connection and returns the greeting to write.
// An error means the connection must be closed without a greeting.
func (s *Session) Open(ctx context.Context) ([]byte, error) {
	if err := s.handler.AuthConnect(ctx, s.hctx); err != nil {
		s.closed = true
		return nil, err
	}
	if err := s.handler.OnConnect(ctx, s.hctx); err != nil {
		s.logger.Error("connect handler error",
			slog.String("session", s.hctx.SessionID),
			slog.String("error", err.Error()))
	}
	return []byte(Welcome), nil
}

// Feed consumes bytes read from the connection and returns the bytes to
// write back. closed reports that the client asked to end the session; the
// caller writes out and then closes the connection. Incomplete lines are kept
// until the next call.
func (s *Session) Feed(ctx context.Context, data []byte) (out []byte, closed bool) {
	if s.closed {
		return nil, true
	}
	s.buf = append(s.buf, data...)

	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i == -1 {
			break
		}
		line := s.buf[:i]
		s.buf = s.buf[i+1:]

		if s.discarding {
			s.discarding = false
			continue
		}
		if len(line) > MaxLineLength {
			out = append(out, ErrorResponse(Request{}, hullerrors.ErrLineTooLong).Text...)
			continue
		}

		resp := s.handle(ctx, string(line))
		out = append(out, resp.Text...)
		if resp.Close {
			s.closed = true
			s.buf = nil
			return out, true
		}
	}

	if len(s.buf) > MaxLineLength {
		s.buf = nil
		if !s.discarding {
			s.discarding = true
			out = append(out, ErrorResponse(Request{}, hullerrors.ErrLineTooLong).Text...)
		}
	}

	// Release the consumed prefix once the buffer drains.
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return out, false
}

// Close ends the session. OnDisconnect runs once no matter how often Close
// is called.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		if err := s.handler.OnDisconnect(ctx, s.hctx); err != nil {
			s.logger.Error("disconnect handler error",
				slog.String("session", s.hctx.SessionID),
				slog.String("error", err.Error()))
		}
	})
}

func (s *Session) handle(ctx context.Context, line string) Response {
	req, err := Parse(line)
	switch {
	case err == nil && req.Command == Empty:
		return Response{}
	case err == nil && req.Command == Exit:
		return Response{Close: true}
	}

	command := req.Command.String()
	if err != nil {
		if command == "" {
			command = "unknown"
		}
		s.logger.Debug("rejected command line",
			slog.String("session", s.hctx.SessionID),
			slog.String("line", Sanitize(line)),
			slog.String("error", err.Error()))
		resp := ErrorResponse(req, err)
		s.notify(ctx, command, resp.Err)
		return resp
	}

	if err := s.handler.AuthCommand(ctx, s.hctx, command); err != nil {
		resp := ErrorResponse(req, err)
		s.notify(ctx, command, resp.Err)
		return resp
	}

	resp := s.interp.Execute(req)
	s.notify(ctx, command, resp.Err)
	return resp
}

func (s *Session) notify(ctx context.Context, command string, result error) {
	if err := s.handler.OnCommand(ctx, s.hctx, command, result); err != nil {
		s.logger.Error("command handler error",
			slog.String("session", s.hctx.SessionID),
			slog.String("command", command),
			slog.String("error", err.Error()))
	}
}
